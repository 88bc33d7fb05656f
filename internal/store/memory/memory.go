// Package memory implements store.LiveStore in process memory. It is the
// default backend in development and the backend all client tests run
// against; semantics (full-replace snapshots, key-ordered collections,
// subtree delete) match the hosted backends.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

// Store is an in-memory live key-value tree.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]json.RawMessage
	watchers    map[string][]*subscription
	ids         *store.PushIDs
	closed      bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]json.RawMessage),
		watchers:    make(map[string][]*subscription),
		ids:         store.NewPushIDs(),
	}
}

type subscription struct {
	st   *Store
	path string
	ch   chan store.Snapshot
	done bool
}

func (s *subscription) Updates() <-chan store.Snapshot { return s.ch }

func (s *subscription) Close() {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.closeLocked()
}

func (s *subscription) closeLocked() {
	if s.done {
		return
	}
	s.done = true
	subs := s.st.watchers[s.path]
	for i, sub := range subs {
		if sub == s {
			s.st.watchers[s.path] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}

// notify delivers the latest snapshot, replacing an undelivered one.
// Only the newest snapshot matters under full-replace semantics.
func (s *subscription) notify(snap store.Snapshot) {
	if s.done {
		return
	}
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

// Watch subscribes to path, delivering the current snapshot immediately.
func (s *Store) Watch(ctx context.Context, path string) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, context.Canceled
	}

	sub := &subscription{st: s, path: path, ch: make(chan store.Snapshot, 1)}
	s.watchers[path] = append(s.watchers[path], sub)
	sub.notify(s.snapshotLocked(path))
	return sub, nil
}

// Get reads the current snapshot at path.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path), nil
}

// Set writes the full record at path.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	parent, key := store.Split(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[parent]
	if coll == nil {
		coll = make(map[string]json.RawMessage)
		s.collections[parent] = coll
	}
	coll[key] = raw
	s.notifyLocked(parent)
	return nil
}

// Push appends value under a generated key within the collection at path.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	key := s.ids.Next()

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.collections[path]
	if coll == nil {
		coll = make(map[string]json.RawMessage)
		s.collections[path] = coll
	}
	coll[key] = raw
	s.notifyLocked(path)
	return key, nil
}

// Delete removes the record at path and every collection beneath it.
func (s *Store) Delete(ctx context.Context, path string) error {
	parent, key := store.Split(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if coll, ok := s.collections[parent]; ok {
		delete(coll, key)
	}
	delete(s.collections, path)
	prefix := path + "/"
	for p := range s.collections {
		if strings.HasPrefix(p, prefix) {
			delete(s.collections, p)
		}
	}
	s.notifyLocked(parent)
	s.notifyLocked(path)
	for p := range s.watchers {
		if strings.HasPrefix(p, prefix) {
			s.notifyLocked(p)
		}
	}
	return nil
}

// Close releases all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, subs := range s.watchers {
		for _, sub := range append([]*subscription(nil), subs...) {
			sub.closeLocked()
		}
	}
	return nil
}

func (s *Store) snapshotLocked(path string) store.Snapshot {
	coll := s.collections[path]
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, store.Entry{Key: k, Value: coll[k]})
	}
	return store.Snapshot{Path: path, Entries: entries}
}

func (s *Store) notifyLocked(path string) {
	if len(s.watchers[path]) == 0 {
		return
	}
	snap := s.snapshotLocked(path)
	for _, sub := range s.watchers[path] {
		sub.notify(snap)
	}
}

var _ store.LiveStore = (*Store)(nil)
