// Package redisstore implements store.LiveStore on Redis. Each
// collection path maps to one hash; every mutation publishes the path on
// a pub/sub channel and watchers re-read the full hash, which gives the
// full-replace snapshot semantics the client expects.
package redisstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/config"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

const (
	hashPrefix    = "live:"
	channelPrefix = "live.ch:"
)

// Store is a Redis-backed live key-value tree.
type Store struct {
	client *redis.Client
	ids    *store.PushIDs
	log    *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	return &Store{client: client, ids: store.NewPushIDs(), log: log}, nil
}

func hashKey(path string) string    { return hashPrefix + path }
func channelFor(path string) string { return channelPrefix + path }

type subscription struct {
	ch     chan store.Snapshot
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (s *subscription) Updates() <-chan store.Snapshot { return s.ch }

func (s *subscription) Close() {
	s.cancel()
	_ = s.pubsub.Close()
}

// Watch subscribes to path. The initial snapshot is read before any
// change notification is consumed, so no update is ever lost between
// the read and the subscribe.
func (s *Store) Watch(ctx context.Context, path string) (store.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channelFor(path))
	// Force the SUBSCRIBE round trip so changes from here on are seen.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	snap, err := s.Get(ctx, path)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{ch: make(chan store.Snapshot, 1), pubsub: pubsub, cancel: cancel}
	sub.ch <- snap

	go s.pump(subCtx, path, sub)
	return sub, nil
}

func (s *Store) pump(ctx context.Context, path string, sub *subscription) {
	defer close(sub.ch)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.pubsub.Channel():
			if !ok {
				return
			}
			snap, err := s.Get(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Warn("live snapshot read failed",
					zap.String("path", path), zap.Error(err))
				continue
			}
			// Latest-wins: replace an undelivered snapshot.
			select {
			case sub.ch <- snap:
			default:
				select {
				case <-sub.ch:
				default:
				}
				select {
				case sub.ch <- snap:
				default:
				}
			}
		}
	}
}

// Get reads the full collection hash at path, ordered by key.
func (s *Store) Get(ctx context.Context, path string) (store.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, hashKey(path)).Result()
	if err != nil {
		return store.Snapshot{}, err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]store.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, store.Entry{Key: k, Value: json.RawMessage(fields[k])})
	}
	return store.Snapshot{Path: path, Entries: entries}, nil
}

// Set writes the full record at path and notifies parent watchers.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	parent, key := store.Split(path)

	if err := s.client.HSet(ctx, hashKey(parent), key, raw).Err(); err != nil {
		return err
	}
	return s.publish(ctx, parent)
}

// Push appends value under a generated key and notifies path watchers.
func (s *Store) Push(ctx context.Context, path string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	key := s.ids.Next()

	if err := s.client.HSet(ctx, hashKey(path), key, raw).Err(); err != nil {
		return "", err
	}
	if err := s.publish(ctx, path); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes the record, its own hash, and every hash beneath it.
// Each removal is idempotent; deleting a missing path is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	parent, key := store.Split(path)

	if err := s.client.HDel(ctx, hashKey(parent), key).Err(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, hashKey(path)).Err(); err != nil {
		return err
	}

	// Subtree: scan for hashes under path/ and drop them.
	var dropped []string
	iter := s.client.Scan(ctx, 0, hashKey(path)+"/*", 100).Iterator()
	for iter.Next(ctx) {
		dropped = append(dropped, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(dropped) > 0 {
		if err := s.client.Del(ctx, dropped...).Err(); err != nil {
			return err
		}
	}

	if err := s.publish(ctx, parent); err != nil {
		return err
	}
	if err := s.publish(ctx, path); err != nil {
		return err
	}
	for _, k := range dropped {
		if err := s.publish(ctx, k[len(hashPrefix):]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) publish(ctx context.Context, path string) error {
	return s.client.Publish(ctx, channelFor(path), "changed").Err()
}

var _ store.LiveStore = (*Store)(nil)
