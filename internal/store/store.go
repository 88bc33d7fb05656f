package store

import (
	"context"
	"encoding/json"
	"strings"
)

// Entry is one keyed value inside a snapshot.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is the full current value of a watched path. Entries are
// ordered by key; push-generated keys sort in insertion order, so key
// order is insertion order for appended collections.
type Snapshot struct {
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// Subscription is an owned handle on a live query. The store pushes the
// current snapshot on acquisition and a new full snapshot after every
// change until Close is called. Close is idempotent; Updates is closed
// after release and no snapshot is delivered past that point.
type Subscription interface {
	Updates() <-chan Snapshot
	Close()
}

// LiveStore is the boundary to the hosted key-value tree that owns all
// chat data. Paths are slash-separated. A path either names a single
// record inside its parent collection or a collection of keyed records.
//
// Every mutation is either a full-record write (Set), an append under a
// generated key (Push), or a subtree removal (Delete). There are no
// read-modify-write operations, so no client-side locking is required
// around store state.
type LiveStore interface {
	// Watch subscribes to the live value at path.
	Watch(ctx context.Context, path string) (Subscription, error)

	// Get reads the current snapshot at path once. A missing path
	// yields an empty snapshot, not an error.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Set writes the full record at path, creating it if absent.
	Set(ctx context.Context, path string, value any) error

	// Push appends value under a new generated key within the
	// collection at path and returns the key. Keys are monotonically
	// increasing in lexicographic order.
	Push(ctx context.Context, path string, value any) (string, error)

	// Delete removes the record at path and everything beneath it.
	// Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Close releases the store connection.
	Close() error
}

// Split separates a path into its parent collection and final key.
func Split(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
