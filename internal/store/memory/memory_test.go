package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

type record struct {
	Name string `json:"name"`
}

func waitSnapshot(t *testing.T, sub store.Subscription) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed early")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return store.Snapshot{}
	}
}

func TestStore_WatchDeliversInitialSnapshot(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "users/u1/chatrooms/r1", record{Name: "general"}))

	sub, err := s.Watch(ctx, "users/u1/chatrooms")
	require.NoError(t, err)
	defer sub.Close()

	snap := waitSnapshot(t, sub)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "r1", snap.Entries[0].Key)

	var rec record
	require.NoError(t, json.Unmarshal(snap.Entries[0].Value, &rec))
	assert.Equal(t, "general", rec.Name)
}

func TestStore_WatchDeliversFullReplaceOnChange(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	sub, err := s.Watch(ctx, "users/u1/chatrooms")
	require.NoError(t, err)
	defer sub.Close()

	snap := waitSnapshot(t, sub)
	assert.Empty(t, snap.Entries)

	require.NoError(t, s.Set(ctx, "users/u1/chatrooms/r1", record{Name: "one"}))
	snap = waitSnapshot(t, sub)
	require.Len(t, snap.Entries, 1)

	require.NoError(t, s.Set(ctx, "users/u1/chatrooms/r2", record{Name: "two"}))
	snap = waitSnapshot(t, sub)
	require.Len(t, snap.Entries, 2, "snapshot carries the whole collection")
	assert.Equal(t, "r1", snap.Entries[0].Key)
	assert.Equal(t, "r2", snap.Entries[1].Key)
}

func TestStore_PushOrdersByKey(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	k1, err := s.Push(ctx, "chatrooms/r1/messages", record{Name: "a"})
	require.NoError(t, err)
	k2, err := s.Push(ctx, "chatrooms/r1/messages", record{Name: "b"})
	require.NoError(t, err)
	assert.Less(t, k1, k2)

	snap, err := s.Get(ctx, "chatrooms/r1/messages")
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, k1, snap.Entries[0].Key)
	assert.Equal(t, k2, snap.Entries[1].Key)
}

func TestStore_DeleteRemovesSubtree(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "chatrooms/r1", record{Name: "general"}))
	_, err := s.Push(ctx, "chatrooms/r1/messages", record{Name: "hi"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "chatrooms/r1"))

	snap, err := s.Get(ctx, "chatrooms")
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)

	snap, err = s.Get(ctx, "chatrooms/r1/messages")
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestStore_DeleteMissingPathIsNoError(t *testing.T) {
	s := New()
	defer s.Close()

	assert.NoError(t, s.Delete(context.Background(), "chatrooms/ghost"))
}

func TestStore_ClosedSubscriptionStopsDelivering(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	sub, err := s.Watch(ctx, "chatrooms/r1/messages")
	require.NoError(t, err)
	waitSnapshot(t, sub)

	sub.Close()
	_, err = s.Push(ctx, "chatrooms/r1/messages", record{Name: "late"})
	require.NoError(t, err)

	_, ok := <-sub.Updates()
	assert.False(t, ok, "channel must be closed after Close")
}
