package store

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushIDs_Next(t *testing.T) {
	t.Run("keys are 20 characters from the alphabet", func(t *testing.T) {
		g := NewPushIDs()
		key := g.Next()

		require.Len(t, key, 20)
		for _, c := range key {
			assert.Contains(t, pushAlphabet, string(c))
		}
	})

	t.Run("keys are unique and strictly increasing", func(t *testing.T) {
		g := NewPushIDs()

		keys := make([]string, 0, 1000)
		for i := 0; i < 1000; i++ {
			keys = append(keys, g.Next())
		}

		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		assert.Equal(t, sorted, keys, "generation order must match key order")

		seen := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			_, dup := seen[k]
			require.False(t, dup, "duplicate key %q", k)
			seen[k] = struct{}{}
		}
	})
}

func TestSplit(t *testing.T) {
	parent, key := Split("users/u1/chatrooms/r1")
	assert.Equal(t, "users/u1/chatrooms", parent)
	assert.Equal(t, "r1", key)

	parent, key = Split("chatrooms")
	assert.Equal(t, "", parent)
	assert.Equal(t, "chatrooms", key)
}
