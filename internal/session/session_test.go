package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

func TestSession_Transitions(t *testing.T) {
	t.Run("starts not ready with no identity", func(t *testing.T) {
		s := New()

		state := s.State()
		assert.Nil(t, state.Identity)
		assert.False(t, state.Ready)
	})

	t.Run("mark ready sets identity and readiness together", func(t *testing.T) {
		s := New()
		id := &models.Identity{ID: "u1", Email: "u1@test.com"}

		s.MarkReady(id)

		state := s.State()
		assert.True(t, state.Ready)
		assert.Equal(t, "u1", state.Identity.ID)
	})

	t.Run("clear keeps readiness", func(t *testing.T) {
		s := New()
		s.MarkReady(&models.Identity{ID: "u1"})

		s.Clear()

		state := s.State()
		assert.True(t, state.Ready)
		assert.Nil(t, state.Identity)
	})
}

func TestSession_Subscribe(t *testing.T) {
	t.Run("observer sees current state on registration", func(t *testing.T) {
		s := New()
		s.MarkReady(&models.Identity{ID: "u1"})

		var got []State
		s.Subscribe(func(st State) { got = append(got, st) })

		assert.Len(t, got, 1)
		assert.Equal(t, "u1", got[0].Identity.ID)
	})

	t.Run("observer sees every transition", func(t *testing.T) {
		s := New()

		var got []State
		s.Subscribe(func(st State) { got = append(got, st) })

		s.MarkReady(nil)
		s.Set(&models.Identity{ID: "u1"})
		s.Clear()

		assert.Len(t, got, 4)
		assert.Nil(t, got[0].Identity)
		assert.False(t, got[0].Ready)
		assert.True(t, got[1].Ready)
		assert.Equal(t, "u1", got[2].Identity.ID)
		assert.Nil(t, got[3].Identity)
	})

	t.Run("cancel removes the observer", func(t *testing.T) {
		s := New()

		calls := 0
		cancel := s.Subscribe(func(State) { calls++ })
		cancel()

		s.Set(&models.Identity{ID: "u1"})
		assert.Equal(t, 1, calls, "only the registration call")
	})
}
