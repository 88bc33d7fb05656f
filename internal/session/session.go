// Package session holds the authenticated identity for one chat client.
// The state is a closed value mutated only through the named transitions
// Set, Clear and MarkReady, mirroring the identity provider's session
// lifecycle; interested components observe changes through Subscribe.
package session

import (
	"sync"

	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

// State is the session value. Ready reports whether the identity
// provider has delivered its first session notification; until then the
// identity is unknown rather than absent.
type State struct {
	Identity *models.Identity
	Ready    bool
}

// Session is an externally-owned state cell with observer fan-out.
type Session struct {
	mu    sync.Mutex
	state State
	subs  map[int]func(State)
	next  int
}

// New creates a session in the not-ready state.
func New() *Session {
	return &Session{subs: make(map[int]func(State))}
}

// State returns the current session value.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the signed-in identity, or nil.
func (s *Session) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Identity
}

// Set records a signed-in identity.
func (s *Session) Set(identity *models.Identity) {
	s.transition(func(st *State) { st.Identity = identity })
}

// Clear records sign-out.
func (s *Session) Clear() {
	s.transition(func(st *State) { st.Identity = nil })
}

// MarkReady records the provider's initial session notification,
// carrying whatever identity (possibly nil) the provider restored.
func (s *Session) MarkReady(identity *models.Identity) {
	s.transition(func(st *State) {
		st.Identity = identity
		st.Ready = true
	})
}

// Subscribe registers an observer called after every transition with the
// new state. The returned cancel removes the observer. The observer is
// also called once with the current state on registration.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	state := s.state
	s.mu.Unlock()

	fn(state)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) transition(apply func(*State)) {
	s.mu.Lock()
	apply(&s.state)
	state := s.state
	observers := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
