package particles

import (
	"sync"
	"sync/atomic"
)

// Store holds the current State for one writer and any number of readers.
// Readers never block: each Apply publishes a fully merged snapshot.
type Store struct {
	current atomic.Pointer[State]
	writeMu sync.Mutex
}

// NewStore creates a store seeded with initial.
func NewStore(initial State) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Load returns the last fully merged state.
func (s *Store) Load() State {
	return *s.current.Load()
}

// Apply merges u into the current state and returns the new snapshot.
func (s *Store) Apply(u Update) State {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().Merge(u)
	s.current.Store(&next)
	return next
}
