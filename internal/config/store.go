package config

import "sync/atomic"

// Store holds the current steering tunables. Readers take a copy once per
// control cycle; Reload swaps the whole snapshot so a change is never seen
// half-applied.
type Store struct {
	cur atomic.Pointer[Steering]
}

// NewStore creates a store seeded with s.
func NewStore(s Steering) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Steering returns the current snapshot.
func (s *Store) Steering() Steering {
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return DefaultSteering()
}

// Set replaces the snapshot.
func (s *Store) Set(next Steering) {
	s.cur.Store(&next)
}

// Reload re-reads the steering section of the file at path. On error the
// previous snapshot is kept.
func (s *Store) Reload(path string) error {
	next, err := LoadSteering(path)
	if err != nil {
		return err
	}
	s.Set(next)
	return nil
}
