package config

import (
	"sync"
	"sync/atomic"
)

// Snapshot is an immutable, numbered view of the configuration.
type Snapshot struct {
	Version uint64
	Config  Config
}

// Store publishes the current snapshot. Readers never block; writers are
// serialized so concurrent edits cannot lose each other's changes.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding cfg as version 1.
func NewStore(cfg Config) *Store {
	s := &Store{}
	s.current.Store(&Snapshot{Version: 1, Config: cfg.Clone()})
	return s
}

// Current returns the live snapshot. Callers must treat it as read-only.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Apply validates cfg and swaps it in as the next version.
func (s *Store) Apply(cfg Config) (*Snapshot, error) {
	return s.Update(func(c *Config) error {
		*c = cfg.Clone()
		return nil
	})
}

// Update copies the current config, lets fn edit the copy, validates it and
// publishes it. On error the current snapshot is left untouched.
func (s *Store) Update(fn func(*Config) error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := prev.Config.Clone()
	if err := fn(&next); err != nil {
		return prev, err
	}
	if err := next.Validate(); err != nil {
		return prev, err
	}
	snap := &Snapshot{Version: prev.Version + 1, Config: next}
	s.current.Store(snap)
	return snap, nil
}
