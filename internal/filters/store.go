package filters

import (
	"context"
	"fmt"
	"sync"

	"github.com/seuros/scalex/internal/logging"
)

// Persister stores the filter state across navigation and restarts.
type Persister interface {
	// Load returns the stored state; ok is false when nothing was stored yet.
	Load(ctx context.Context) (state State, ok bool, err error)
	Save(ctx context.Context, state State) error
}

// Listener is notified synchronously after every accepted Set.
type Listener func(ctx context.Context, state State)

// Store is the single owner of the filter state.
type Store struct {
	mu        sync.RWMutex
	state     State
	persister Persister
	listener  Listener
}

// NewStore creates a store, restoring any state previously saved by persister.
// A nil persister keeps state in memory only.
func NewStore(ctx context.Context, persister Persister) (*Store, error) {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	s := &Store{persister: persister}

	stored, ok, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load filter state: %w", err)
	}
	if ok {
		if err := stored.Validate(); err != nil {
			logging.L().Warn("discarding invalid stored filter state", "error", err)
		} else {
			s.state = stored.Clone()
		}
	}
	return s, nil
}

// OnChange registers the listener invoked after each successful Set. Only one
// listener is kept; registering again replaces it.
func (s *Store) OnChange(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// Get returns a copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Set validates, persists and publishes a new state. Validation failures are
// returned as *ValidationError and leave the stored state untouched.
func (s *Store) Set(ctx context.Context, next State) error {
	if err := next.Validate(); err != nil {
		return err
	}
	next = next.Clone()

	s.mu.Lock()
	if err := s.persister.Save(ctx, next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to persist filter state: %w", err)
	}
	s.state = next
	listener := s.listener
	s.mu.Unlock()

	logging.L().Debug("filter state updated", "date_range", next.DateRange, "comparison", next.ComparisonEnabled)

	if listener != nil {
		listener(ctx, next.Clone())
	}
	return nil
}

// MemoryPersister keeps the last saved state in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryPersister returns an empty in-memory persister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(context.Context) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, false, nil
	}
	return m.state.Clone(), true, nil
}

func (m *MemoryPersister) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := state.Clone()
	m.state = &saved
	return nil
}
