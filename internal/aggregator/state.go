package aggregator

import (
	"sync"
	"time"
)

// Mode is the aggregator operating mode.
type Mode string

const (
	// ModeLive walks the provider fallback chain before touching the store.
	ModeLive Mode = "live"
	// ModeStoreOnly serves from the persistent store and makes no network calls.
	ModeStoreOnly Mode = "store-only"
)

// State is the only mutable shared state touched by concurrent callers:
// the current provider pair, operating mode and retry policy. It is mutated
// exclusively through SwitchProvider and read through Snapshot; callers never
// read fields individually.
type State struct {
	mu             sync.RWMutex
	primary        string
	fallback       string
	mode           Mode
	retryAttempts  int
	retryBaseDelay time.Duration
}

// Snapshot is an immutable copy of the state taken under one lock, so a
// concurrent switch can never produce a torn provider pair.
type Snapshot struct {
	Primary        string
	Fallback       string
	Mode           Mode
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// NewState initializes the runtime state from configuration.
func NewState(primary, fallback string, mode Mode, retryAttempts int, retryBaseDelay time.Duration) *State {
	return &State{
		primary:        primary,
		fallback:       fallback,
		mode:           mode,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Snapshot returns a consistent copy of the full state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Primary:        s.primary,
		Fallback:       s.fallback,
		Mode:           s.mode,
		RetryAttempts:  s.retryAttempts,
		RetryBaseDelay: s.retryBaseDelay,
	}
}

// setProviders atomically reassigns the provider pair and mode.
func (s *State) setProviders(primary, fallback string, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = primary
	s.fallback = fallback
	s.mode = mode
}
