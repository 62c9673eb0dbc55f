package unlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/liamcoop/storecheck/internal/logger"
)

// State is the in-process unlock flag. It starts locked, fails closed on
// store errors and only becomes unlocked through Unlock.
type State struct {
	store    FlagStore
	unlocked atomic.Bool
	mu       sync.Mutex // serializes writes to the store
}

// NewState creates a locked State over store without reading it
func NewState(store FlagStore) *State {
	if store == nil {
		store = NewMemoryStore()
	}
	return &State{store: store}
}

// Load creates a State and reads the persisted flag. Any read error leaves
// the state locked.
func Load(ctx context.Context, store FlagStore) *State {
	s := NewState(store)
	if err := s.Reload(ctx); err != nil {
		logger.Warn("unlock flag unreadable, starting locked", "error", err)
	}
	return s
}

// Unlocked reports whether premium rules are unlocked
func (s *State) Unlocked() bool {
	return s.unlocked.Load()
}

// Unlock persists and sets the flag. Calling it when already unlocked does
// nothing. If the write fails the state stays locked.
func (s *State) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unlocked.Load() {
		return nil
	}

	if err := s.store.WriteFlag(ctx, true); err != nil {
		logger.WarnFlagStore()
		return fmt.Errorf("failed to persist unlock: %w", err)
	}

	s.unlocked.Store(true)
	logger.Info("premium checks unlocked")
	return nil
}

// Reset locks the state and removes the persisted flag. The in-memory state
// is locked even when the write fails.
func (s *State) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unlocked.Store(false)

	if err := s.store.WriteFlag(ctx, false); err != nil {
		logger.WarnFlagStore()
		return fmt.Errorf("failed to clear unlock flag: %w", err)
	}

	logger.Info("premium checks locked")
	return nil
}

// Reload re-reads the persisted flag. On error the state becomes locked.
func (s *State) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlocked, err := s.store.ReadFlag(ctx)
	if err != nil {
		s.unlocked.Store(false)
		logger.WarnFlagStore()
		return err
	}

	s.unlocked.Store(unlocked)
	return nil
}
