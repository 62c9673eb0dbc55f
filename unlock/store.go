// Package unlock owns the premium unlock flag: an in-process view backed by a
// pluggable persistence port.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultKey is the standard key the flag is stored under
const DefaultKey = "steamcheck_unlocked"

const (
	flagTrue  = "true"
	flagFalse = "false"
)

// ErrMalformedFlag is returned when a stored flag is neither "true" nor "false"
var ErrMalformedFlag = errors.New("stored unlock flag is malformed")

// FlagStore persists the unlock flag.
// An absent flag reads as false. Writing false removes the stored value.
type FlagStore interface {
	ReadFlag(ctx context.Context) (bool, error)
	WriteFlag(ctx context.Context, unlocked bool) error
}

// parseFlag decodes a stored value
func parseFlag(raw string) (bool, error) {
	switch raw {
	case flagTrue:
		return true, nil
	case flagFalse:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrMalformedFlag, raw)
	}
}

// MemoryStore is a process-local FlagStore, mostly for tests and
// single-process servers that do not need persistence.
type MemoryStore struct {
	mu       sync.Mutex
	unlocked bool
}

// NewMemoryStore creates an empty (locked) memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) ReadFlag(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlocked, nil
}

func (m *MemoryStore) WriteFlag(ctx context.Context, unlocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocked = unlocked
	return nil
}
