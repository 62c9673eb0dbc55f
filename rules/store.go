package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDefinitionExists is returned when adding a definition whose ID is taken
var ErrDefinitionExists = errors.New("rule definition already exists")

// DefinitionStore persists user-defined rule definitions.
// Listing methods return definitions in creation order.
type DefinitionStore interface {
	// Add a new definition
	Add(d *Definition) error

	// Get a definition by ID
	Get(id string) (*Definition, error)

	// List all definitions
	List() ([]*Definition, error)

	// List active definitions
	ListActive() ([]*Definition, error)

	// Update an existing definition
	Update(d *Definition) error

	// Delete a definition
	Delete(id string) error
}

// InMemoryDefinitionStore implements DefinitionStore using a map plus an
// insertion-order index.
type InMemoryDefinitionStore struct {
	defs  map[string]*Definition
	order []string
	mu    sync.RWMutex
}

// NewInMemoryDefinitionStore creates a new in-memory definition store
func NewInMemoryDefinitionStore() *InMemoryDefinitionStore {
	return &InMemoryDefinitionStore{
		defs: make(map[string]*Definition),
	}
}

// Add adds a new definition and stamps CreatedAt/UpdatedAt
func (s *InMemoryDefinitionStore) Add(d *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, d.ID)
	}

	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	s.defs[d.ID] = d
	s.order = append(s.order, d.ID)
	return nil
}

// Get retrieves a definition by ID
func (s *InMemoryDefinitionStore) Get(id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.defs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	return d, nil
}

// List returns every definition
func (s *InMemoryDefinitionStore) List() ([]*Definition, error) {
	return s.list(false), nil
}

// ListActive returns active definitions only
func (s *InMemoryDefinitionStore) ListActive() ([]*Definition, error) {
	return s.list(true), nil
}

func (s *InMemoryDefinitionStore) list(activeOnly bool) []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Definition
	for _, id := range s.order {
		d := s.defs[id]
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Update replaces an existing definition, preserving CreatedAt
func (s *InMemoryDefinitionStore) Update(d *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[d.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, d.ID)
	}

	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now()
	s.defs[d.ID] = d
	return nil
}

// Delete removes a definition
func (s *InMemoryDefinitionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}

	delete(s.defs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
