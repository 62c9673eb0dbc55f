package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// UnlockSource reports whether premium rules are currently unlocked.
// The engine asks on every evaluation and never caches the answer.
type UnlockSource interface {
	Unlocked() bool
}

// Engine combines the builtin catalogue with user-defined expression rules
// and evaluates listings against them. Safe for concurrent use.
type Engine struct {
	env      *cel.Env
	builtin  Catalogue
	store    DefinitionStore
	cache    DefinitionCache
	unlock   UnlockSource
	programs map[string]compiledDefinition // definition ID -> compiled program
	mu       sync.RWMutex
}

// compiledDefinition is a program together with the expression it was built from
type compiledDefinition struct {
	expression string
	program    cel.Program
}

// NewEngine creates an engine over DefaultCatalogue
func NewEngine(store DefinitionStore, unlock UnlockSource) (*Engine, error) {
	return NewEngineWithCatalogue(DefaultCatalogue(), store, unlock)
}

// NewEngineWithCache creates an engine over DefaultCatalogue using cache for
// the active definition list
func NewEngineWithCache(store DefinitionStore, unlock UnlockSource, cache DefinitionCache) (*Engine, error) {
	return newEngine(DefaultCatalogue(), store, unlock, cache)
}

// NewEngineWithCatalogue creates an engine over a custom builtin catalogue and
// compiles every active definition already in the store.
func NewEngineWithCatalogue(builtin Catalogue, store DefinitionStore, unlock UnlockSource) (*Engine, error) {
	return newEngine(builtin, store, unlock, nil)
}

func newEngine(builtin Catalogue, store DefinitionStore, unlock UnlockSource, cache DefinitionCache) (*Engine, error) {
	if err := builtin.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalogue: %w", err)
	}

	env, err := NewExpressionEnv()
	if err != nil {
		return nil, err
	}

	if store == nil {
		store = NewInMemoryDefinitionStore()
	}
	if cache == nil {
		cache = NewInMemoryDefinitionCache(DefaultCacheConfig())
	}

	en := &Engine{
		env:      env,
		builtin:  builtin,
		store:    store,
		cache:    cache,
		unlock:   unlock,
		programs: make(map[string]compiledDefinition),
	}

	if err := en.CompileAllDefinitions(); err != nil {
		return nil, fmt.Errorf("failed to compile rule definitions: %w", err)
	}

	return en, nil
}

// Unlocked reports the current unlock state; no source means locked
func (en *Engine) Unlocked() bool {
	return en.unlock != nil && en.unlock.Unlocked()
}

// CompileDefinition compiles a definition's expression and caches the program
func (en *Engine) CompileDefinition(id, expression string) error {
	prog, err := compileExpression(en.env, expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[id] = compiledDefinition{expression: expression, program: prog}
	en.mu.Unlock()

	return nil
}

// CompileAllDefinitions compiles all active definitions and refreshes the cache
func (en *Engine) CompileAllDefinitions() error {
	defs, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, d := range defs {
		if err := en.CompileDefinition(d.ID, d.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", d.ID, err)
		}
	}

	en.cache.Set(defs)
	return nil
}

// AddDefinition validates, compiles and stores a new definition
func (en *Engine) AddDefinition(d *Definition) error {
	if err := ValidateDefinition(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	// Check before compiling so an existing program is not overwritten
	if _, err := en.store.Get(d.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, d.ID)
	} else if !errors.Is(err, ErrDefinitionNotFound) {
		return err
	}

	if err := en.CompileDefinition(d.ID, d.Expression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := en.store.Add(d); err != nil {
		en.mu.Lock()
		delete(en.programs, d.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateDefinition validates and recompiles a definition, then stores it
func (en *Engine) UpdateDefinition(d *Definition) error {
	if err := ValidateDefinition(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	prog, err := compileExpression(en.env, d.Expression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if err := en.store.Update(d); err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[d.ID] = compiledDefinition{expression: d.Expression, program: prog}
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// DeleteDefinition removes a definition and its compiled program
func (en *Engine) DeleteDefinition(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, id)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Definitions lists every stored definition, active or not
func (en *Engine) Definitions() ([]*Definition, error) {
	return en.store.List()
}

// Definition returns one stored definition
func (en *Engine) Definition(id string) (*Definition, error) {
	return en.store.Get(id)
}

// Catalogue returns the builtin rules followed by active definitions
func (en *Engine) Catalogue() (Catalogue, error) {
	defs := en.cache.Get()
	if defs == nil {
		var err error
		defs, err = en.store.ListActive()
		if err != nil {
			return nil, err
		}
		en.cache.Set(defs)
	}

	cat := make(Catalogue, 0, len(en.builtin)+len(defs))
	cat = append(cat, en.builtin...)

	for _, d := range defs {
		en.mu.RLock()
		compiled, exists := en.programs[d.ID]
		en.mu.RUnlock()

		// Definitions added or changed by another process are compiled on first sight
		if !exists || compiled.expression != d.Expression {
			exists = false
			prog, err := compileExpression(en.env, d.Expression)
			if err == nil {
				compiled = compiledDefinition{expression: d.Expression, program: prog}
				en.mu.Lock()
				en.programs[d.ID] = compiled
				en.mu.Unlock()
				exists = true
			}
		}

		rule := Rule{ID: d.ID, Name: d.Name, Premium: d.Premium}
		if exists {
			rule.Check = expressionCheck(*d, compiled.program)
		} else {
			id := d.ID
			rule.Check = func(string) Verdict {
				return warning(fmt.Sprintf("rule %s is not compiled", id))
			}
		}
		cat = append(cat, rule)
	}

	return cat, nil
}

// Check evaluates text against the current catalogue and unlock state
func (en *Engine) Check(text string) (Report, error) {
	cat, err := en.Catalogue()
	if err != nil {
		return Report{}, err
	}
	return Evaluate(text, en.Unlocked(), cat), nil
}
