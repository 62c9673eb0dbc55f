package rules

import (
	"errors"
	"fmt"
	"time"
)

// Severity ranks the outcome of a single check
type Severity string

const (
	SeverityPass    Severity = "pass"
	SeverityWarning Severity = "warning"
	SeverityFail    Severity = "fail"
)

// ParseSeverity converts a case-sensitive severity name into a Severity
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityPass, SeverityWarning, SeverityFail:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q (must be one of: pass, warning, fail)", s)
	}
}

// Verdict is what a check returns for one listing text
type Verdict struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// CheckFunc analyses listing text. Implementations must be pure: no I/O,
// no shared mutable state, same text in gives the same Verdict out.
type CheckFunc func(text string) Verdict

// Rule is a single named check in a Catalogue
type Rule struct {
	ID      string
	Name    string
	Premium bool
	Check   CheckFunc
}

// Catalogue is an ordered list of rules. Order is evaluation and display order.
type Catalogue []Rule

// Validate checks that every rule has a unique, non-empty ID and a check function
func (c Catalogue) Validate() error {
	seen := make(map[string]bool, len(c))
	for i, r := range c {
		if r.ID == "" {
			return fmt.Errorf("rule at position %d has empty ID", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule ID %s", r.ID)
		}
		if r.Check == nil {
			return fmt.Errorf("rule %s has no check function", r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// Free returns the rules available without an unlock, in catalogue order
func (c Catalogue) Free() Catalogue {
	free := make(Catalogue, 0, len(c))
	for _, r := range c {
		if !r.Premium {
			free = append(free, r)
		}
	}
	return free
}

// Result is the outcome of one rule in one evaluation.
// Locked results carry no severity or message.
type Result struct {
	RuleID   string   `json:"ruleId"`
	Name     string   `json:"name"`
	Premium  bool     `json:"premium"`
	Locked   bool     `json:"locked"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Counts tallies results by category
type Counts struct {
	Pass    int `json:"pass"`
	Warning int `json:"warning"`
	Fail    int `json:"fail"`
	Locked  int `json:"locked"`
}

// Total returns the number of results counted
func (c Counts) Total() int {
	return c.Pass + c.Warning + c.Fail + c.Locked
}

// Report is the full output of one evaluation
type Report struct {
	Results []Result `json:"results"`
	Counts  Counts   `json:"counts"`
}

// Definition describes a user-defined rule backed by a CEL expression
type Definition struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Expression   string    `json:"expression" yaml:"expression"`
	Premium      bool      `json:"premium" yaml:"premium"`
	Active       bool      `json:"active" yaml:"active"`
	PassMessage  string    `json:"passMessage,omitempty" yaml:"pass_message"`
	FailMessage  string    `json:"failMessage,omitempty" yaml:"fail_message"`
	FailSeverity Severity  `json:"failSeverity,omitempty" yaml:"fail_severity"`
	CreatedAt    time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt    time.Time `json:"updatedAt" yaml:"-"`
}

var (
	// ErrDefinitionNotFound is returned by stores when a definition ID is unknown
	ErrDefinitionNotFound = errors.New("rule definition not found")

	// ErrInvalidDefinition wraps validation and compile failures
	ErrInvalidDefinition = errors.New("rule validation failed")
)
