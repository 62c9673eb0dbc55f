package rules

import (
	"fmt"
	"regexp"
	"strings"
)

var definitionID = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidateDefinition checks a user-defined rule before it is compiled or stored
func ValidateDefinition(d *Definition) error {
	if d == nil {
		return fmt.Errorf("definition cannot be nil")
	}

	if err := validateDefinitionID(d.ID); err != nil {
		return fmt.Errorf("invalid rule ID %q: %w", d.ID, err)
	}

	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("rule %s must have a name", d.ID)
	}
	if len(d.Name) > 200 {
		return fmt.Errorf("rule %s name length %d exceeds maximum of 200 characters", d.ID, len(d.Name))
	}

	if strings.TrimSpace(d.Expression) == "" {
		return fmt.Errorf("rule %s must have an expression", d.ID)
	}

	switch d.FailSeverity {
	case "", SeverityWarning, SeverityFail:
	default:
		return fmt.Errorf("rule %s has invalid fail severity %q (must be warning or fail)", d.ID, d.FailSeverity)
	}

	return nil
}

// validateDefinitionID enforces lower-case kebab IDs of 1-100 characters
// that do not shadow a builtin check.
func validateDefinitionID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(id))
	}
	if !definitionID.MatchString(id) {
		return fmt.Errorf("must match pattern ^[a-z0-9][a-z0-9-]*$")
	}
	if IsBuiltinID(id) {
		return fmt.Errorf("cannot reuse builtin rule ID %q", id)
	}
	return nil
}
