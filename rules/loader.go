package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk layout of a rule definitions file
type definitionFile struct {
	Rules []*Definition `yaml:"rules"`
}

// LoadDefinitions reads rule definitions from a YAML file
func LoadDefinitions(path string) ([]*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes and validates YAML rule definitions
func ParseDefinitions(data []byte) ([]*Definition, error) {
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rule definitions: %w", err)
	}

	seen := make(map[string]bool, len(f.Rules))
	for _, d := range f.Rules {
		if err := ValidateDefinition(d); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate rule ID %s in definitions file", d.ID)
		}
		seen[d.ID] = true
	}

	return f.Rules, nil
}

// Seed adds definitions that are not already stored. Existing IDs are left
// untouched so edits made through the API survive restarts.
func (en *Engine) Seed(defs []*Definition) (int, error) {
	added := 0
	for _, d := range defs {
		err := en.AddDefinition(d)
		if errors.Is(err, ErrDefinitionExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to seed rule %s: %w", d.ID, err)
		}
		added++
	}
	return added, nil
}
