package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ReferencePolicy decides what happens when only a store page reference
// (usually a URL) is supplied without listing text.
type ReferencePolicy string

const (
	// ReferenceRefuse rejects reference-only input with guidance
	ReferenceRefuse ReferencePolicy = "refuse"
	// ReferencePlaceholder evaluates an explanatory placeholder text instead
	ReferencePlaceholder ReferencePolicy = "placeholder"
)

var (
	ErrNoInput       = errors.New("please enter a Steam URL or paste store text")
	ErrReferenceOnly = errors.New("store page URLs cannot be fetched; paste the store page text to run the checks")
)

// ParseReferencePolicy validates a policy name. Empty means ReferenceRefuse.
func ParseReferencePolicy(s string) (ReferencePolicy, error) {
	switch ReferencePolicy(s) {
	case "", ReferenceRefuse:
		return ReferenceRefuse, nil
	case ReferencePlaceholder:
		return ReferencePlaceholder, nil
	default:
		return "", fmt.Errorf("unknown reference policy %q (must be refuse or placeholder)", s)
	}
}

// PrepareInput turns raw user input into the text handed to Evaluate.
// Pasted text always wins over a reference.
func PrepareInput(text, reference string, policy ReferencePolicy) (string, error) {
	text = strings.TrimSpace(text)
	reference = strings.TrimSpace(reference)

	if text != "" {
		return text, nil
	}
	if reference == "" {
		return "", ErrNoInput
	}

	switch policy {
	case ReferencePlaceholder:
		return fmt.Sprintf("Store page: %s\n"+
			"No listing text was provided. The results below were produced from this placeholder only "+
			"and do not describe the actual store page.", reference), nil
	default:
		return "", ErrReferenceOnly
	}
}
