package main

import "github.com/liamcoop/storecheck/rules"

// CheckRequest represents a listing submitted for checking
type CheckRequest struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// CheckResponse represents the outcome of one check
type CheckResponse struct {
	ID             string         `json:"id"`
	Results        []rules.Result `json:"results"`
	Counts         rules.Counts   `json:"counts"`
	Unlocked       bool           `json:"unlocked"`
	CopyText       string         `json:"copyText"`
	EvaluationTime string         `json:"evaluationTime"`
}

// RuleSummary represents one catalogue entry
type RuleSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Premium bool   `json:"premium"`
	Source  string `json:"source"` // builtin or custom
}

// UnlockResponse represents the current unlock state
type UnlockResponse struct {
	Unlocked bool `json:"unlocked"`
}

// VerifyPurchaseRequest represents a purchase restore request
type VerifyPurchaseRequest struct {
	Email string `json:"email"`
}

// VerifyPurchaseResponse represents the purchase restore outcome.
// Exactly one of Message and Error is set.
type VerifyPurchaseResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	TransactionCount int    `json:"transactionCount,omitempty"`
}

// DefinitionRequest represents a create or update of an expression rule
type DefinitionRequest struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Expression   string `json:"expression"`
	Premium      bool   `json:"premium"`
	Active       *bool  `json:"active,omitempty"` // defaults to true
	PassMessage  string `json:"passMessage,omitempty"`
	FailMessage  string `json:"failMessage,omitempty"`
	FailSeverity string `json:"failSeverity,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
