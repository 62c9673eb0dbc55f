// Package purchase verifies one-time purchases with the payment provider and
// turns completed checkouts into an unlock.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liamcoop/storecheck/internal/logger"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrVerificationUnavailable means the provider could not answer; callers
	// must treat the purchase as unverified.
	ErrVerificationUnavailable = errors.New("unable to verify purchase")
	ErrEmailRequired           = errors.New("email is required")
	ErrNotConfigured           = errors.New("purchase verification is not configured")
)

// Verification is the outcome of a purchase lookup
type Verification struct {
	Verified         bool   `json:"verified"`
	TransactionCount int    `json:"transactionCount"`
	Message          string `json:"message"`
}

// Verifier looks up completed purchases by buyer email
type Verifier interface {
	Verify(ctx context.Context, email string) (*Verification, error)
}

// PaddleConfig configures PaddleVerifier
type PaddleConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries uint64
	// Backoff is the first fibonacci retry delay
	Backoff    time.Duration
	HTTPClient *http.Client
}

// PaddleVerifier queries the Paddle Billing transactions API
type PaddleVerifier struct {
	baseURL    string
	apiKey     string
	maxRetries uint64
	backoff    time.Duration
	client     *http.Client
}

// NewPaddleVerifier creates a verifier; an empty API key is ErrNotConfigured
func NewPaddleVerifier(cfg PaddleConfig) (*PaddleVerifier, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.paddle.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &PaddleVerifier{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		client:     client,
	}, nil
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type transactionsResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Verify reports whether email has at least one completed transaction.
// Any provider or transport failure returns ErrVerificationUnavailable.
func (p *PaddleVerifier) Verify(ctx context.Context, email string) (*Verification, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	q := url.Values{}
	q.Set("customer_email", email)
	q.Set("status", "completed")
	endpoint := p.baseURL + "/transactions?" + q.Encode()

	var body transactionsResponse
	b := retry.WithMaxRetries(p.maxRetries, retry.NewFibonacci(p.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		body = transactionsResponse{}
		return p.fetch(ctx, endpoint, &body)
	})
	if err != nil {
		logger.WarnVerification()
		logger.Warn("purchase verification failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	if len(body.Data) == 0 {
		return &Verification{Message: "No purchase found for this email"}, nil
	}
	return &Verification{
		Verified:         true,
		TransactionCount: len(body.Data),
		Message:          "Purchase verified",
	}, nil
}

// fetch performs one request. Transport errors, 429 and 5xx are retryable.
func (p *PaddleVerifier) fetch(ctx context.Context, endpoint string, out *transactionsResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("paddle returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid paddle response: %w", err)
	}
	return nil
}
