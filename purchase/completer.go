package purchase

import (
	"context"
	"errors"

	"github.com/liamcoop/storecheck/internal/logger"
)

// EventCheckoutCompleted is the only checkout event that unlocks
const EventCheckoutCompleted = "checkout.completed"

// ErrPurchaseNotFound is returned when the provider has no completed
// transaction for the buyer
var ErrPurchaseNotFound = errors.New("no purchase found for this email")

// Event is a checkout lifecycle notification
type Event struct {
	Event         string `json:"event"`
	Email         string `json:"email"`
	TransactionID string `json:"transactionId,omitempty"`
}

// Unlocker is the unlock state the completer drives
type Unlocker interface {
	Unlocked() bool
	Unlock(ctx context.Context) error
}

// Completer is the single path by which a purchase unlocks premium rules
type Completer struct {
	unlocker      Unlocker
	verifier      Verifier
	trustCheckout bool
}

// NewCompleter creates a completer. With a nil verifier checkout events are
// refused with ErrNotConfigured unless TrustCheckoutEvents is set.
func NewCompleter(unlocker Unlocker, verifier Verifier) *Completer {
	return &Completer{unlocker: unlocker, verifier: verifier}
}

// TrustCheckoutEvents makes HandleEvent unlock on checkout.completed without
// asking the verifier. Restore still verifies.
func (c *Completer) TrustCheckoutEvents() *Completer {
	c.trustCheckout = true
	return c
}

// HandleEvent processes a checkout event and reports whether premium rules
// are unlocked afterwards. Events other than checkout.completed are ignored.
// Re-delivered completions are no-ops.
func (c *Completer) HandleEvent(ctx context.Context, ev Event) (bool, error) {
	if ev.Event != EventCheckoutCompleted {
		logger.Debug("ignoring checkout event", "event", ev.Event)
		return c.unlocker.Unlocked(), nil
	}
	if c.unlocker.Unlocked() {
		return true, nil
	}

	if !c.trustCheckout {
		if c.verifier == nil {
			return false, ErrNotConfigured
		}
		if _, err := c.verify(ctx, ev.Email); err != nil {
			return false, err
		}
	}

	if err := c.unlocker.Unlock(ctx); err != nil {
		return false, err
	}
	logger.Info("checkout completed", "transaction", ev.TransactionID)
	return true, nil
}

// Restore verifies a previous purchase by email and unlocks on success
func (c *Completer) Restore(ctx context.Context, email string) (*Verification, error) {
	if c.verifier == nil {
		return nil, ErrNotConfigured
	}

	v, err := c.verify(ctx, email)
	if err != nil {
		return v, err
	}

	if err := c.unlocker.Unlock(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Completer) verify(ctx context.Context, email string) (*Verification, error) {
	v, err := c.verifier.Verify(ctx, email)
	if err != nil {
		return nil, err
	}
	if !v.Verified {
		return v, ErrPurchaseNotFound
	}
	return v, nil
}
