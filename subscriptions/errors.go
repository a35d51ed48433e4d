package subscriptions

import (
	"errors"
	"fmt"
)

// ErrResourceMissing signals that the billing provider no longer knows the
// referenced object (Stripe "resource_missing"). During best-effort
// cancellation it means the work is already done.
var ErrResourceMissing = errors.New("provider resource missing")

// ErrStripeNotConfigured is returned by operations that need a live billing
// provider when STRIPE_SECRET_KEY is not set.
var ErrStripeNotConfigured = errors.New("stripe not configured")

// ConfigurationError means the benefits row for a tier is absent. There is no
// sensible default token allotment, so reconciliation must fail loudly; this
// indicates a seeding/deployment bug, not a transient condition.
type ConfigurationError struct {
	Tier Tier
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no benefits configured for tier %q", e.Tier)
}

// ValidationError marks a malformed, non-retryable input: missing webhook
// metadata, unknown tier values, unresolvable users. Webhook handlers map it
// to a 400 so the provider does not retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
