package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Store is the persistence surface the engine needs. Implemented by
// Repository over MySQL; tests use an in-memory fake.
type Store interface {
	// GetBenefits returns nil, nil when no row exists for the tier.
	GetBenefits(tier Tier) (*TierBenefit, error)
	// GetSubscription returns nil, nil when the user has no subscription row.
	GetSubscription(userID string) (*UserSubscription, error)
	UpsertSubscription(sub *UserSubscription) error
	SetUserTokens(userID string, tokens int) error
	// FindUserIDByEmail returns "" when no user matches.
	FindUserIDByEmail(email string) (string, error)
}

// BillingProvider abstracts the external subscription-billing service so the
// engine can be exercised with fakes. Implementations return
// ErrResourceMissing for objects the provider no longer knows.
type BillingProvider interface {
	GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error)
	CancelSubscription(ctx context.Context, id string, prorate bool) error
	SetSubscriptionMetadata(ctx context.Context, id string, metadata map[string]string) error
	// FindCustomerByEmail returns "" when no customer matches.
	FindCustomerByEmail(ctx context.Context, email string) (string, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	ListActiveSubscriptionIDs(ctx context.Context, customerID string) ([]string, error)
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
}

const rewardPeriod = 30 * 24 * time.Hour

// Engine is the single authority for subscription-tier transitions. It keeps
// the billing provider and the stored subscription row consistent and resets
// the token balance on every transition.
type Engine struct {
	store    Store
	provider BillingProvider

	mu sync.Mutex
	// locks are never evicted; one mutex per user id seen this process
	// lifetime, acceptable at this user count.
	locks map[string]*sync.Mutex
}

func NewEngine(store Store, provider BillingProvider) *Engine {
	return &Engine{store: store, provider: provider, locks: map[string]*sync.Mutex{}}
}

// userLock serializes tier changes per user so a webhook and a user action
// racing on the same subscription row cannot lose updates.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// ApplyTierChange moves a user to targetTier, cancelling any previous
// provider subscription that differs from stripeSubscriptionID, upserting the
// stored row and resetting the token balance to the tier's monthly allotment.
// The token reset is absolute, not additive, which also makes repeated
// delivery of the same event converge to the same state.
//
// Benefits lookup and store writes are fatal; a failed cancellation of the
// old provider subscription is logged and swallowed so a retried webhook is
// never blocked forever by a provider outage.
func (e *Engine) ApplyTierChange(ctx context.Context, userID string, targetTier Tier, stripeSubscriptionID string) (*UserSubscription, int, error) {
	benefits, err := e.store.GetBenefits(targetTier)
	if err != nil {
		return nil, 0, fmt.Errorf("benefits lookup for tier %q: %w", targetTier, err)
	}
	if benefits == nil {
		return nil, 0, &ConfigurationError{Tier: targetTier}
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	current, err := e.store.GetSubscription(userID)
	if err != nil {
		return nil, 0, fmt.Errorf("subscription lookup for user %s: %w", userID, err)
	}

	if current != nil && current.StripeSubscriptionID != "" && current.StripeSubscriptionID != stripeSubscriptionID {
		e.cancelPrevious(ctx, userID, current.StripeSubscriptionID)
	}

	// Freemium must never reference a provider subscription.
	finalID := stripeSubscriptionID
	if targetTier == TierFreemium {
		finalID = ""
	}

	now := time.Now()
	sub := &UserSubscription{
		UserID:               userID,
		Tier:                 targetTier,
		IsActive:             true,
		StripeSubscriptionID: finalID,
		SubscribedAt:         now,
		LastTokenRewardAt:    now,
		NextTokenRewardAt:    now.Add(rewardPeriod),
	}
	if current != nil {
		sub.ID = current.ID
		sub.SubscribedAt = current.SubscribedAt
	}
	if err := e.store.UpsertSubscription(sub); err != nil {
		return nil, 0, fmt.Errorf("subscription upsert for user %s: %w", userID, err)
	}
	if err := e.store.SetUserTokens(userID, benefits.MonthlyTokens); err != nil {
		return nil, 0, fmt.Errorf("token reset for user %s: %w", userID, err)
	}
	log.Printf("[SUBS][apply] user=%s tier=%s stripe_sub=%q tokens=%d", userID, targetTier, finalID, benefits.MonthlyTokens)
	return sub, benefits.MonthlyTokens, nil
}

// cancelPrevious is best effort: reconciliation must not fail merely because
// the old provider subscription could not be cancelled. The accepted risk is
// a temporarily double-billed customer; the next webhook cycle re-attempts.
func (e *Engine) cancelPrevious(ctx context.Context, userID, subscriptionID string) {
	if e.provider == nil {
		log.Printf("[SUBS][cancel-prev] user=%s sub=%s skipped: no billing provider", userID, subscriptionID)
		return
	}
	prev, err := e.provider.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, ErrResourceMissing) {
		log.Printf("[SUBS][cancel-prev] user=%s sub=%s already gone", userID, subscriptionID)
		return
	}
	if err != nil {
		log.Printf("[SUBS][cancel-prev] user=%s sub=%s status check failed: %v", userID, subscriptionID, err)
		return
	}
	if prev.Status != "active" {
		log.Printf("[SUBS][cancel-prev] user=%s sub=%s is %s, skipping", userID, subscriptionID, prev.Status)
		return
	}
	if err := e.provider.CancelSubscription(ctx, subscriptionID, true); err != nil && !errors.Is(err, ErrResourceMissing) {
		log.Printf("[SUBS][cancel-prev] user=%s sub=%s cancel failed: %v", userID, subscriptionID, err)
		return
	}
	log.Printf("[SUBS][cancel-prev] user=%s sub=%s cancelled", userID, subscriptionID)
}

// CancelAllSubscriptions cancels every active provider subscription owned by
// the customer matching email and reports how many were cancelled. A user may
// have more than one due to a prior race. Idempotent: no customer or no
// active subscriptions is a success with count 0.
func (e *Engine) CancelAllSubscriptions(ctx context.Context, email string) (int, error) {
	if e.provider == nil {
		return 0, ErrStripeNotConfigured
	}
	customerID, err := e.provider.FindCustomerByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("customer lookup: %w", err)
	}
	if customerID == "" {
		return 0, nil
	}
	ids, err := e.provider.ListActiveSubscriptionIDs(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("subscription list: %w", err)
	}
	cancelled := 0
	for _, id := range ids {
		if err := e.provider.CancelSubscription(ctx, id, false); err != nil {
			if errors.Is(err, ErrResourceMissing) {
				continue
			}
			// User-initiated primary action: a provider failure here is fatal.
			return cancelled, fmt.Errorf("cancel %s: %w", id, err)
		}
		log.Printf("[SUBS][cancel-all] email=%s cancelled sub=%s", email, id)
		cancelled++
	}
	return cancelled, nil
}
