package subscriptions

import (
	"log"
	"time"
)

// Tier is a subscription level governing the monthly token allotment and
// feature gates.
type Tier string

const (
	TierFreemium Tier = "freemium"
	TierBasic    Tier = "basic"
	TierAdvanced Tier = "advanced"
)

// ParseTier validates a raw tier string coming from request bodies or
// provider metadata.
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFreemium, TierBasic, TierAdvanced:
		return Tier(s), true
	}
	return "", false
}

// Monthly prices in cents. These must match the amounts used when creating
// checkout sessions, since webhook handlers infer the tier back from the paid
// amount.
const (
	PriceFreemium int64 = 0
	PriceBasic    int64 = 999
	PriceAdvanced int64 = 2999
)

func PriceForTier(t Tier) int64 {
	switch t {
	case TierBasic:
		return PriceBasic
	case TierAdvanced:
		return PriceAdvanced
	}
	return PriceFreemium
}

// TierForAmount maps a paid amount (cents) back to a tier. Amounts matching
// no known price fall back to freemium; that case is logged because it means
// the price table and the provider drifted apart.
func TierForAmount(amount int64) Tier {
	switch amount {
	case PriceBasic:
		return TierBasic
	case PriceAdvanced:
		return TierAdvanced
	}
	if amount != 0 {
		log.Printf("[STRIPE][tier] unmatched amount=%d, defaulting to freemium", amount)
	}
	return TierFreemium
}

// TierBenefit is the reference-data row describing what a tier grants.
// Seeded once by migrations, read-only at runtime.
type TierBenefit struct {
	Tier                  Tier   `json:"tier"`
	MonthlyTokens         int    `json:"monthly_tokens"`
	UploadLimit           *int   `json:"upload_limit"` // nil = unlimited
	HumanReviewAccess     bool   `json:"human_review_access"`
	SupportPrioritization string `json:"support_prioritization"` // none|standard|priority
	TokenPurchaseDiscount int    `json:"token_purchase_discount"`
}

// UserSubscription is the stored subscription state. At most one row per user
// (user_id is unique); StripeSubscriptionID is empty exactly when the tier is
// freemium.
type UserSubscription struct {
	ID                   int       `json:"id"`
	UserID               string    `json:"user_id"`
	Tier                 Tier      `json:"subscription_tier"`
	IsActive             bool      `json:"is_active"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	SubscribedAt         time.Time `json:"subscribed_at"`
	LastTokenRewardAt    time.Time `json:"last_token_reward_at"`
	NextTokenRewardAt    time.Time `json:"next_token_reward_at"`
}

// ProviderSubscription is the projection of a billing-provider subscription
// the engine and webhook router need: live status, owning customer, metadata
// and the first line-item unit amount.
type ProviderSubscription struct {
	ID         string
	Status     string
	CustomerID string
	Metadata   map[string]string
	UnitAmount int64
}
