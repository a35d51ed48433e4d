package subscriptions

import (
	"database/sql"
	"fmt"
)

// Repository implements Store over MySQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetBenefits(tier Tier) (*TierBenefit, error) {
	row := r.db.QueryRow(`SELECT tier, monthly_tokens, upload_limit, human_review_access, support_prioritization, token_purchase_discount FROM subscription_benefits WHERE tier=? LIMIT 1`, string(tier))
	var b TierBenefit
	var limit sql.NullInt64
	if err := row.Scan(&b.Tier, &b.MonthlyTokens, &limit, &b.HumanReviewAccess, &b.SupportPrioritization, &b.TokenPurchaseDiscount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if limit.Valid {
		v := int(limit.Int64)
		b.UploadLimit = &v
	}
	return &b, nil
}

// ListBenefits returns all tiers ordered by monthly token allotment.
func (r *Repository) ListBenefits() ([]TierBenefit, error) {
	rows, err := r.db.Query(`SELECT tier, monthly_tokens, upload_limit, human_review_access, support_prioritization, token_purchase_discount FROM subscription_benefits ORDER BY monthly_tokens ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	benefits := []TierBenefit{}
	for rows.Next() {
		var b TierBenefit
		var limit sql.NullInt64
		if err := rows.Scan(&b.Tier, &b.MonthlyTokens, &limit, &b.HumanReviewAccess, &b.SupportPrioritization, &b.TokenPurchaseDiscount); err != nil {
			return nil, err
		}
		if limit.Valid {
			v := int(limit.Int64)
			b.UploadLimit = &v
		}
		benefits = append(benefits, b)
	}
	return benefits, rows.Err()
}

func (r *Repository) GetSubscription(userID string) (*UserSubscription, error) {
	row := r.db.QueryRow(`SELECT id, user_id, subscription_tier, is_active, IFNULL(stripe_subscription_id,''), subscribed_at, last_token_reward_at, next_token_reward_at FROM user_subscriptions WHERE user_id=? LIMIT 1`, userID)
	var s UserSubscription
	if err := row.Scan(&s.ID, &s.UserID, &s.Tier, &s.IsActive, &s.StripeSubscriptionID, &s.SubscribedAt, &s.LastTokenRewardAt, &s.NextTokenRewardAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertSubscription inserts the row or updates it in place; user_id is
// unique so a user converges to a single subscription row.
func (r *Repository) UpsertSubscription(s *UserSubscription) error {
	var stripeID interface{}
	if s.StripeSubscriptionID != "" {
		stripeID = s.StripeSubscriptionID
	}
	res, err := r.db.Exec(`INSERT INTO user_subscriptions (user_id, subscription_tier, is_active, stripe_subscription_id, subscribed_at, last_token_reward_at, next_token_reward_at)
		VALUES (?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE subscription_tier=VALUES(subscription_tier), is_active=VALUES(is_active), stripe_subscription_id=VALUES(stripe_subscription_id), last_token_reward_at=VALUES(last_token_reward_at), next_token_reward_at=VALUES(next_token_reward_at)`,
		s.UserID, string(s.Tier), s.IsActive, stripeID, s.SubscribedAt, s.LastTokenRewardAt, s.NextTokenRewardAt)
	if err != nil {
		return err
	}
	if s.ID == 0 {
		if id, err := res.LastInsertId(); err == nil {
			s.ID = int(id)
		}
	}
	return nil
}

func (r *Repository) SetUserTokens(userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("token balance must be >= 0, got %d", tokens)
	}
	_, err := r.db.Exec(`UPDATE users SET tokens=?, updated_at=NOW() WHERE id=?`, tokens, userID)
	return err
}

func (r *Repository) FindUserIDByEmail(email string) (string, error) {
	var id string
	if err := r.db.QueryRow(`SELECT id FROM users WHERE email=? LIMIT 1`, email).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// SubscriptionWithBenefits joins the active subscription with its tier's
// benefits row for profile/subscription endpoints.
type SubscriptionWithBenefits struct {
	UserSubscription
	Benefits *TierBenefit `json:"subscription_benefits,omitempty"`
}

func (r *Repository) GetSubscriptionWithBenefits(userID string) (*SubscriptionWithBenefits, error) {
	sub, err := r.GetSubscription(userID)
	if err != nil || sub == nil {
		return nil, err
	}
	out := &SubscriptionWithBenefits{UserSubscription: *sub}
	benefits, err := r.GetBenefits(sub.Tier)
	if err != nil {
		// Return the subscription anyway; benefits are presentational here.
		return out, nil
	}
	out.Benefits = benefits
	return out, nil
}
