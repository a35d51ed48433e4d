package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeService implements BillingProvider over the Stripe API and creates
// checkout sessions. If STRIPE_SECRET_KEY is not set the service is nil and
// billing endpoints report themselves unconfigured.
type StripeService struct {
	secretKey  string
	successURL string
	cancelURL  string
	sc         *client.API
}

func maskKey(k string) string {
	if len(k) < 12 {
		return "****"
	}
	return k[:7] + "..." + k[len(k)-4:]
}

// NewStripeFromEnv returns a configured service or nil when the secret key is
// missing.
func NewStripeFromEnv() *StripeService {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		return nil
	}
	success := os.Getenv("STRIPE_SUCCESS_URL")
	if success == "" {
		success = "https://example.com/profile?success=true"
	}
	cancel := os.Getenv("STRIPE_CANCEL_URL")
	if cancel == "" {
		cancel = "https://example.com/profile?canceled=true"
	}
	sc := &client.API{}
	sc.Init(key, nil)
	return &StripeService{
		secretKey:  key,
		successURL: success,
		cancelURL:  cancel,
		sc:         sc,
	}
}

// mapErr normalizes Stripe's "resource_missing" class into ErrResourceMissing
// so callers can distinguish "already gone" from real failures.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
		return ErrResourceMissing
	}
	return err
}

func (s *StripeService) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := s.sc.Subscriptions.Get(id, params)
	if err != nil {
		return nil, mapErr(err)
	}
	return providerSubscription(sub), nil
}

func providerSubscription(sub *stripe.Subscription) *ProviderSubscription {
	p := &ProviderSubscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		p.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		p.UnitAmount = sub.Items.Data[0].Price.UnitAmount
	}
	return p
}

func (s *StripeService) CancelSubscription(ctx context.Context, id string, prorate bool) error {
	params := &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}}
	if prorate {
		params.Prorate = stripe.Bool(true)
	}
	_, err := s.sc.Subscriptions.Cancel(id, params)
	return mapErr(err)
}

func (s *StripeService) SetSubscriptionMetadata(ctx context.Context, id string, metadata map[string]string) error {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	_, err := s.sc.Subscriptions.Update(id, params)
	return mapErr(err)
}

func (s *StripeService) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := s.sc.Customers.List(params)
	for iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", mapErr(err)
	}
	return "", nil
}

func (s *StripeService) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	cust, err := s.sc.Customers.Get(customerID, params)
	if err != nil {
		return "", mapErr(err)
	}
	if cust.Deleted {
		return "", ErrResourceMissing
	}
	return cust.Email, nil
}

func (s *StripeService) ListActiveSubscriptionIDs(ctx context.Context, customerID string) ([]string, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)
	iter := s.sc.Subscriptions.List(params)
	ids := []string{}
	for iter.Next() {
		ids = append(ids, iter.Subscription().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, mapErr(err)
	}
	return ids, nil
}

func (s *StripeService) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
		Name:   stripe.String(name),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	cust, err := s.sc.Customers.New(params)
	if err != nil {
		return "", mapErr(err)
	}
	log.Printf("[STRIPE][customer] created %s for %s (key=%s)", cust.ID, email, maskKey(s.secretKey))
	return cust.ID, nil
}

// ensureCustomer reuses an existing Stripe customer for the email or creates
// one tagged with the application user id.
func (s *StripeService) ensureCustomer(ctx context.Context, userID, email, name string) (string, error) {
	id, err := s.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return s.CreateCustomer(ctx, email, name, map[string]string{"userId": userID})
}

func titleTier(t Tier) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// CreateCheckoutSession creates a subscription-mode checkout session for the
// tier with inline monthly pricing and userId/tier metadata, returning the
// session id. The webhook router relies on that metadata to attribute the
// completed checkout.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, email, name string, tier Tier, benefits *TierBenefit) (string, error) {
	if s == nil {
		return "", ErrStripeNotConfigured
	}
	if tier == TierFreemium {
		return "", &ValidationError{Reason: "cannot purchase free tier"}
	}
	customerID, err := s.ensureCustomer(ctx, userID, email, name)
	if err != nil {
		return "", fmt.Errorf("ensure customer: %w", err)
	}

	uploads := "unlimited uploads"
	if benefits.UploadLimit != nil {
		uploads = fmt.Sprintf("%d uploads", *benefits.UploadLimit)
	}
	review := "AI review only"
	if benefits.HumanReviewAccess {
		review = "human review access"
	}
	description := fmt.Sprintf("%d tokens/month, %s, %s", benefits.MonthlyTokens, uploads, review)

	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(titleTier(tier) + " Subscription"),
					Description: stripe.String(description),
				},
				UnitAmount: stripe.Int64(PriceForTier(tier)),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.AddMetadata("userId", userID)
	params.AddMetadata("tier", string(tier))

	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		log.Printf("[STRIPE][checkout] session create failed user=%s tier=%s: %v", userID, tier, err)
		return "", mapErr(err)
	}
	log.Printf("[STRIPE][checkout] session %s created user=%s tier=%s", sess.ID, userID, tier)
	return sess.ID, nil
}
