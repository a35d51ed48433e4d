package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const maxWebhookBody = 1 << 20

// Reconciler is the slice of the engine the router needs; tests inject a fake.
type Reconciler interface {
	ApplyTierChange(ctx context.Context, userID string, targetTier Tier, stripeSubscriptionID string) (*UserSubscription, int, error)
}

// WebhookRouter verifies inbound Stripe events and maps each recognized kind
// onto an engine tier change. Delivery is at-least-once, so every branch must
// tolerate replays; ApplyTierChange is convergent, which makes that free.
type WebhookRouter struct {
	engine   Reconciler
	provider BillingProvider
	store    Store
	secret   string
}

func NewWebhookRouter(engine Reconciler, provider BillingProvider, store Store, secret string) *WebhookRouter {
	return &WebhookRouter{engine: engine, provider: provider, store: store, secret: secret}
}

// Handle is the POST /stripe/webhook endpoint. 400 means the event is
// malformed and must not be retried; 500 means a transient internal failure
// and Stripe should redeliver.
func (wr *WebhookRouter) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), wr.secret)
	if err != nil {
		log.Printf("[STRIPE][webhook] signature verification failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}
	log.Printf("[STRIPE][webhook] event=%s id=%s", event.Type, event.ID)

	ctx := c.Request.Context()
	var handleErr error
	switch event.Type {
	case "checkout.session.completed":
		handleErr = wr.handleCheckoutCompleted(ctx, event)
	case "invoice.payment_succeeded":
		handleErr = wr.handleInvoicePaid(ctx, event)
	case "customer.subscription.created":
		handleErr = wr.handleSubscriptionCreated(ctx, event)
	case "customer.subscription.deleted":
		handleErr = wr.handleSubscriptionDeleted(ctx, event)
	default:
		// Forward compatibility: acknowledge provider features we don't
		// handle yet instead of failing their delivery.
		log.Printf("[STRIPE][webhook] ignoring event type %s", event.Type)
	}

	if handleErr != nil {
		var ve *ValidationError
		if errors.As(handleErr, &ve) {
			log.Printf("[STRIPE][webhook] rejected event=%s id=%s: %s", event.Type, event.ID, ve.Reason)
			c.JSON(http.StatusBadRequest, gin.H{"error": ve.Reason})
			return
		}
		log.Printf("[STRIPE][webhook] failed event=%s id=%s: %v", event.Type, event.ID, handleErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook handler failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"eventType": string(event.Type),
		"eventId":   event.ID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"processed": true,
	})
}

func (wr *WebhookRouter) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return &ValidationError{Reason: "invalid session payload"}
	}
	userID := sess.Metadata["userId"]
	rawTier := sess.Metadata["tier"]
	if userID == "" || rawTier == "" {
		return &ValidationError{Reason: "missing metadata in checkout session"}
	}
	tier, ok := ParseTier(rawTier)
	if !ok {
		return &ValidationError{Reason: "unknown tier in checkout session metadata"}
	}
	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}
	_, _, err := wr.engine.ApplyTierChange(ctx, userID, tier, subscriptionID)
	return err
}

func (wr *WebhookRouter) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return &ValidationError{Reason: "invalid invoice payload"}
	}
	amount := inv.AmountPaid
	if amount == 0 {
		amount = inv.Total
	}
	tier := TierForAmount(amount)

	if inv.Subscription != nil && inv.Subscription.ID != "" {
		// Recurring payment: the stored metadata on the provider-side
		// subscription is the source of truth for attribution.
		psub, err := wr.provider.GetSubscription(ctx, inv.Subscription.ID)
		if err != nil {
			return err
		}
		userID, err := wr.resolveUserID(ctx, psub, inv.CustomerEmail)
		if err != nil {
			return err
		}
		if userID == "" {
			return &ValidationError{Reason: "could not determine user for subscription invoice"}
		}
		_, _, err = wr.engine.ApplyTierChange(ctx, userID, tier, psub.ID)
		return err
	}

	// One-time payment: attribution is by customer email only.
	if inv.CustomerEmail == "" {
		return &ValidationError{Reason: "no customer email on one-time invoice"}
	}
	userID, err := wr.store.FindUserIDByEmail(inv.CustomerEmail)
	if err != nil {
		return err
	}
	if userID == "" {
		return &ValidationError{Reason: "no user matches invoice customer email"}
	}
	_, _, err = wr.engine.ApplyTierChange(ctx, userID, tier, "")
	return err
}

func (wr *WebhookRouter) handleSubscriptionCreated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return &ValidationError{Reason: "invalid subscription payload"}
	}
	psub := providerSubscription(&sub)
	userID, err := wr.resolveUserID(ctx, psub, "")
	if err != nil {
		return err
	}
	if userID == "" {
		return &ValidationError{Reason: "could not determine user for created subscription"}
	}
	_, _, err = wr.engine.ApplyTierChange(ctx, userID, TierForAmount(psub.UnitAmount), psub.ID)
	return err
}

func (wr *WebhookRouter) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return &ValidationError{Reason: "invalid subscription payload"}
	}
	userID := sub.Metadata["userId"]
	if userID == "" {
		// No email fallback here: a deletion we cannot attribute is dropped
		// rather than guessed.
		return &ValidationError{Reason: "missing userId in subscription metadata"}
	}
	_, _, err := wr.engine.ApplyTierChange(ctx, userID, TierFreemium, "")
	return err
}

// resolveUserID finds the application user behind a provider subscription:
// metadata first, then lookup by customer email, persisting the resolved id
// back onto the provider subscription so the next event resolves directly.
// Returns "" (no error) when the user genuinely cannot be determined.
func (wr *WebhookRouter) resolveUserID(ctx context.Context, psub *ProviderSubscription, emailHint string) (string, error) {
	if id := psub.Metadata["userId"]; id != "" {
		return id, nil
	}
	email := emailHint
	if email == "" && psub.CustomerID != "" {
		e, err := wr.provider.CustomerEmail(ctx, psub.CustomerID)
		if err != nil && !errors.Is(err, ErrResourceMissing) {
			return "", err
		}
		email = e
	}
	if email == "" {
		return "", nil
	}
	id, err := wr.store.FindUserIDByEmail(email)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", nil
	}
	// Self-healing cache: failure to write back must not fail the event.
	if err := wr.provider.SetSubscriptionMetadata(ctx, psub.ID, map[string]string{"userId": id}); err != nil {
		log.Printf("[STRIPE][webhook] metadata write-back failed sub=%s: %v", psub.ID, err)
	}
	return id, nil
}
