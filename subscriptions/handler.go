package subscriptions

import (
	"log"
	"net/http"
	"strings"

	mailer "legalai-backend/email"

	"github.com/gin-gonic/gin"
)

// AuthUser is the minimal caller projection handlers need.
type AuthUser struct {
	ID    string
	Email string
	Name  string
}

// --- User resolver adapter ---
// Indirection so this package does not depend on login/migrations internals;
// main wires the real resolver, tests inject fakes.

var userResolver = func(token string) *AuthUser { return nil }

// RegisterUserResolver allows main to provide a bearer-token resolver.
func RegisterUserResolver(fn func(token string) *AuthUser) { userResolver = fn }

func currentUser(c *gin.Context) *AuthUser {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		return nil
	}
	return userResolver(token)
}

// Handler exposes the subscription endpoints: benefit listing, the caller's
// subscription, checkout creation, webhook intake and cancellation.
type Handler struct {
	repo    *Repository
	engine  *Engine
	stripe  *StripeService
	webhook *WebhookRouter
}

func NewHandler(repo *Repository, engine *Engine, stripe *StripeService, webhook *WebhookRouter) *Handler {
	return &Handler{repo: repo, engine: engine, stripe: stripe, webhook: webhook}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/subscription-benefits", h.getBenefits)
	r.GET("/subscription", h.getSubscription)
	r.POST("/stripe/checkout", h.checkout)
	r.POST("/cancel-subscription", h.cancelSubscription)
	if h.webhook != nil {
		r.POST("/stripe/webhook", h.webhook.Handle)
	}
}

func (h *Handler) getBenefits(c *gin.Context) {
	benefits, err := h.repo.ListBenefits()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load benefits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": benefits})
}

func (h *Handler) getSubscription(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	sub, err := h.repo.GetSubscriptionWithBenefits(user.ID)
	if err != nil {
		log.Printf("[SUBS][get] user=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sub})
}

// checkout creates a Stripe checkout session for a paid tier.
// Body: { "tier": "basic" | "advanced" }. Response: { "sessionId": ... }.
func (h *Handler) checkout(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body struct {
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	tier, ok := ParseTier(body.Tier)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription tier"})
		return
	}
	if tier == TierFreemium {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot purchase free tier"})
		return
	}
	if h.stripe == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	benefits, err := h.repo.GetBenefits(tier)
	if err != nil || benefits == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription tier"})
		return
	}
	sessionID, err := h.stripe.CreateCheckoutSession(c.Request.Context(), user.ID, user.Email, user.Name, tier, benefits)
	if err != nil {
		log.Printf("[STRIPE][checkout] user=%s tier=%s: %v", user.ID, tier, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
}

// cancelSubscription cancels every active Stripe subscription for the caller.
// The stored downgrade to freemium arrives through the
// customer.subscription.deleted webhook.
func (h *Handler) cancelSubscription(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	count, err := h.engine.CancelAllSubscriptions(c.Request.Context(), user.Email)
	if err != nil {
		log.Printf("[SUBS][cancel] user=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel subscription"})
		return
	}
	message := "Subscriptions cancelled successfully"
	if count == 0 {
		message = "No active subscriptions found to cancel"
	} else if err := mailer.SendSubscriptionChanged(user.Email, user.Name, string(TierFreemium)); err != nil {
		log.Printf("[SUBS][cancel] notification failed for %s: %v", user.Email, err)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                true,
		"cancelledSubscriptions": count,
		"message":                message,
	})
}
