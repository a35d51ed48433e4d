package profile

import (
	"log"
	"net/http"
	"strings"
	"time"

	"legalai-backend/documents"
	"legalai-backend/login"
	"legalai-backend/migrations"
	"legalai-backend/subscriptions"

	"github.com/gin-gonic/gin"
)

// Handler aggregates account, subscription and document data so the frontend
// can render the dashboard with one roundtrip.
type Handler struct {
	subs *subscriptions.Repository
	docs *documents.Repository
}

func NewHandler(subs *subscriptions.Repository, docs *documents.Repository) *Handler {
	return &Handler{subs: subs, docs: docs}
}

// RegisterRoutes registers profile endpoints
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/me", h.getProfile)
}

func (h *Handler) getProfile(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}
	email, ok := login.GetEmailFromToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	user := migrations.GetUserByEmail(email)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}

	// Users created before the freemium backfill may lack a subscription row.
	if err := migrations.EnsureFreemiumSubscription(user.ID); err != nil {
		log.Printf("[PROFILE][GET] ensure freemium subscription failed for user=%s: %v", user.ID, err)
	}

	resp := gin.H{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"country":    user.Country,
		"tokens":     user.Tokens,
		"role":       user.Role,
		"created_at": user.CreatedAt.Format(time.RFC3339),
		"updated_at": user.UpdatedAt.Format(time.RFC3339),
	}
	if sub, err := h.subs.GetSubscriptionWithBenefits(user.ID); err == nil && sub != nil {
		resp["subscription"] = sub
	} else if err != nil {
		log.Printf("[PROFILE][GET] fetch subscription failed for user=%s: %v", user.ID, err)
	}
	if docs, err := h.docs.ListByUser(user.ID); err == nil {
		resp["document_count"] = len(docs)
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
