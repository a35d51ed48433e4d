package support

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"legalai-backend/subscriptions"

	"github.com/gin-gonic/gin"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

type Ticket struct {
	ID        int       `json:"id"`
	UserID    string    `json:"user_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// HasPendingTicket reports whether the user already has an open ticket.
// One open ticket per user at a time.
func (r *Repository) HasPendingTicket(userID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(1) FROM support_tickets WHERE user_id = ? AND status IN ('pending','in_progress')",
		userID,
	).Scan(&count)
	return count > 0, err
}

func (r *Repository) Create(userID, subject, message, priority string) (*Ticket, error) {
	res, err := r.db.Exec(
		"INSERT INTO support_tickets (user_id, subject, message, priority, status) VALUES (?, ?, ?, ?, ?)",
		userID, subject, message, priority, StatusPending,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Ticket{ID: int(id), UserID: userID, Subject: subject, Message: message, Priority: priority, Status: StatusPending}, nil
}

func (r *Repository) ListByUser(userID string) ([]*Ticket, error) {
	rows, err := r.db.Query(`SELECT id, user_id, subject, message, priority, status, created_at, updated_at
		FROM support_tickets WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []*Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &t.Priority, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, &t)
	}
	return tickets, rows.Err()
}

func (r *Repository) UpdateStatus(ticketID int, status string) error {
	_, err := r.db.Exec("UPDATE support_tickets SET status = ?, updated_at = NOW() WHERE id = ?", status, ticketID)
	return err
}

// AuthUser mirrors the caller projection used by the other route packages.
type AuthUser struct {
	ID    string
	Email string
	Name  string
	Role  string
}

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

type Handler struct {
	repo *Repository
	subs *subscriptions.Repository
}

func NewHandler(repo *Repository, subs *subscriptions.Repository) *Handler {
	return &Handler{repo: repo, subs: subs}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/support/tickets", h.create)
	r.GET("/support/tickets", h.list)
	r.PUT("/support/tickets/:id/status", h.updateStatus)
}

// create opens a ticket with priority taken from the caller's tier benefits.
func (h *Handler) create(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body struct {
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	body.Subject = strings.TrimSpace(body.Subject)
	body.Message = strings.TrimSpace(body.Message)
	if body.Subject == "" || body.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject and message are required"})
		return
	}
	pending, err := h.repo.HasPendingTicket(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check tickets"})
		return
	}
	if pending {
		c.JSON(http.StatusConflict, gin.H{"error": "you already have an open ticket"})
		return
	}
	priority := "none"
	if sub, err := h.subs.GetSubscriptionWithBenefits(user.ID); err == nil && sub != nil && sub.Benefits != nil {
		priority = sub.Benefits.SupportPrioritization
	}
	ticket, err := h.repo.Create(user.ID, body.Subject, body.Message, priority)
	if err != nil {
		log.Printf("[SUPPORT][create] user=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ticket"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": ticket})
}

func (h *Handler) list(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	tickets, err := h.repo.ListByUser(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}
	if tickets == nil {
		tickets = []*Ticket{}
	}
	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

// updateStatus is restricted to admin roles.
func (h *Handler) updateStatus(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if user.Role != "admin" && user.Role != "super_admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket id"})
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	switch body.Status {
	case StatusPending, StatusInProgress, StatusResolved, StatusClosed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if err := h.repo.UpdateStatus(id, body.Status); err != nil {
		log.Printf("[SUPPORT][status] ticket=%d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
