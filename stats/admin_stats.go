package stats

import (
	"database/sql"
	"log"
	"net/http"
	"strings"
	"time"

	"legalai-backend/login"
	"legalai-backend/migrations"

	"github.com/gin-gonic/gin"
)

var db *sql.DB

// Init sets the DB connection for stats queries
func Init(database *sql.DB) {
	db = database
}

// AdminStatsResponse represents the response structure for admin dashboard
type AdminStatsResponse struct {
	Users          UserStats            `json:"users"`
	Financial      FinancialStats       `json:"financial"`
	Activity       ActivityStats        `json:"activity"`
	Tiers          []TierStats          `json:"tiers"`
	RecentActivity []RecentActivityItem `json:"recent_activity"`
}

type UserStats struct {
	Total         int     `json:"total"`
	Paying        int     `json:"paying"`
	NewThisMonth  int     `json:"new_this_month"`
	GrowthPercent float64 `json:"growth_percent"`
}

type FinancialStats struct {
	MonthlyRevenueCents int64   `json:"monthly_revenue_cents"`
	ConversionRate      float64 `json:"conversion_rate"`
}

type ActivityStats struct {
	TotalDocuments      int `json:"total_documents"`
	DocumentsThisMonth  int `json:"documents_this_month"`
	CompletedReviews    int `json:"completed_reviews"`
	OpenSupportTickets  int `json:"open_support_tickets"`
	TokensSpentThisWeek int `json:"tokens_spent_this_week"`
}

type TierStats struct {
	Tier            string  `json:"tier"`
	SubscriberCount int     `json:"subscriber_count"`
	Percentage      float64 `json:"percentage"`
}

type RecentActivityItem struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	UserEmail   string    `json:"user_email"`
}

// RegisterAdminRoutes registers admin statistics endpoints
func RegisterAdminRoutes(r *gin.Engine) {
	r.GET("/admin/stats", requireSuperAdmin(), getAdminStats)
	r.GET("/admin/stats/users/list", requireSuperAdmin(), getUsersList)
}

// requireSuperAdmin middleware verifies the user is a super_admin
func requireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
			c.Abort()
			return
		}
		email, ok := login.GetEmailFromToken(token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}
		user := migrations.GetUserByEmail(email)
		if user == nil || user.Role != "super_admin" {
			c.JSON(http.StatusForbidden, gin.H{"error": "super_admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// getAdminStats returns comprehensive statistics for the admin dashboard
func getAdminStats(c *gin.Context) {
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database not initialized"})
		return
	}

	response := AdminStatsResponse{
		Users:          getUserStats(),
		Financial:      getFinancialStats(),
		Activity:       getActivityStats(),
		Tiers:          getTierStats(),
		RecentActivity: getRecentActivity(10),
	}
	c.JSON(http.StatusOK, gin.H{"data": response})
}

func getUserStats() UserStats {
	stats := UserStats{}

	db.QueryRow("SELECT COUNT(*) FROM users").Scan(&stats.Total)

	// Paying users (active non-freemium subscriptions)
	db.QueryRow(`
		SELECT COUNT(*)
		FROM user_subscriptions
		WHERE is_active = TRUE AND subscription_tier != 'freemium'
	`).Scan(&stats.Paying)

	db.QueryRow(`
		SELECT COUNT(*)
		FROM users
		WHERE created_at >= DATE_FORMAT(NOW(), '%Y-%m-01')
	`).Scan(&stats.NewThisMonth)

	var newLastMonth int
	db.QueryRow(`
		SELECT COUNT(*)
		FROM users
		WHERE created_at >= DATE_FORMAT(DATE_SUB(NOW(), INTERVAL 1 MONTH), '%Y-%m-01')
		  AND created_at < DATE_FORMAT(NOW(), '%Y-%m-01')
	`).Scan(&newLastMonth)

	if newLastMonth > 0 {
		stats.GrowthPercent = ((float64(stats.NewThisMonth) - float64(newLastMonth)) / float64(newLastMonth)) * 100
	} else if stats.NewThisMonth > 0 {
		stats.GrowthPercent = 100
	}

	log.Printf("[ADMIN_STATS] Users: total=%d paying=%d new_month=%d growth=%.2f%%",
		stats.Total, stats.Paying, stats.NewThisMonth, stats.GrowthPercent)

	return stats
}

func getFinancialStats() FinancialStats {
	stats := FinancialStats{}

	// MRR from active paid subscriptions at fixed tier prices (cents)
	db.QueryRow(`
		SELECT IFNULL(SUM(CASE subscription_tier WHEN 'basic' THEN 999 WHEN 'advanced' THEN 2999 ELSE 0 END), 0)
		FROM user_subscriptions
		WHERE is_active = TRUE
	`).Scan(&stats.MonthlyRevenueCents)

	var paying, total int
	db.QueryRow(`SELECT COUNT(*) FROM user_subscriptions WHERE is_active = TRUE AND subscription_tier != 'freemium'`).Scan(&paying)
	db.QueryRow("SELECT COUNT(*) FROM users").Scan(&total)
	if total > 0 {
		stats.ConversionRate = (float64(paying) / float64(total)) * 100
	}

	log.Printf("[ADMIN_STATS] Financial: mrr_cents=%d conversion=%.2f%%", stats.MonthlyRevenueCents, stats.ConversionRate)

	return stats
}

func getActivityStats() ActivityStats {
	stats := ActivityStats{}

	db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&stats.TotalDocuments)
	db.QueryRow(`
		SELECT COUNT(*)
		FROM documents
		WHERE created_at >= DATE_FORMAT(NOW(), '%Y-%m-01')
	`).Scan(&stats.DocumentsThisMonth)
	db.QueryRow("SELECT COUNT(*) FROM ai_reviews").Scan(&stats.CompletedReviews)
	db.QueryRow("SELECT COUNT(*) FROM support_tickets WHERE status IN ('pending','in_progress')").Scan(&stats.OpenSupportTickets)
	db.QueryRow(`
		SELECT IFNULL(SUM(tokens_used), 0)
		FROM documents
		WHERE created_at >= DATE_SUB(NOW(), INTERVAL 7 DAY)
	`).Scan(&stats.TokensSpentThisWeek)

	log.Printf("[ADMIN_STATS] Activity: documents=%d month=%d reviews=%d open_tickets=%d tokens_week=%d",
		stats.TotalDocuments, stats.DocumentsThisMonth, stats.CompletedReviews, stats.OpenSupportTickets, stats.TokensSpentThisWeek)

	return stats
}

func getTierStats() []TierStats {
	rows, err := db.Query(`
		SELECT subscription_tier, COUNT(*)
		FROM user_subscriptions
		WHERE is_active = TRUE
		GROUP BY subscription_tier
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		log.Printf("[ADMIN_STATS] Error fetching tier stats: %v", err)
		return []TierStats{}
	}
	defer rows.Close()

	var tiers []TierStats
	var totalSubscribers int
	for rows.Next() {
		var t TierStats
		rows.Scan(&t.Tier, &t.SubscriberCount)
		totalSubscribers += t.SubscriberCount
		tiers = append(tiers, t)
	}
	for i := range tiers {
		if totalSubscribers > 0 {
			tiers[i].Percentage = (float64(tiers[i].SubscriberCount) / float64(totalSubscribers)) * 100
		}
	}
	return tiers
}

func getRecentActivity(limit int) []RecentActivityItem {
	rows, err := db.Query(`
		SELECT 'document' as type, u.email, d.name, d.created_at
		FROM documents d
		JOIN users u ON d.user_id = u.id
		ORDER BY d.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		log.Printf("[ADMIN_STATS] Error fetching recent activity: %v", err)
		return []RecentActivityItem{}
	}
	defer rows.Close()

	var activities []RecentActivityItem
	for rows.Next() {
		var activity RecentActivityItem
		var docName string
		rows.Scan(&activity.Type, &activity.UserEmail, &docName, &activity.Timestamp)
		activity.Description = "User " + activity.UserEmail + " uploaded " + docName
		activities = append(activities, activity)
	}
	return activities
}

// UserListItem represents a user in the list view
type UserListItem struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Tokens    int       `json:"tokens"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

// getUsersList returns a paginated list of users with their tier
// Query params: limit, offset, search, tier, sort_by, order
func getUsersList(c *gin.Context) {
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database not initialized"})
		return
	}

	limit := c.DefaultQuery("limit", "50")
	offset := c.DefaultQuery("offset", "0")
	search := c.Query("search")
	tier := c.Query("tier")
	sortBy := c.DefaultQuery("sort_by", "created_at")
	order := c.DefaultQuery("order", "DESC")

	query := `
		SELECT u.id, u.email, u.name, u.tokens,
			IFNULL(s.subscription_tier, 'freemium') as tier,
			u.created_at
		FROM users u
		LEFT JOIN user_subscriptions s ON u.id = s.user_id
		WHERE 1=1
	`
	args := []interface{}{}

	if search != "" {
		query += " AND (u.email LIKE ? OR u.name LIKE ?)"
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	if tier != "" {
		query += " AND s.subscription_tier = ?"
		args = append(args, tier)
	}

	// Validate sort_by to prevent SQL injection
	allowedSorts := map[string]bool{
		"created_at": true,
		"email":      true,
		"name":       true,
		"tokens":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	query += " ORDER BY u." + sortBy + " " + order + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		log.Printf("[USER_LIST] Error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer rows.Close()

	users := []UserListItem{}
	for rows.Next() {
		var u UserListItem
		rows.Scan(&u.ID, &u.Email, &u.Name, &u.Tokens, &u.Tier, &u.CreatedAt)
		users = append(users, u)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM users u WHERE 1=1"
	countArgs := []interface{}{}
	if search != "" {
		countQuery += " AND (u.email LIKE ? OR u.name LIKE ?)"
		pattern := "%" + search + "%"
		countArgs = append(countArgs, pattern, pattern)
	}
	db.QueryRow(countQuery, countArgs...).Scan(&total)

	c.JSON(http.StatusOK, gin.H{"data": users, "total": total})
}
