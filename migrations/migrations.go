package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	Country   string    `db:"country"`
	Tokens    int       `db:"tokens"`
	Password  string    `db:"password"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

var db *sql.DB

// Init sets the DB connection for migrations and queries
func Init(database *sql.DB) {
	db = database
}

// Migrate creates required tables if they do not exist
func Migrate() error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id CHAR(36) PRIMARY KEY,
			email VARCHAR(191) NOT NULL UNIQUE,
			name VARCHAR(191) NOT NULL,
			country VARCHAR(100) NULL,
			tokens INT NOT NULL DEFAULT 0,
			password VARCHAR(191) NOT NULL,
			role VARCHAR(50) NOT NULL DEFAULT 'user',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS subscription_benefits (
			tier ENUM('freemium','basic','advanced') PRIMARY KEY,
			monthly_tokens INT NOT NULL,
			upload_limit INT NULL,
			human_review_access BOOLEAN NOT NULL DEFAULT FALSE,
			support_prioritization ENUM('none','standard','priority') NOT NULL DEFAULT 'none',
			token_purchase_discount INT NOT NULL DEFAULT 0
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS user_subscriptions (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL UNIQUE,
			subscription_tier ENUM('freemium','basic','advanced') NOT NULL DEFAULT 'freemium',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			stripe_subscription_id VARCHAR(191) NULL,
			subscribed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_token_reward_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			next_token_reward_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS documents (
			id CHAR(36) PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			name VARCHAR(255) NOT NULL,
			content LONGTEXT NULL,
			file_type VARCHAR(100) NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			file_url VARCHAR(512) NOT NULL DEFAULT '',
			storage_id VARCHAR(255) NOT NULL DEFAULT '',
			page_count INT NOT NULL DEFAULT 0,
			word_count INT NOT NULL DEFAULT 0,
			tokens_used INT NOT NULL DEFAULT 0,
			status ENUM('pending','processing','completed','failed') NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			INDEX idx_documents_user (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS ai_reviews (
			id INT AUTO_INCREMENT PRIMARY KEY,
			document_id CHAR(36) NOT NULL UNIQUE,
			summary TEXT NOT NULL,
			good_clauses JSON NULL,
			concerning_clauses JSON NULL,
			problematic_clauses JSON NULL,
			legal_implications TEXT NULL,
			overall_status ENUM('good','concerning','problematic') NOT NULL DEFAULT 'good',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			document_id CHAR(36) NOT NULL,
			ai_review_id INT NOT NULL,
			feedback_type ENUM('thumbs_up','thumbs_down') NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY ux_feedback_user_review (user_id, ai_review_id),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (ai_review_id) REFERENCES ai_reviews(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
		`CREATE TABLE IF NOT EXISTS support_tickets (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id CHAR(36) NOT NULL,
			subject VARCHAR(255) NOT NULL,
			message TEXT NOT NULL,
			priority ENUM('none','standard','priority') NOT NULL DEFAULT 'none',
			status ENUM('pending','in_progress','resolved','closed') NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			INDEX idx_tickets_user (user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SeedSubscriptionBenefits inserts the three tier rows if the table is empty.
// This is reference data; the reconciliation engine treats a missing row as a
// configuration error.
func SeedSubscriptionBenefits() error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM subscription_benefits").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	seeds := []string{
		`INSERT INTO subscription_benefits (tier, monthly_tokens, upload_limit, human_review_access, support_prioritization, token_purchase_discount)
			VALUES ('freemium', 50, 5, FALSE, 'none', 0)`,
		`INSERT INTO subscription_benefits (tier, monthly_tokens, upload_limit, human_review_access, support_prioritization, token_purchase_discount)
			VALUES ('basic', 500, 50, FALSE, 'standard', 10)`,
		`INSERT INTO subscription_benefits (tier, monthly_tokens, upload_limit, human_review_access, support_prioritization, token_purchase_discount)
			VALUES ('advanced', 2000, NULL, TRUE, 'priority', 20)`,
	}
	for _, stmt := range seeds {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SeedAdminUser inserts a super_admin account if ADMIN_EMAIL/ADMIN_PASSWORD
// are configured and no such user exists. The password must already be a
// bcrypt hash produced by the caller.
func SeedAdminUser(email, passwordHash string) error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	if email == "" || passwordHash == "" {
		return nil
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM users WHERE email = ?", email).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := db.Exec(
		"INSERT INTO users (id, email, name, tokens, password, role) VALUES (?, ?, ?, 0, ?, ?)",
		uuid.NewString(), email, "Administrator", passwordHash, "super_admin",
	)
	return err
}

// GetUserByEmail retrieves a user from DB by email
func GetUserByEmail(email string) *User {
	if db == nil {
		return nil
	}
	row := db.QueryRow("SELECT id, email, name, IFNULL(country,''), tokens, password, role, created_at, updated_at FROM users WHERE email = ? LIMIT 1", email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Country, &u.Tokens, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil
	}
	return &u
}

// GetUserByID retrieves a user by its ID
func GetUserByID(id string) *User {
	if db == nil {
		return nil
	}
	row := db.QueryRow("SELECT id, email, name, IFNULL(country,''), tokens, password, role, created_at, updated_at FROM users WHERE id = ? LIMIT 1", id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Country, &u.Tokens, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil
	}
	return &u
}

// CreateUser inserts a new user record with a zero token balance; the
// freemium subscription created right after grants the initial allotment.
func CreateUser(name, email, passwordHash, country string) (*User, error) {
	if db == nil {
		return nil, fmt.Errorf("db is not initialized")
	}
	id := uuid.NewString()
	var countryArg interface{}
	if country != "" {
		countryArg = country
	}
	_, err := db.Exec(
		"INSERT INTO users (id, email, name, country, tokens, password, role) VALUES (?, ?, ?, ?, 0, ?, 'user')",
		id, email, name, countryArg, passwordHash,
	)
	if err != nil {
		return nil, err
	}
	return &User{ID: id, Email: email, Name: name, Country: country, Role: "user"}, nil
}

// DeleteUser removes a user row; used to roll back a half-finished
// registration.
func DeleteUser(id string) error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	_, err := db.Exec("DELETE FROM users WHERE id = ?", id)
	return err
}

// UpdateUserPassword updates the password hash for the given user id
func UpdateUserPassword(id, passwordHash string) error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	_, err := db.Exec("UPDATE users SET password = ?, updated_at = NOW() WHERE id = ?", passwordHash, id)
	return err
}

// EmailExists checks if a user with the given email exists
func EmailExists(email string) (bool, error) {
	if db == nil {
		return false, fmt.Errorf("db is not initialized")
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM users WHERE email = ?", email).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnsureFreemiumSubscription creates the freemium subscription row for a new
// user and grants the freemium monthly token allotment from the benefits
// table. No-op when the user already has a subscription row.
func EnsureFreemiumSubscription(userID string) error {
	if db == nil {
		return fmt.Errorf("db is not initialized")
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(1) FROM user_subscriptions WHERE user_id = ?", userID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	var monthlyTokens int
	if err := db.QueryRow("SELECT monthly_tokens FROM subscription_benefits WHERE tier = 'freemium' LIMIT 1").Scan(&monthlyTokens); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("freemium benefits row is not seeded")
		}
		return err
	}
	if _, err := db.Exec(`INSERT INTO user_subscriptions (user_id, subscription_tier, is_active, subscribed_at, last_token_reward_at, next_token_reward_at)
		VALUES (?, 'freemium', TRUE, NOW(), NOW(), DATE_ADD(NOW(), INTERVAL 30 DAY))`, userID); err != nil {
		return err
	}
	_, err := db.Exec("UPDATE users SET tokens = ?, updated_at = NOW() WHERE id = ?", monthlyTokens, userID)
	return err
}
