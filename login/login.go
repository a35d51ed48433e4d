package login

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mailer "legalai-backend/email"
	"legalai-backend/migrations"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// blacklist for manual logout (token -> expiry). Not persisted; acceptable for MVP.
var (
	blacklistMu sync.Mutex
	blacklist   = map[string]int64{}
)

// tokenPayload minimal JWT-like payload
type tokenPayload struct {
	Email string `json:"email"`
	Exp   int64  `json:"exp"`
	Rem   bool   `json:"rem"` // remember flag
	Jti   string `json:"jti"` // unique id
}

func sessionDurations(remember bool) time.Duration {
	defHours := 12
	if v := os.Getenv("SESSION_DEFAULT_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defHours = n
		}
	}
	remDays := 30
	if v := os.Getenv("SESSION_REMEMBER_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			remDays = n
		}
	}
	if remember {
		return time.Hour * 24 * time.Duration(remDays)
	}
	return time.Hour * time.Duration(defHours)
}

func sessionSecret() []byte {
	s := os.Getenv("SESSION_SECRET")
	if s == "" {
		s = "dev-insecure-secret"
	}
	return []byte(s)
}

func signToken(email string, dur time.Duration, remember bool) (string, int64, error) {
	exp := time.Now().Add(dur).Unix()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payloadBytes, _ := json.Marshal(tokenPayload{Email: email, Exp: exp, Rem: remember, Jti: generateJTI()})
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	mac := hmac.New(sha256.New, sessionSecret())
	mac.Write([]byte(header + "." + payload))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return header + "." + payload + "." + sig, exp, nil
}

func parseToken(token string) (tokenPayload, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return tokenPayload{}, false
	}
	unsigned := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, sessionSecret())
	mac.Write([]byte(unsigned))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return tokenPayload{}, false
	}
	pb, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return tokenPayload{}, false
	}
	var tp tokenPayload
	if err := json.Unmarshal(pb, &tp); err != nil {
		return tokenPayload{}, false
	}
	if tp.Exp < time.Now().Unix() {
		return tokenPayload{}, false
	}
	blacklistMu.Lock()
	exp, blk := blacklist[token]
	blacklistMu.Unlock()
	if blk && exp >= time.Now().Unix() {
		return tokenPayload{}, false
	}
	return tp, true
}

func generateJTI() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405")
	}
	return hex.EncodeToString(b)
}

// GetEmailFromToken validates signature + expiry and returns email
func GetEmailFromToken(token string) (string, bool) {
	tp, ok := parseToken(token)
	if !ok {
		return "", false
	}
	return tp.Email, true
}

func userResponse(u *migrations.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"country":    u.Country,
		"tokens":     u.Tokens,
		"role":       u.Role,
		"created_at": u.CreatedAt.Format(time.RFC3339),
		"updated_at": u.UpdatedAt.Format(time.RFC3339),
	}
}

func Handler(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	creds.Email = strings.TrimSpace(strings.ToLower(creds.Email))
	creds.Password = strings.TrimSpace(creds.Password)

	user := migrations.GetUserByEmail(creds.Email)
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	dur := sessionDurations(creds.Remember)
	token, exp, _ := signToken(user.Email, dur, creds.Remember)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": userResponse(user), "expires_at": exp, "remember": creds.Remember})
}

func SessionHandler(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	tp, ok := parseToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	user := migrations.GetUserByEmail(tp.Email)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": userResponse(user)})
}

// LogoutHandler invalidates the token
func LogoutHandler(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token required"})
		return
	}
	// Blacklist until its natural expiry (best effort)
	if tp, ok := parseToken(token); ok {
		blacklistMu.Lock()
		blacklist[token] = tp.Exp
		blacklistMu.Unlock()
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session closed"})
}

type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
}

func RegisterHandler(c *gin.Context) {
	var p RegisterPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	p.Name = strings.TrimSpace(p.Name)
	if p.Email == "" || p.Password == "" || p.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	if len(p.Password) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
		return
	}
	if exists, err := migrations.EmailExists(p.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not validate user"})
		return
	} else if exists {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Email is already registered"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
		return
	}
	user, err := migrations.CreateUser(p.Name, p.Email, string(hash), p.Country)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
		return
	}
	if err := migrations.EnsureFreemiumSubscription(user.ID); err != nil {
		log.Printf("[LOGIN][register] freemium setup failed for %s: %v", user.ID, err)
		if derr := migrations.DeleteUser(user.ID); derr != nil {
			log.Printf("[LOGIN][register] rollback failed for %s: %v", user.ID, derr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create user"})
		return
	}
	if err := mailer.SendWelcome(user.Email, user.Name); err != nil {
		log.Printf("[LOGIN][register] send welcome email failed for %s: %v", user.Email, err)
	}
	c.JSON(http.StatusCreated, gin.H{"user": userResponse(migrations.GetUserByID(user.ID))})
}

type ChangePasswordPayload struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func ChangePasswordHandler(c *gin.Context) {
	var p ChangePasswordPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	userEmail, ok := GetEmailFromToken(token)
	if !ok || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}
	if len(p.NewPassword) < 8 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 8 characters"})
		return
	}
	user := migrations.GetUserByEmail(userEmail)
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(p.OldPassword)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update password"})
		return
	}
	if err := migrations.UpdateUserPassword(user.ID, string(hash)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update password"})
		return
	}
	if err := mailer.SendPasswordChanged(user.Email, user.Name); err != nil {
		log.Printf("[LOGIN][password] send notification failed for %s: %v", user.Email, err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// RefreshHandler issues a new token preserving remember flag while previous token is blacklisted.
func RefreshHandler(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}
	tp, ok := parseToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	dur := time.Until(time.Unix(tp.Exp, 0))
	// Recalculate full duration based on remember flag if remaining <50% to extend period
	baseDur := sessionDurations(tp.Rem)
	if dur < baseDur/2 {
		dur = baseDur
	}
	newToken, newExp, _ := signToken(tp.Email, dur, tp.Rem)
	blacklistMu.Lock()
	blacklist[token] = tp.Exp
	blacklistMu.Unlock()
	c.JSON(http.StatusOK, gin.H{"token": newToken, "expires_at": newExp, "remember": tp.Rem})
}

// TokenExpiryHeader middleware adds X-Token-Expires-At when the token is valid.
func TokenExpiryHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token != "" {
			if tp, ok := parseToken(token); ok {
				c.Writer.Header().Set("X-Token-Expires-At", strconv.FormatInt(tp.Exp, 10))
				if tp.Rem {
					c.Writer.Header().Set("X-Token-Remember", "1")
				}
			}
		}
		c.Next()
	}
}

// RegisterRoutes wires the auth endpoints.
func RegisterRoutes(r *gin.Engine) {
	r.POST("/login", Handler)
	r.POST("/register", RegisterHandler)
	r.GET("/session", SessionHandler)
	r.POST("/logout", LogoutHandler)
	r.POST("/refresh", RefreshHandler)
	r.POST("/change-password", ChangePasswordHandler)
}
