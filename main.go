package main

import (
	"log"
	"os"

	"legalai-backend/conn"
	"legalai-backend/countries"
	"legalai-backend/documents"
	"legalai-backend/files"
	"legalai-backend/login"
	"legalai-backend/migrations"
	"legalai-backend/openai"
	"legalai-backend/profile"
	"legalai-backend/stats"
	"legalai-backend/storage"
	"legalai-backend/subscriptions"
	"legalai-backend/support"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("[MAIN] no .env file loaded: %v", err)
	}

	db, err := conn.NewMySQL()
	if err != nil {
		log.Fatalf("[MAIN] database connection failed: %v", err)
	}
	defer db.Close()

	migrations.Init(db)
	if err := migrations.Migrate(); err != nil {
		log.Fatalf("[MAIN] migration failed: %v", err)
	}
	if err := migrations.SeedSubscriptionBenefits(); err != nil {
		log.Fatalf("[MAIN] benefits seed failed: %v", err)
	}
	seedAdmin()

	stats.Init(db)

	subsRepo := subscriptions.NewRepository(db)
	stripeSvc := subscriptions.NewStripeFromEnv()
	if stripeSvc == nil {
		log.Printf("[MAIN] STRIPE_SECRET_KEY not set, billing disabled")
	}

	// Interface values must stay nil when the service is nil.
	var provider subscriptions.BillingProvider
	if stripeSvc != nil {
		provider = stripeSvc
	}
	engine := subscriptions.NewEngine(subsRepo, provider)

	var webhookRouter *subscriptions.WebhookRouter
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" && stripeSvc != nil {
		webhookRouter = subscriptions.NewWebhookRouter(engine, provider, subsRepo, secret)
	} else {
		log.Printf("[MAIN] STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	var uploader storage.Uploader
	cld, err := storage.NewCloudinaryFromEnv()
	if err != nil {
		log.Fatalf("[MAIN] cloudinary init failed: %v", err)
	}
	if cld != nil {
		uploader = cld
	} else {
		log.Printf("[MAIN] CLOUDINARY_URL not set, file storage disabled")
	}

	docsRepo := documents.NewRepository(db)
	docsHandler := documents.NewHandler(docsRepo, &files.LocalScanner{}, uploader, openai.NewClient())

	supportRepo := support.NewRepository(db)
	supportHandler := support.NewHandler(supportRepo, subsRepo)

	subsHandler := subscriptions.NewHandler(subsRepo, engine, stripeSvc, webhookRouter)
	profileHandler := profile.NewHandler(subsRepo, docsRepo)

	// Route packages resolve bearer tokens through injected closures so they
	// do not depend on the login package directly.
	subscriptions.RegisterUserResolver(func(token string) *subscriptions.AuthUser {
		if u := resolveUser(token); u != nil {
			return &subscriptions.AuthUser{ID: u.ID, Email: u.Email, Name: u.Name}
		}
		return nil
	})
	documents.RegisterUserResolver(func(token string) *documents.AuthUser {
		if u := resolveUser(token); u != nil {
			return &documents.AuthUser{ID: u.ID, Email: u.Email, Name: u.Name}
		}
		return nil
	})
	support.RegisterUserResolver(func(token string) *support.AuthUser {
		if u := resolveUser(token); u != nil {
			return &support.AuthUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
		}
		return nil
	})

	r := gin.Default()
	r.Use(login.TokenExpiryHeader())

	login.RegisterRoutes(r)
	countries.RegisterRoutes(r)
	subsHandler.RegisterRoutes(r)
	docsHandler.RegisterRoutes(r)
	supportHandler.RegisterRoutes(r)
	profileHandler.RegisterRoutes(r)
	stats.RegisterAdminRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("[MAIN] listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("[MAIN] server stopped: %v", err)
	}
}

func resolveUser(token string) *migrations.User {
	email, ok := login.GetEmailFromToken(token)
	if !ok {
		return nil
	}
	return migrations.GetUserByEmail(email)
}

func seedAdmin() {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[MAIN] admin password hash failed: %v", err)
		return
	}
	if err := migrations.SeedAdminUser(email, string(hash)); err != nil {
		log.Printf("[MAIN] admin seed failed: %v", err)
	}
}
