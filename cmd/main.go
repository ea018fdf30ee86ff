package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"tokenchat/backend/internal/api/handler"
	"tokenchat/backend/internal/config"
	"tokenchat/backend/internal/funnel"
	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/notifyhub"
	"tokenchat/backend/internal/promo"
	"tokenchat/backend/internal/storage"
	"tokenchat/backend/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies() (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost user=user password=password dbname=tokenchatdb port=5432 sslmode=disable"
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Migrations
	err = db.AutoMigrate(
		&models.ChatSession{},
		&models.ParticipantProfile{},
		&models.MessageReceipt{},
		&models.TokenSettlement{},
		&models.PromotionGrant{},
	)
	if err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting TokenChat funnel service...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}

	// 1. Dependencies and policy
	db, rdb := setupDependencies()
	s := storage.NewStorageService(db, rdb)
	cfg := config.Load()
	log.Printf("Policy config %s loaded (earner share %d bps)", cfg.Version, cfg.EarnerShareBps)

	// 2. Wallet ledger client
	walletURL := os.Getenv("WALLET_BASE_URL")
	if walletURL == "" {
		log.Fatal("WALLET_BASE_URL is not set!")
	}
	ledger := wallet.NewHTTPLedger(walletURL, cfg.WalletTimeout)

	// 3. Core services
	gate := promo.NewGate(s, s, cfg)
	funnelSvc := funnel.NewService(s, ledger, gate, s, cfg)

	// 4. Notify hub, with optional Telegram fallback for offline users
	hub := notifyhub.NewHub(s)
	if botToken := os.Getenv("TELEGRAM_BOT_TOKEN"); botToken != "" {
		fallback, err := notifyhub.NewTelegramFallback(botToken, s)
		if err != nil {
			log.Fatalf("Failed to start Telegram fallback: %v", err)
		}
		hub.Fallback = fallback
	}
	go hub.Run()

	// 5. Gin routing
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is not set!")
	}

	r := gin.Default()
	h := handler.NewHandler(funnelSvc, s, hub, []byte(jwtSecret))

	r.GET("/participant/token", h.GetParticipantToken)
	r.POST("/matches", h.CreateMatch)
	r.POST("/chats/:chat_id/messages", h.SendMessage)
	r.GET("/chats/:chat_id", h.GetChat)
	r.GET("/ws", h.ServeWebSocket)

	server := &http.Server{
		Addr:           ":8080",
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
