package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tokenchat/backend/internal/config"
	"tokenchat/backend/internal/promo"
	"tokenchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	}

	storageSvc := storage.NewStorageService(db, rdb)

	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "prune-promo-days":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin prune-promo-days <before-date YYYY-MM-DD>")
			os.Exit(1)
		}
		before, err := time.Parse("2006-01-02", os.Args[2])
		if err != nil {
			fmt.Println("Invalid date. Use YYYY-MM-DD.")
			os.Exit(1)
		}
		pruned, err := storageSvc.PruneStalePromotionDays(before)
		if err != nil {
			log.Fatalf("Error pruning promotion days: %v", err)
		}
		fmt.Printf("Pruned %d stale promotion grant rows.\n", pruned)
	case "release-promo":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin release-promo <chat_id>")
			os.Exit(1)
		}
		if rdb == nil {
			fmt.Println("REDIS_ADDR must be set for release-promo.")
			os.Exit(1)
		}
		gate := promo.NewGate(storageSvc, storageSvc, config.Load())
		if err := gate.Release(context.Background(), os.Args[2]); err != nil {
			log.Fatalf("Error releasing promo slot: %v", err)
		}
		fmt.Printf("Promotional slot for chat %s has been released.\n", os.Args[2])
	case "inspect":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin inspect <chat_id>")
			os.Exit(1)
		}
		if err := inspectChat(storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error inspecting chat: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		os.Exit(1)
	}
}

func inspectChat(s storage.Storage, chatID string) error {
	session, err := s.GetSession(chatID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("chat %s not found", chatID)
	}

	fmt.Printf("Chat %s\n", session.ChatID)
	fmt.Printf("  participants: %s / %s\n", session.ParticipantA, session.ParticipantB)
	fmt.Printf("  state: %s  billing mode: %s\n", session.State, session.BillingMode)
	fmt.Printf("  free used: A %d/%d  B %d/%d\n",
		session.FreeUsedA, session.FreeQuotaA, session.FreeUsedB, session.FreeQuotaB)
	if session.EarnerID != nil {
		fmt.Printf("  earner: %s (tier %s)\n", *session.EarnerID, session.EarnerTier)
	}

	settled, err := s.HasSettlementForChat(chatID)
	if err != nil {
		return err
	}
	fmt.Printf("  has settlements: %v\n", settled)

	grant, err := s.GetPromotionGrantByChat(chatID)
	if err != nil {
		return err
	}
	if grant != nil {
		fmt.Printf("  promotion grant: region=%s date=%s active=%v\n", grant.Region, grant.GrantDate, grant.Active)
	}
	return nil
}
