package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tokenchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrDuplicateKey is returned when an insert collides with a unique index:
// a second session for the same pair, a replayed receipt, or a replayed
// settlement. Callers treat it as "already done", not as a failure.
var ErrDuplicateKey = errors.New("duplicate key")

// QuotaEventChannel is the Redis Pub/Sub channel carrying quota events
// between server instances.
const QuotaEventChannel = "quota:events"

// FreeConsumeOutcome reports what the locked free-send transaction did.
type FreeConsumeOutcome struct {
	// Consumed is true when one free-message unit was charged to the sender.
	Consumed bool
	// Remaining is the sender's allowance left after the send
	// (models.QuotaUnlimited when the allowance never exhausts).
	Remaining int
	// AwaitingOtherParty is true when the sender is out of free messages but
	// the chat cannot flip to paid yet.
	AwaitingOtherParty bool
	// State is the session state as of the end of the transaction.
	State models.ChatState
}

type Storage interface {
	// Sessions
	CreateSession(session *models.ChatSession) (*models.ChatSession, bool, error)
	GetSession(chatID string) (*models.ChatSession, error)
	ConsumeFreeMessage(ctx context.Context, chatID, senderID, messageKey string, wordCount int) (*FreeConsumeOutcome, error)

	// Profiles
	GetProfile(userID string) (*models.ParticipantProfile, error)
	SaveProfile(profile *models.ParticipantProfile) error

	// Receipts (idempotency)
	GetReceipt(chatID, senderID, messageKey string) (*models.MessageReceipt, error)
	SaveReceipt(receipt *models.MessageReceipt) error

	// Settlements
	SaveSettlement(settlement *models.TokenSettlement) error
	HasSettlementForChat(chatID string) (bool, error)

	// Promotion grants
	CreatePromotionGrant(grant *models.PromotionGrant) error
	GetPromotionGrantByChat(chatID string) (*models.PromotionGrant, error)
	DeactivatePromotionGrant(chatID string) error
	PruneStalePromotionDays(before time.Time) (int64, error)

	// Promotion counters (Redis)
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
	DecrCounter(ctx context.Context, key string) (int64, error)

	// Realtime
	PublishQuotaEvent(ev models.QuotaEvent) error
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	Ctx   context.Context
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
		Ctx:   context.Background(),
	}
}

// IncrCounter atomically increments a shared counter. A positive ttl is set
// only when the increment created the key, so day-partitioned counters expire
// once their date is long past.
func (s *Service) IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.Redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && ttl > 0 {
		s.Redis.Expire(ctx, key, ttl)
	}
	return n, nil
}

// DecrCounter atomically decrements a shared counter. Used to roll back an
// increment that landed over a quota cap.
func (s *Service) DecrCounter(ctx context.Context, key string) (int64, error) {
	return s.Redis.Decr(ctx, key).Result()
}

// PublishQuotaEvent fans a quota event out over Redis Pub/Sub so the instance
// holding the target user's connection can push it.
func (s *Service) PublishQuotaEvent(ev models.QuotaEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.Redis.Publish(s.Ctx, QuotaEventChannel, string(payload)).Err()
}

// SubscribeQuotaEvents subscribes to the quota event channel.
func (s *Service) SubscribeQuotaEvents() *redis.PubSub {
	return s.Redis.Subscribe(s.Ctx, QuotaEventChannel)
}
