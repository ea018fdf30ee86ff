package funnel_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/promo"
	"tokenchat/backend/internal/storage"
	"tokenchat/backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// FakeStorage is a stateful in-memory implementation of storage.Storage.
// It reproduces the real store's semantics (unique keys, per-chat serialized
// free-send transactions) without a database.
type FakeStorage struct {
	mu sync.Mutex

	sessions    map[string]*models.ChatSession
	profiles    map[string]*models.ParticipantProfile
	receipts    map[string]*models.MessageReceipt
	settlements map[string]*models.TokenSettlement
	grants      map[string]*models.PromotionGrant
	counters    map[string]int64

	events []models.QuotaEvent

	// CreateSessionErr, when set, makes CreateSession fail.
	CreateSessionErr error
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{
		sessions:    make(map[string]*models.ChatSession),
		profiles:    make(map[string]*models.ParticipantProfile),
		receipts:    make(map[string]*models.MessageReceipt),
		settlements: make(map[string]*models.TokenSettlement),
		grants:      make(map[string]*models.PromotionGrant),
		counters:    make(map[string]int64),
	}
}

func receiptKey(chatID, senderID, messageKey string) string {
	return chatID + "|" + senderID + "|" + messageKey
}

func (f *FakeStorage) CreateSession(session *models.ChatSession) (*models.ChatSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateSessionErr != nil {
		return nil, false, f.CreateSessionErr
	}

	session.ParticipantA, session.ParticipantB = models.OrderPair(session.ParticipantA, session.ParticipantB)
	for _, existing := range f.sessions {
		if existing.ParticipantA == session.ParticipantA && existing.ParticipantB == session.ParticipantB {
			return existing, false, nil
		}
	}
	if session.ChatID == "" {
		session.ChatID = uuid.New().String()
	}
	copied := *session
	f.sessions[session.ChatID] = &copied
	return &copied, true, nil
}

func (f *FakeStorage) GetSession(chatID string) (*models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[chatID]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (f *FakeStorage) ConsumeFreeMessage(ctx context.Context, chatID, senderID, messageKey string, wordCount int) (*storage.FreeConsumeOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[chatID]
	if !ok {
		return nil, errors.New("session not found")
	}

	switch session.ApplyFreeSend(senderID) {
	case models.FreeSendConsumed:
		key := receiptKey(chatID, senderID, messageKey)
		if _, dup := f.receipts[key]; dup {
			return nil, storage.ErrDuplicateKey
		}
		f.receipts[key] = &models.MessageReceipt{
			ChatID:     chatID,
			SenderID:   senderID,
			MessageKey: messageKey,
			Allowed:    true,
			WordCount:  wordCount,
		}
		return &storage.FreeConsumeOutcome{
			Consumed:  true,
			Remaining: session.RemainingFor(senderID),
			State:     session.State,
		}, nil
	case models.FreeSendAwaitingOtherParty:
		return &storage.FreeConsumeOutcome{AwaitingOtherParty: true, State: session.State}, nil
	default:
		return &storage.FreeConsumeOutcome{State: session.State}, nil
	}
}

func (f *FakeStorage) GetProfile(userID string) (*models.ParticipantProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profiles[userID], nil
}

func (f *FakeStorage) SaveProfile(profile *models.ParticipantProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[profile.UserID] = profile
	return nil
}

func (f *FakeStorage) GetReceipt(chatID, senderID, messageKey string) (*models.MessageReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.receipts[receiptKey(chatID, senderID, messageKey)], nil
}

func (f *FakeStorage) SaveReceipt(receipt *models.MessageReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := receiptKey(receipt.ChatID, receipt.SenderID, receipt.MessageKey)
	if _, dup := f.receipts[key]; dup {
		return storage.ErrDuplicateKey
	}
	f.receipts[key] = receipt
	return nil
}

func (f *FakeStorage) SaveSettlement(settlement *models.TokenSettlement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := settlement.ChatID + "|" + settlement.MessageKey
	if _, dup := f.settlements[key]; dup {
		return storage.ErrDuplicateKey
	}
	f.settlements[key] = settlement
	return nil
}

func (f *FakeStorage) HasSettlementForChat(chatID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.settlements {
		if s.ChatID == chatID {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeStorage) CreatePromotionGrant(grant *models.PromotionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.grants[grant.ChatID]; dup {
		return storage.ErrDuplicateKey
	}
	f.grants[grant.ChatID] = grant
	return nil
}

func (f *FakeStorage) GetPromotionGrantByChat(chatID string) (*models.PromotionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants[chatID], nil
}

func (f *FakeStorage) DeactivatePromotionGrant(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.grants[chatID]; ok {
		g.Active = false
	}
	return nil
}

func (f *FakeStorage) PruneStalePromotionDays(before time.Time) (int64, error) {
	return 0, nil
}

func (f *FakeStorage) IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *FakeStorage) DecrCounter(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]--
	return f.counters[key], nil
}

func (f *FakeStorage) PublishQuotaEvent(ev models.QuotaEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// Events returns a copy of the published quota events.
func (f *FakeStorage) Events() []models.QuotaEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.QuotaEvent, len(f.events))
	copy(out, f.events)
	return out
}

// SettlementCountForChat counts the settlement records written for a chat.
func (f *FakeStorage) SettlementCountForChat(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.settlements {
		if s.ChatID == chatID {
			n++
		}
	}
	return n
}

// MockLedger is a testify mock for the external wallet.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Debit(ctx context.Context, payerID string, amount int64, idemKey string) (wallet.DebitResult, error) {
	args := m.Called(ctx, payerID, amount, idemKey)
	return args.Get(0).(wallet.DebitResult), args.Error(1)
}

func (m *MockLedger) Credit(ctx context.Context, earnerID string, amount int64, idemKey string) error {
	args := m.Called(ctx, earnerID, amount, idemKey)
	return args.Error(0)
}

// StubGate is a canned promotion gate.
type StubGate struct {
	Granted   bool
	Abandoned []string
}

func (g *StubGate) Check(ctx context.Context, chatID, earnerID, region string, m promo.Metrics) (bool, error) {
	return g.Granted, nil
}

func (g *StubGate) Abandon(ctx context.Context, chatID string) {
	g.Abandoned = append(g.Abandoned, chatID)
}
