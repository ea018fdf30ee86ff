package router_test

import (
	"context"
	"testing"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/router"
	"tokenchat/backend/internal/storage"
	"tokenchat/backend/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSettlementStore struct {
	mock.Mock
}

func (m *MockSettlementStore) SaveSettlement(settlement *models.TokenSettlement) error {
	args := m.Called(settlement)
	return args.Error(0)
}

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

// TestComputeSplit_StandardConservation verifies earner share rounding and
// exact conservation for the standard 65/35 split.
func TestComputeSplit_StandardConservation(t *testing.T) {
	tests := []struct {
		gross      int64
		wantEarner int64
	}{
		{100, 65},
		{10, 7},   // 6.5 rounds half-up
		{1, 1},    // 0.65 rounds up
		{3, 2},    // 1.95 rounds up
		{7, 5},    // 4.55 rounds up
		{33, 21},  // 21.45 rounds down
		{0, 0},
		{999, 649}, // 649.35 rounds down
	}

	for _, tt := range tests {
		split, err := router.ComputeSplit(tt.gross, models.BillingStandard, 6500)

		assert.NoError(t, err)
		assert.Equal(t, tt.wantEarner, split.EarnerShare, "gross=%d", tt.gross)
		assert.Equal(t, tt.gross, split.EarnerShare+split.PlatformShare, "split must conserve gross=%d", tt.gross)
	}
}

// TestComputeSplit_PlatformOnly verifies 100% routes to the platform.
func TestComputeSplit_PlatformOnly(t *testing.T) {
	split, err := router.ComputeSplit(100, models.BillingPlatformOnly, 6500)

	assert.NoError(t, err)
	assert.Zero(t, split.EarnerShare)
	assert.Equal(t, int64(100), split.PlatformShare)
}

// TestComputeSplit_PromotionalModeFailsLoudly verifies routing a promotional
// chat is a loud programmer error.
func TestComputeSplit_PromotionalModeFailsLoudly(t *testing.T) {
	_, err := router.ComputeSplit(100, models.BillingPromotionalFree, 6500)

	assert.ErrorIs(t, err, router.ErrInvalidBillingModeForRouting)
}

// TestRoute_StandardWritesSettlementAndCredits verifies the full routing
// side effects: one settlement record and one earner credit.
func TestRoute_StandardWritesSettlementAndCredits(t *testing.T) {
	// Arrange
	store := new(MockSettlementStore)
	ledger := new(MockLedger)
	r := router.NewRouter(store, ledger, 6500)
	earnerID := "creator_1"

	store.On("SaveSettlement", mock.MatchedBy(func(s *models.TokenSettlement) bool {
		return s.ChatID == "chat_1" && s.MessageKey == "msg_key_1" &&
			s.GrossTokens == 100 && s.EarnerShare == 65 && s.PlatformShare == 35
	})).Return(nil).Once()
	ledger.On("Credit", mock.Anything, "creator_1", int64(65), wallet.IdemKey("chat_1", "msg_key_1")).Return(nil).Once()

	// Act
	split, err := r.Route(context.Background(), "chat_1", "msg_key_1", 100, models.BillingStandard, &earnerID)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, int64(65), split.EarnerShare)
	store.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

// TestRoute_PlatformOnlySkipsWalletCall verifies no credit call happens when
// the earner share is zero.
func TestRoute_PlatformOnlySkipsWalletCall(t *testing.T) {
	// Arrange
	store := new(MockSettlementStore)
	ledger := new(MockLedger)
	r := router.NewRouter(store, ledger, 6500)
	earnerID := "creator_1"

	store.On("SaveSettlement", mock.AnythingOfType("*models.TokenSettlement")).Return(nil).Once()

	// Act
	split, err := r.Route(context.Background(), "chat_1", "msg_key_2", 100, models.BillingPlatformOnly, &earnerID)

	// Assert
	assert.NoError(t, err)
	assert.Zero(t, split.EarnerShare)
	assert.Equal(t, int64(100), split.PlatformShare)
	store.AssertExpectations(t)
	ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestRoute_ReplayedKeyDoesNotDoubleSettle verifies a duplicate settlement
// write is treated as a replay: the credit is re-issued (idempotent at the
// wallet) but no error surfaces and no second record is written.
func TestRoute_ReplayedKeyDoesNotDoubleSettle(t *testing.T) {
	// Arrange
	store := new(MockSettlementStore)
	ledger := new(MockLedger)
	r := router.NewRouter(store, ledger, 6500)
	earnerID := "creator_1"

	store.On("SaveSettlement", mock.AnythingOfType("*models.TokenSettlement")).
		Return(storage.ErrDuplicateKey).Once()
	ledger.On("Credit", mock.Anything, "creator_1", int64(65), wallet.IdemKey("chat_1", "msg_key_3")).Return(nil).Once()

	// Act
	split, err := r.Route(context.Background(), "chat_1", "msg_key_3", 100, models.BillingStandard, &earnerID)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, int64(65), split.EarnerShare)
	store.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

// TestRoute_CreditFailureAborts verifies a failed wallet credit propagates an
// error so the message is not confirmed with the ledger out of step.
func TestRoute_CreditFailureAborts(t *testing.T) {
	// Arrange
	store := new(MockSettlementStore)
	ledger := new(MockLedger)
	r := router.NewRouter(store, ledger, 6500)
	earnerID := "creator_1"

	store.On("SaveSettlement", mock.AnythingOfType("*models.TokenSettlement")).Return(nil).Once()
	ledger.On("Credit", mock.Anything, "creator_1", int64(65), wallet.IdemKey("chat_1", "msg_key_4")).
		Return(assert.AnError).Once()

	// Act
	_, err := r.Route(context.Background(), "chat_1", "msg_key_4", 100, models.BillingStandard, &earnerID)

	// Assert
	assert.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
