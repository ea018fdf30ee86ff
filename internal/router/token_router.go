// Package router turns a gross token amount into the earner/platform split
// for a billed message, records the immutable settlement, and credits the
// earner's wallet. The split ratio lives here and nowhere else.
package router

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/storage"
	"tokenchat/backend/internal/wallet"
)

// ErrInvalidBillingModeForRouting is a programmer error: routing must never
// be invoked for a promotional chat. No tokens move when it is returned.
var ErrInvalidBillingModeForRouting = errors.New("invalid billing mode for routing")

// Split is the outcome of dividing gross tokens between earner and platform.
type Split struct {
	EarnerShare   int64
	PlatformShare int64
}

// ComputeSplit divides gross tokens by billing mode. STANDARD gives the
// earner shareBps basis points rounded half-up, with the remainder to the
// platform so the sum is always exactly the gross amount. PLATFORM_ONLY
// routes everything to the platform.
func ComputeSplit(gross int64, mode models.BillingMode, shareBps int) (Split, error) {
	switch mode {
	case models.BillingStandard:
		earner := (gross*int64(shareBps) + 5000) / 10000
		return Split{EarnerShare: earner, PlatformShare: gross - earner}, nil
	case models.BillingPlatformOnly:
		return Split{EarnerShare: 0, PlatformShare: gross}, nil
	default:
		return Split{}, fmt.Errorf("%w: %s", ErrInvalidBillingModeForRouting, mode)
	}
}

// SettlementStore persists settlement records.
type SettlementStore interface {
	SaveSettlement(settlement *models.TokenSettlement) error
}

// Router writes settlements and credits earner wallets.
type Router struct {
	Store    SettlementStore
	Wallet   wallet.Ledger
	ShareBps int
}

// NewRouter creates a token router with the given earner share.
func NewRouter(store SettlementStore, ledger wallet.Ledger, shareBps int) *Router {
	return &Router{Store: store, Wallet: ledger, ShareBps: shareBps}
}

// Route settles one billed message: computes the split, appends the
// settlement record keyed by (chat, message key), and credits the earner's
// share under the chat-scoped wallet idempotency key. A replayed key finds
// its settlement already written and moves no further tokens. A zero earner
// share skips the wallet call entirely.
func (r *Router) Route(ctx context.Context, chatID, messageKey string, gross int64, mode models.BillingMode, earnerID *string) (Split, error) {
	split, err := ComputeSplit(gross, mode, r.ShareBps)
	if err != nil {
		return Split{}, err
	}

	settlement := &models.TokenSettlement{
		ChatID:        chatID,
		MessageKey:    messageKey,
		GrossTokens:   gross,
		EarnerShare:   split.EarnerShare,
		PlatformShare: split.PlatformShare,
		BillingMode:   mode,
		EarnerID:      earnerID,
	}
	if err := r.Store.SaveSettlement(settlement); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Replay: the settlement already stands. The credit below is
			// idempotent by message key, so re-issuing it covers a retry
			// that failed between the settlement write and the credit.
			log.Printf("INFO: settlement replay for chat %s key %s", chatID, messageKey)
		} else {
			return Split{}, fmt.Errorf("save settlement: %w", err)
		}
	}

	if split.EarnerShare > 0 && earnerID != nil {
		if err := r.Wallet.Credit(ctx, *earnerID, split.EarnerShare, wallet.IdemKey(chatID, messageKey)); err != nil {
			// A failed credit must abort the whole message, not settle
			// silently with the ledger out of step.
			return Split{}, fmt.Errorf("credit earner %s: %w", *earnerID, err)
		}
	}
	return split, nil
}
