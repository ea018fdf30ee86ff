// Package wallet is the boundary with the external escrow ledger. The funnel
// debits the paying participant before a paid message is confirmed sent; the
// token router credits the earner's share. Both operations are idempotent
// given the message's own idempotency key.
package wallet

import "context"

// IdemKey builds the wallet-level idempotency key for one message. Message
// keys are caller-chosen and only unique within a chat, so the chat ID is
// folded in to keep unrelated chats from colliding at the wallet.
func IdemKey(chatID, messageKey string) string {
	return chatID + ":" + messageKey
}

// DebitResult is the typed outcome of a debit attempt. InsufficientFunds is
// normal control flow (the payer is prompted to deposit), not an error; errors
// are reserved for transport failures and timeouts, which the caller must
// treat as "not billed, not sent".
type DebitResult struct {
	Success           bool
	InsufficientFunds bool
	NewBalance        int64
}

// Ledger is the external wallet/escrow interface.
type Ledger interface {
	Debit(ctx context.Context, payerID string, amount int64, idemKey string) (DebitResult, error)
	Credit(ctx context.Context, earnerID string, amount int64, idemKey string) error
}
