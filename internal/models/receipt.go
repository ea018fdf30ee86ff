package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageReceipt records the outcome of a processed message, keyed by the
// caller-supplied idempotency key. A client resend with the same key gets the
// stored outcome back without touching counters or the wallet again.
// Only definitive outcomes are recorded; rejected sends (quota exhausted,
// insufficient funds) leave no receipt so a later retry can re-evaluate.
type MessageReceipt struct {
	ID       string `gorm:"primaryKey" json:"id"`
	ChatID   string `gorm:"type:uuid;not null;uniqueIndex:ux_receipt_chat_sender_key,priority:1" json:"chat_id"`
	SenderID string `gorm:"type:text;not null;uniqueIndex:ux_receipt_chat_sender_key,priority:2" json:"sender_id"`
	// MessageKey is the message-level idempotency key supplied by the caller.
	MessageKey string `gorm:"type:text;not null;uniqueIndex:ux_receipt_chat_sender_key,priority:3" json:"message_key"`

	Allowed bool `gorm:"not null" json:"allowed"`
	Billed  bool `gorm:"not null" json:"billed"`

	WordCount   int   `json:"word_count"`
	GrossTokens int64 `json:"gross_tokens"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a receipt ID if one has not been set.
func (r *MessageReceipt) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}
