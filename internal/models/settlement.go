package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenSettlement is one immutable record per billed message, produced by the
// token router. It is append-only and feeds the external wallet ledger; the
// unique (chat_id, message_key) index makes settlement writes idempotent under
// retries. Message keys are caller-chosen and only unique within a chat, so
// the chat ID must be part of the dedup key.
type TokenSettlement struct {
	ID         string `gorm:"primaryKey" json:"id"`
	ChatID     string `gorm:"type:uuid;not null;uniqueIndex:ux_settlement_chat_key,priority:1" json:"chat_id"`
	MessageKey string `gorm:"type:text;not null;uniqueIndex:ux_settlement_chat_key,priority:2" json:"message_key"`

	GrossTokens   int64 `gorm:"not null" json:"gross_tokens"`
	EarnerShare   int64 `gorm:"not null" json:"earner_share"`
	PlatformShare int64 `gorm:"not null" json:"platform_share"`

	BillingMode BillingMode `gorm:"type:text;not null" json:"billing_mode"`
	EarnerID    *string     `gorm:"index" json:"earner_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates a settlement ID if one has not been set.
func (t *TokenSettlement) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return
}
