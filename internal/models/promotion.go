package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PromotionGrant is the audit row behind a PROMOTIONAL_FREE chat. The live
// per-region counters (granted today, active concurrent) are kept in Redis;
// this row makes the grant idempotent per chat and lets the admin CLI release
// a regional slot when a promotional chat is closed.
type PromotionGrant struct {
	ID       string `gorm:"primaryKey" json:"id"`
	ChatID   string `gorm:"type:uuid;not null;uniqueIndex" json:"chat_id"`
	EarnerID string `gorm:"type:text;not null;index" json:"earner_id"`
	Region   string `gorm:"type:text;not null;index" json:"region"`
	// GrantDate is the UTC day partition the grant was counted under (2006-01-02).
	GrantDate string `gorm:"type:text;not null;index" json:"grant_date"`
	// Active is true while the promotional chat still occupies a concurrent slot.
	Active bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a grant ID if one has not been set.
func (g *PromotionGrant) BeforeCreate(tx *gorm.DB) (err error) {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return
}
