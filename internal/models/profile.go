package models

import (
	"github.com/lib/pq"
	"time"
)

// Popularity tiers for earning participants.
const (
	TierRoyal         = "ROYAL"
	TierStandard      = "STANDARD"
	TierLowPopularity = "LOW_POPULARITY"
)

// ParticipantProfile is the server-held monetization profile for a user.
// The funnel reads it once, at session creation, and treats the values as an
// immutable snapshot: tier or toggle changes mid-chat never retroactively
// affect an already-initialized session.
type ParticipantProfile struct {
	UserID string `gorm:"primaryKey" json:"user_id"`
	// TelegramID is set for users reachable over Telegram; quota notifications
	// fall back to a DM when no WebSocket client is connected.
	TelegramID string `gorm:"index"`

	Tier       string `gorm:"type:text;not null;default:STANDARD" json:"tier"`
	CanEarn    bool   `gorm:"not null;default:false" json:"can_earn"`
	EarnModeOn bool   `gorm:"not null;default:false" json:"earn_mode_on"`

	// Low-engagement signals consumed by the promotion eligibility gate.
	SwipeRightRate     float64 `json:"swipe_right_rate"`
	MatchesPerDay      int     `json:"matches_per_day"`
	ActiveChatsPerWeek int     `json:"active_chats_per_week"`

	Region    string         `gorm:"type:text;not null;index" json:"region"`
	Interests pq.StringArray `gorm:"type:text[]" json:"interests"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
