package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingMode determines how tokens are routed once a chat becomes paid.
type BillingMode string

const (
	// BillingStandard splits gross tokens between the earner and the platform.
	BillingStandard BillingMode = "STANDARD"
	// BillingPromotionalFree marks a chat that is never billed for its lifetime.
	BillingPromotionalFree BillingMode = "PROMOTIONAL_FREE"
	// BillingPlatformOnly routes 100% of gross tokens to the platform
	// (the earner resolved a role but has their earn toggle off).
	BillingPlatformOnly BillingMode = "PLATFORM_ONLY"
)

// ChatState is the funnel state of a chat session.
type ChatState string

const (
	StateFree      ChatState = "FREE"
	StatePaid      ChatState = "PAID"
	StateFullyFree ChatState = "FULLY_FREE"
)

// QuotaUnlimited is the sentinel free-quota value for promotional chats.
const QuotaUnlimited = -1

// ChatSession represents one conversation between exactly two matched participants.
// It owns the free/paid funnel state and the per-participant free-message counters.
// A session is created exactly once per matched pair, at match time, and its
// counters are never reset for the lifetime of the chat.
type ChatSession struct {
	// ChatID is the unique identifier for the session (UUID).
	ChatID string `gorm:"primaryKey" json:"chat_id"`
	// ParticipantA and ParticipantB are stored in lexicographic order so the
	// unique pair index can enforce one session per matched pair.
	ParticipantA string `gorm:"not null;uniqueIndex:idx_session_pair,priority:1" json:"participant_a"`
	ParticipantB string `gorm:"not null;uniqueIndex:idx_session_pair,priority:2" json:"participant_b"`

	// EarnerID is the participant authorized to earn tokens in this chat, if any.
	EarnerID *string `gorm:"index" json:"earner_id,omitempty"`
	// PayerID is the participant billed once the chat becomes paid, if any.
	PayerID *string `json:"payer_id,omitempty"`
	// EarnerTier is the popularity tier snapshot captured at session creation.
	EarnerTier string `json:"earner_tier,omitempty"`

	BillingMode BillingMode `gorm:"type:text;not null" json:"billing_mode"`
	State       ChatState   `gorm:"type:text;not null" json:"state"`

	// Per-participant free-message allowances and usage counters.
	// QuotaUnlimited (-1) means the allowance never exhausts.
	FreeQuotaA int `gorm:"not null" json:"free_quota_a"`
	FreeQuotaB int `gorm:"not null" json:"free_quota_b"`
	FreeUsedA  int `gorm:"not null;default:0" json:"free_used_a"`
	FreeUsedB  int `gorm:"not null;default:0" json:"free_used_b"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a ChatID if one has not been set.
func (s *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ChatID == "" {
		s.ChatID = uuid.New().String()
	}
	return
}

// IsParticipant reports whether userID is one of the two chat participants.
func (s *ChatSession) IsParticipant(userID string) bool {
	return userID == s.ParticipantA || userID == s.ParticipantB
}

// OtherParticipant returns the participant opposite to userID.
func (s *ChatSession) OtherParticipant(userID string) string {
	if userID == s.ParticipantA {
		return s.ParticipantB
	}
	return s.ParticipantA
}

// QuotaFor returns the free-message allowance for the given participant.
func (s *ChatSession) QuotaFor(userID string) int {
	if userID == s.ParticipantA {
		return s.FreeQuotaA
	}
	return s.FreeQuotaB
}

// UsedFor returns the free messages consumed by the given participant.
func (s *ChatSession) UsedFor(userID string) int {
	if userID == s.ParticipantA {
		return s.FreeUsedA
	}
	return s.FreeUsedB
}

// RemainingFor returns the free messages the participant can still send,
// or QuotaUnlimited when the allowance never exhausts.
func (s *ChatSession) RemainingFor(userID string) int {
	quota := s.QuotaFor(userID)
	if quota == QuotaUnlimited {
		return QuotaUnlimited
	}
	remaining := quota - s.UsedFor(userID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExhaustedFor reports whether the participant has used up their own allowance.
func (s *ChatSession) ExhaustedFor(userID string) bool {
	quota := s.QuotaFor(userID)
	if quota == QuotaUnlimited {
		return false
	}
	return s.UsedFor(userID) >= quota
}

// BothExhausted reports whether both participants have used up their allowances.
// This is the joint-exhaustion condition that flips the chat to PAID.
func (s *ChatSession) BothExhausted() bool {
	return s.ExhaustedFor(s.ParticipantA) && s.ExhaustedFor(s.ParticipantB)
}

// FreeSendOutcome is the result of applying one free-send attempt to a session.
type FreeSendOutcome int

const (
	// FreeSendConsumed means one free-message unit was consumed by the sender.
	FreeSendConsumed FreeSendOutcome = iota
	// FreeSendAwaitingOtherParty means the sender's own quota is exhausted but
	// the chat is not yet paid because the other participant still has free
	// messages left. The message must be rejected, not billed.
	FreeSendAwaitingOtherParty
	// FreeSendStateNotFree means the session was not in the FREE state; the
	// caller should re-dispatch on the current state.
	FreeSendStateNotFree
)

// ApplyFreeSend mutates the session's counters for one message sent by senderID
// while in the FREE state. After any counter change the joint-exhaustion rule is
// re-checked and the session flips to PAID when both allowances are used up.
// Callers must run this inside the per-chat transaction so the increment and
// the transition check are isolated together.
func (s *ChatSession) ApplyFreeSend(senderID string) FreeSendOutcome {
	if s.State != StateFree {
		return FreeSendStateNotFree
	}

	if !s.ExhaustedFor(senderID) {
		if senderID == s.ParticipantA {
			s.FreeUsedA++
		} else {
			s.FreeUsedB++
		}
		if s.BothExhausted() {
			s.State = StatePaid
		}
		return FreeSendConsumed
	}

	// The sender is out of free messages. The other side's independent activity
	// may already have completed the joint exhaustion, so re-check here too.
	if s.BothExhausted() {
		s.State = StatePaid
		return FreeSendStateNotFree
	}
	return FreeSendAwaitingOtherParty
}

// OrderPair returns the two participant IDs in lexicographic order, the
// canonical storage order for the session pair index.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
