package models

// Quota event types pushed to participants while a chat moves through the funnel.
const (
	EventFreeQuotaLow       = "free_quota_low"
	EventFreeQuotaExhausted = "free_quota_exhausted"
	EventChatPaywalled      = "chat_paywalled"
	EventDepositRequired    = "deposit_required"
)

// QuotaEvent is the realtime notification payload fanned out over Redis
// Pub/Sub to whichever server instance holds the target user's connection.
// Delivery is fire-and-forget; it never blocks message processing.
type QuotaEvent struct {
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	Type   string `json:"type"`
	// Remaining is the sender's free messages left, when meaningful for Type.
	Remaining int `json:"remaining,omitempty"`
}
