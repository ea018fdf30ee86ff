package storage

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"tokenchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Bounded retry for transient transaction conflicts. Chats are independent
// units of contention, so conflicts only come from the same chat's devices.
const (
	txMaxAttempts   = 3
	txRetryBackoff  = 50 * time.Millisecond
	chatLockTimeout = 5 * time.Second
)

// CreateSession persists a new chat session. If a session for the same
// participant pair already exists it is returned instead; the second return
// value reports whether a new row was created.
func (s *Service) CreateSession(session *models.ChatSession) (*models.ChatSession, bool, error) {
	session.ParticipantA, session.ParticipantB = models.OrderPair(session.ParticipantA, session.ParticipantB)

	err := s.DB.Create(session).Error
	if err == nil {
		return session, true, nil
	}
	if !isDuplicateKey(err) {
		log.Printf("ERROR: Failed to create session for pair (%s, %s): %v", session.ParticipantA, session.ParticipantB, err)
		return nil, false, err
	}

	var existing models.ChatSession
	if err := s.DB.Where("participant_a = ? AND participant_b = ?", session.ParticipantA, session.ParticipantB).
		First(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

// GetSession loads a chat session by its ID. Returns (nil, nil) when the
// session does not exist.
func (s *Service) GetSession(chatID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.DB.First(&session, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get session %s: %v", chatID, err)
		return nil, err
	}
	return &session, nil
}

// ConsumeFreeMessage runs the free-path step of the funnel inside one
// row-locked transaction: load the session FOR UPDATE, apply the sender's
// free-send attempt, re-check the joint-exhaustion transition, and write the
// idempotency receipt for a consumed send. The increment and the transition
// check share the same lock, so two devices can never both observe "not yet
// exhausted" on the final free message.
//
// Returns ErrDuplicateKey when the message key was already processed.
func (s *Service) ConsumeFreeMessage(ctx context.Context, chatID, senderID, messageKey string, wordCount int) (*FreeConsumeOutcome, error) {
	var out FreeConsumeOutcome

	run := func(ctx context.Context) error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var session models.ChatSession
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&session, "chat_id = ?", chatID).Error; err != nil {
				return err
			}

			switch session.ApplyFreeSend(senderID) {
			case models.FreeSendConsumed:
				if err := tx.Model(&models.ChatSession{}).
					Where("chat_id = ?", chatID).
					Updates(map[string]interface{}{
						"free_used_a": session.FreeUsedA,
						"free_used_b": session.FreeUsedB,
						"state":       session.State,
					}).Error; err != nil {
					return err
				}
				receipt := models.MessageReceipt{
					ChatID:     chatID,
					SenderID:   senderID,
					MessageKey: messageKey,
					Allowed:    true,
					Billed:     false,
					WordCount:  wordCount,
				}
				if err := tx.Create(&receipt).Error; err != nil {
					if isDuplicateKey(err) {
						return ErrDuplicateKey
					}
					return err
				}
				out = FreeConsumeOutcome{
					Consumed:  true,
					Remaining: session.RemainingFor(senderID),
					State:     session.State,
				}
				return nil

			case models.FreeSendAwaitingOtherParty:
				out = FreeConsumeOutcome{AwaitingOtherParty: true, State: session.State}
				return nil

			default: // FreeSendStateNotFree
				// The state may have just flipped to PAID under this lock.
				if err := tx.Model(&models.ChatSession{}).
					Where("chat_id = ?", chatID).
					Update("state", session.State).Error; err != nil {
					return err
				}
				out = FreeConsumeOutcome{State: session.State}
				return nil
			}
		})
	}

	var err error
	for attempt := 1; attempt <= txMaxAttempts; attempt++ {
		tctx, cancel := context.WithTimeout(ctx, chatLockTimeout)
		err = run(tctx)
		cancel()
		if err == nil || errors.Is(err, ErrDuplicateKey) || !isRetryableTxError(err) {
			return &out, err
		}
		log.Printf("WARNING: transaction conflict on chat %s (attempt %d/%d): %v", chatID, attempt, txMaxAttempts, err)
		time.Sleep(txRetryBackoff * time.Duration(attempt))
	}
	return nil, err
}

// GetProfile loads the monetization profile for a user. Returns (nil, nil)
// when no profile exists.
func (s *Service) GetProfile(userID string) (*models.ParticipantProfile, error) {
	var profile models.ParticipantProfile
	err := s.DB.First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Printf("ERROR: Failed to get profile %s: %v", userID, err)
		return nil, err
	}
	return &profile, nil
}

// SaveProfile upserts a participant profile.
func (s *Service) SaveProfile(profile *models.ParticipantProfile) error {
	return s.DB.Save(profile).Error
}

// GetReceipt returns the stored outcome for an idempotency key, or (nil, nil)
// when the key has not been processed.
func (s *Service) GetReceipt(chatID, senderID, messageKey string) (*models.MessageReceipt, error) {
	var receipt models.MessageReceipt
	err := s.DB.Where("chat_id = ? AND sender_id = ? AND message_key = ?", chatID, senderID, messageKey).
		First(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SaveReceipt records a definitive message outcome. Returns ErrDuplicateKey
// when the same key was already recorded.
func (s *Service) SaveReceipt(receipt *models.MessageReceipt) error {
	err := s.DB.Create(receipt).Error
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return err
}

// SaveSettlement appends one immutable settlement record. Returns
// ErrDuplicateKey when the message key was already settled.
func (s *Service) SaveSettlement(settlement *models.TokenSettlement) error {
	err := s.DB.Create(settlement).Error
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		log.Printf("ERROR: Failed to save settlement for chat %s: %v", settlement.ChatID, err)
	}
	return err
}

// HasSettlementForChat reports whether any settlement exists for a chat.
func (s *Service) HasSettlementForChat(chatID string) (bool, error) {
	var count int64
	err := s.DB.Model(&models.TokenSettlement{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count > 0, err
}

// CreatePromotionGrant records the audit row behind a promotional chat.
func (s *Service) CreatePromotionGrant(grant *models.PromotionGrant) error {
	err := s.DB.Create(grant).Error
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicateKey
	}
	return err
}

// GetPromotionGrantByChat returns the grant for a chat, or (nil, nil).
func (s *Service) GetPromotionGrantByChat(chatID string) (*models.PromotionGrant, error) {
	var grant models.PromotionGrant
	err := s.DB.First(&grant, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// DeactivatePromotionGrant marks a grant's concurrent slot as released.
func (s *Service) DeactivatePromotionGrant(chatID string) error {
	return s.DB.Model(&models.PromotionGrant{}).
		Where("chat_id = ?", chatID).
		Update("active", false).Error
}

// PruneStalePromotionDays deletes inactive grant rows whose day partition is
// older than the cutoff. The live counters expire on their own in Redis; this
// only reclaims audit rows.
func (s *Service) PruneStalePromotionDays(before time.Time) (int64, error) {
	res := s.DB.Where("active = ? AND grant_date < ?", false, before.UTC().Format("2006-01-02")).
		Delete(&models.PromotionGrant{})
	return res.RowsAffected, res.Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}

func isRetryableTxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access")
}
