// Package promo decides whether a low-popularity earner qualifies for a fully
// free promotional chat. Grants are bounded per region and day by shared
// atomic counters; eligibility is computed from server-held metrics only and
// never from anything a client supplies.
package promo

import (
	"context"
	"errors"
	"log"
	"time"

	"tokenchat/backend/internal/config"
	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/storage"
)

// Counter key TTL covers the day partition plus a full day of clock skew;
// stale day keys expire on their own.
const dayKeyTTL = 48 * time.Hour

// Counters is the shared atomic-counter store (Redis in production).
type Counters interface {
	IncrCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
	DecrCounter(ctx context.Context, key string) (int64, error)
}

// Grants persists the per-chat audit rows behind promotional grants.
type Grants interface {
	CreatePromotionGrant(grant *models.PromotionGrant) error
	GetPromotionGrantByChat(chatID string) (*models.PromotionGrant, error)
	DeactivatePromotionGrant(chatID string) error
}

// Metrics are the earner's low-engagement signals, read from their profile.
type Metrics struct {
	SwipeRightRate     float64
	MatchesPerDay      int
	ActiveChatsPerWeek int
}

// MetricsOf extracts gate metrics from a stored profile.
func MetricsOf(p *models.ParticipantProfile) Metrics {
	return Metrics{
		SwipeRightRate:     p.SwipeRightRate,
		MatchesPerDay:      p.MatchesPerDay,
		ActiveChatsPerWeek: p.ActiveChatsPerWeek,
	}
}

// Gate is the promotion eligibility gate.
type Gate struct {
	Counters Counters
	Grants   Grants
	Cfg      config.PolicyConfig

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewGate creates a gate over the given counter and grant stores.
func NewGate(counters Counters, grants Grants, cfg config.PolicyConfig) *Gate {
	return &Gate{Counters: counters, Grants: grants, Cfg: cfg, Now: time.Now}
}

func grantedKey(region, day string) string { return "promo:granted:" + region + ":" + day }
func activeKey(region string) string       { return "promo:active:" + region }

// Check decides whether the candidate earner qualifies for a promotional
// chat. Any single low-engagement signal suffices; then both the daily grant
// counter and the regional concurrent counter must be under their caps. On
// success both counters are incremented and an audit row is written. Quota
// exhaustion is an expected outcome, reported as false, never as an error.
//
// The check is idempotent per chat: a chat that already holds a grant keeps
// it for its entire lifetime, even if the earner's metrics later improve.
func (g *Gate) Check(ctx context.Context, chatID, earnerID, region string, m Metrics) (bool, error) {
	if existing, err := g.Grants.GetPromotionGrantByChat(chatID); err != nil {
		return false, err
	} else if existing != nil {
		return true, nil
	}

	lowEngagement := m.SwipeRightRate <= g.Cfg.PromoSwipeRightRateMax ||
		m.MatchesPerDay <= g.Cfg.PromoMatchesPerDayMax ||
		m.ActiveChatsPerWeek <= g.Cfg.PromoActiveChatsPerWeekMax
	if !lowEngagement {
		return false, nil
	}

	day := g.Now().UTC().Format("2006-01-02")

	granted, err := g.Counters.IncrCounter(ctx, grantedKey(region, day), dayKeyTTL)
	if err != nil {
		return false, err
	}
	if granted > g.Cfg.MaxPromoPerDay {
		// Over the daily cap: roll the increment back so the counter keeps
		// reflecting actual grants.
		if _, derr := g.Counters.DecrCounter(ctx, grantedKey(region, day)); derr != nil {
			log.Printf("ERROR: failed to roll back daily promo counter for region %s: %v", region, derr)
		}
		return false, nil
	}

	active, err := g.Counters.IncrCounter(ctx, activeKey(region), 0)
	if err != nil {
		g.rollback(ctx, region, day, false)
		return false, err
	}
	if active > g.Cfg.MaxConcurrentPromoPerRegion {
		g.rollback(ctx, region, day, true)
		return false, nil
	}

	grant := &models.PromotionGrant{
		ChatID:    chatID,
		EarnerID:  earnerID,
		Region:    region,
		GrantDate: day,
		Active:    true,
	}
	if err := g.Grants.CreatePromotionGrant(grant); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race against a concurrent grant for the same chat: the
			// other writer's increments stand, ours roll back.
			g.rollback(ctx, region, day, true)
			return true, nil
		}
		g.rollback(ctx, region, day, true)
		return false, err
	}

	log.Printf("INFO: promotional chat granted: chat=%s earner=%s region=%s", chatID, earnerID, region)
	return true, nil
}

// Release frees the regional concurrent slot held by a promotional chat.
// Safe to call more than once; only an active grant releases a slot.
func (g *Gate) Release(ctx context.Context, chatID string) error {
	grant, err := g.Grants.GetPromotionGrantByChat(chatID)
	if err != nil {
		return err
	}
	if grant == nil || !grant.Active {
		return nil
	}
	if err := g.Grants.DeactivatePromotionGrant(chatID); err != nil {
		return err
	}
	if _, err := g.Counters.DecrCounter(ctx, activeKey(grant.Region)); err != nil {
		log.Printf("ERROR: failed to release active promo slot for region %s: %v", grant.Region, err)
		return err
	}
	return nil
}

// Abandon rolls back a grant that was issued for a chat which was never
// created (the matched pair already had a session). Both counters and the
// audit row are undone.
func (g *Gate) Abandon(ctx context.Context, chatID string) {
	grant, err := g.Grants.GetPromotionGrantByChat(chatID)
	if err != nil || grant == nil {
		return
	}
	if err := g.Grants.DeactivatePromotionGrant(chatID); err != nil {
		log.Printf("ERROR: failed to deactivate abandoned grant for chat %s: %v", chatID, err)
		return
	}
	g.rollback(ctx, grant.Region, grant.GrantDate, true)
}

func (g *Gate) rollback(ctx context.Context, region, day string, includeActive bool) {
	if includeActive {
		if _, err := g.Counters.DecrCounter(ctx, activeKey(region)); err != nil {
			log.Printf("ERROR: failed to roll back active promo counter for region %s: %v", region, err)
		}
	}
	if _, err := g.Counters.DecrCounter(ctx, grantedKey(region, day)); err != nil {
		log.Printf("ERROR: failed to roll back daily promo counter for region %s: %v", region, err)
	}
}
