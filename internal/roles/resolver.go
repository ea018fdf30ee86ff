// Package roles resolves which chat participant, if any, earns token revenue
// in a conversation and which one pays. It is a pure function over profile
// snapshots taken at match time.
package roles

import (
	"log"

	"tokenchat/backend/internal/models"
)

// Snapshot is the read-only monetization view of one participant, captured
// once at session creation.
type Snapshot struct {
	UserID     string
	CanEarn    bool
	EarnModeOn bool
	Tier       string
}

// SnapshotOf builds a resolver snapshot from a stored participant profile.
func SnapshotOf(p *models.ParticipantProfile) Snapshot {
	return Snapshot{
		UserID:     p.UserID,
		CanEarn:    p.CanEarn,
		EarnModeOn: p.EarnModeOn,
		Tier:       p.Tier,
	}
}

// Resolution names the earning and paying sides of a chat. EarnerID and
// PayerID are nil when neither participant is eligible to earn; such a chat
// is never billed. EarnModeOn false with a non-nil EarnerID drives the
// PLATFORM_ONLY billing mode, not the absence of billing.
type Resolution struct {
	EarnerID   *string
	PayerID    *string
	Tier       string
	EarnModeOn bool
}

// Resolve picks the earning participant between the two snapshots. At most
// one side is ever the earner. If both claim eligibility, which upstream
// invariants should prevent, the lexicographically smaller (more senior)
// account identifier wins and the anomaly is logged.
func Resolve(a, b Snapshot) Resolution {
	if a.CanEarn && b.CanEarn {
		log.Printf("WARNING: both participants %s and %s claim earner eligibility, tie-breaking by account id", a.UserID, b.UserID)
		if b.UserID < a.UserID {
			a, b = b, a
		}
		return resolution(a, b)
	}
	if a.CanEarn {
		return resolution(a, b)
	}
	if b.CanEarn {
		return resolution(b, a)
	}
	return Resolution{}
}

func resolution(earner, payer Snapshot) Resolution {
	earnerID := earner.UserID
	payerID := payer.UserID
	return Resolution{
		EarnerID:   &earnerID,
		PayerID:    &payerID,
		Tier:       earner.Tier,
		EarnModeOn: earner.EarnModeOn,
	}
}
