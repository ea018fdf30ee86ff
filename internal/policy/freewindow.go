// Package policy computes the initial free-message window and billing mode
// for a new chat from the resolved roles and the promotion decision.
package policy

import (
	"tokenchat/backend/internal/config"
	"tokenchat/backend/internal/models"
	"tokenchat/backend/internal/roles"
)

// Window is the free-window policy output applied to a new session. The
// allowance is per participant, not shared: the total free exchange in a
// STANDARD or PLATFORM_ONLY chat is twice QuotaPerParticipant.
type Window struct {
	BillingMode         models.BillingMode
	QuotaPerParticipant int
}

// ComputeFreeWindow applies the free-window decision table. promoGranted must
// be the promotion gate's output, computed before this function runs; the
// function itself is pure.
func ComputeFreeWindow(res roles.Resolution, promoGranted bool, cfg config.PolicyConfig) Window {
	if res.EarnerID == nil {
		// No one to credit: quota accounting still runs so the funnel behaves
		// uniformly, but the paid path never bills this chat.
		return Window{BillingMode: models.BillingStandard, QuotaPerParticipant: cfg.FreeQuotaNoEarner}
	}

	if promoGranted {
		return Window{BillingMode: models.BillingPromotionalFree, QuotaPerParticipant: models.QuotaUnlimited}
	}

	if !res.EarnModeOn {
		return Window{BillingMode: models.BillingPlatformOnly, QuotaPerParticipant: cfg.FreeQuotaEarnOff}
	}

	switch res.Tier {
	case models.TierRoyal:
		return Window{BillingMode: models.BillingStandard, QuotaPerParticipant: cfg.FreeQuotaRoyal}
	case models.TierLowPopularity:
		return Window{BillingMode: models.BillingStandard, QuotaPerParticipant: cfg.FreeQuotaLowPopularity}
	default:
		return Window{BillingMode: models.BillingStandard, QuotaPerParticipant: cfg.FreeQuotaStandard}
	}
}

// InitialState maps a billing mode to the session's initial funnel state.
func InitialState(mode models.BillingMode) models.ChatState {
	if mode == models.BillingPromotionalFree {
		return models.StateFullyFree
	}
	return models.StateFree
}
