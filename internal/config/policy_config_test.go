package config_test

import (
	"testing"
	"time"

	"tokenchat/backend/internal/config"

	"github.com/stretchr/testify/assert"
)

// TestDefault_PolicyValues pins the tabulated policy defaults.
func TestDefault_PolicyValues(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, 6, cfg.FreeQuotaRoyal)
	assert.Equal(t, 8, cfg.FreeQuotaStandard)
	assert.Equal(t, 10, cfg.FreeQuotaLowPopularity)
	assert.Equal(t, 10, cfg.FreeQuotaEarnOff)
	assert.Equal(t, 10, cfg.FreeQuotaNoEarner)

	assert.Equal(t, 6500, cfg.EarnerShareBps)

	assert.Equal(t, int64(100), cfg.MaxPromoPerDay)
	assert.Equal(t, int64(1000), cfg.MaxConcurrentPromoPerRegion)
	assert.Equal(t, 0.05, cfg.PromoSwipeRightRateMax)
	assert.Equal(t, 1, cfg.PromoMatchesPerDayMax)
	assert.Equal(t, 2, cfg.PromoActiveChatsPerWeekMax)
}

// TestLoad_EnvOverrides verifies environment overrides take effect.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POLICY_FREE_QUOTA_ROYAL", "4")
	t.Setenv("POLICY_MAX_PROMO_PER_DAY", "50")
	t.Setenv("POLICY_WALLET_TIMEOUT", "5s")
	t.Setenv("POLICY_VERSION", "v2-test")

	cfg := config.Load()

	assert.Equal(t, 4, cfg.FreeQuotaRoyal)
	assert.Equal(t, int64(50), cfg.MaxPromoPerDay)
	assert.Equal(t, 5*time.Second, cfg.WalletTimeout)
	assert.Equal(t, "v2-test", cfg.Version)
}

// TestLoad_InvalidOverridesKeepDefaults verifies malformed env values are
// ignored rather than breaking startup.
func TestLoad_InvalidOverridesKeepDefaults(t *testing.T) {
	t.Setenv("POLICY_FREE_QUOTA_ROYAL", "six")
	t.Setenv("POLICY_WALLET_TIMEOUT", "fast")

	cfg := config.Load()

	assert.Equal(t, 6, cfg.FreeQuotaRoyal)
	assert.Equal(t, 3*time.Second, cfg.WalletTimeout)
}

// TestGrossTokensFor walks the word-bucket pricing table.
func TestGrossTokensFor(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		words  int
		tokens int64
	}{
		{1, 5},
		{10, 5},
		{11, 10},
		{25, 10},
		{26, 18},
		{50, 18},
		{51, 30},
		{500, 30},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.tokens, cfg.GrossTokensFor(tt.words), "words=%d", tt.words)
	}
}
