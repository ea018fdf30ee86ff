// Package config holds the monetization policy knobs: free-window allowances
// per tier, the revenue split, promotion quotas, and word-bucket pricing.
// Values are carried in an explicit versioned struct so a policy change is a
// config change, not a code change scattered through the state machine.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// WordBucket prices a paid message by its word count: a message with up to
// MaxWords words costs Tokens gross tokens. Buckets are checked in order.
type WordBucket struct {
	MaxWords int
	Tokens   int64
}

// PolicyConfig is the versioned policy snapshot consumed by the free-window
// policy, the promotion gate, and the funnel's paid path.
type PolicyConfig struct {
	Version string

	// Per-participant free-message allowances by earner tier.
	FreeQuotaRoyal         int
	FreeQuotaStandard      int
	FreeQuotaLowPopularity int
	// Allowance when the earner exists but has their earn toggle off.
	FreeQuotaEarnOff int
	// Allowance when neither side is eligible to earn.
	FreeQuotaNoEarner int

	// EarnerShareBps is the earner's share of gross tokens in basis points.
	EarnerShareBps int

	// Promotion gate limits.
	MaxPromoPerDay              int64
	MaxConcurrentPromoPerRegion int64
	PromoSwipeRightRateMax      float64
	PromoMatchesPerDayMax       int
	PromoActiveChatsPerWeekMax  int

	// LowQuotaWarnRemaining triggers a free_quota_low notification when a
	// sender's remaining allowance falls to this value or below.
	LowQuotaWarnRemaining int

	// WalletTimeout bounds every external wallet call; an expired call is
	// treated as not billed, not sent.
	WalletTimeout time.Duration

	// WordBuckets is the gross pricing table for paid messages, sorted by
	// MaxWords ascending. The last bucket's Tokens applies past its MaxWords.
	WordBuckets []WordBucket
}

// Default returns the policy with its tabulated default values.
func Default() PolicyConfig {
	return PolicyConfig{
		Version: "v1",

		FreeQuotaRoyal:         6,
		FreeQuotaStandard:      8,
		FreeQuotaLowPopularity: 10,
		FreeQuotaEarnOff:       10,
		FreeQuotaNoEarner:      10,

		EarnerShareBps: 6500,

		MaxPromoPerDay:              100,
		MaxConcurrentPromoPerRegion: 1000,
		PromoSwipeRightRateMax:      0.05,
		PromoMatchesPerDayMax:       1,
		PromoActiveChatsPerWeekMax:  2,

		LowQuotaWarnRemaining: 2,

		WalletTimeout: 3 * time.Second,

		WordBuckets: []WordBucket{
			{MaxWords: 10, Tokens: 5},
			{MaxWords: 25, Tokens: 10},
			{MaxWords: 50, Tokens: 18},
			{MaxWords: 0, Tokens: 30}, // MaxWords 0 = everything above the last bound
		},
	}
}

// Load returns the default policy with environment overrides applied.
func Load() PolicyConfig {
	cfg := Default()

	cfg.FreeQuotaRoyal = envInt("POLICY_FREE_QUOTA_ROYAL", cfg.FreeQuotaRoyal)
	cfg.FreeQuotaStandard = envInt("POLICY_FREE_QUOTA_STANDARD", cfg.FreeQuotaStandard)
	cfg.FreeQuotaLowPopularity = envInt("POLICY_FREE_QUOTA_LOW", cfg.FreeQuotaLowPopularity)
	cfg.FreeQuotaEarnOff = envInt("POLICY_FREE_QUOTA_EARN_OFF", cfg.FreeQuotaEarnOff)
	cfg.FreeQuotaNoEarner = envInt("POLICY_FREE_QUOTA_NO_EARNER", cfg.FreeQuotaNoEarner)
	cfg.EarnerShareBps = envInt("POLICY_EARNER_SHARE_BPS", cfg.EarnerShareBps)
	cfg.MaxPromoPerDay = int64(envInt("POLICY_MAX_PROMO_PER_DAY", int(cfg.MaxPromoPerDay)))
	cfg.MaxConcurrentPromoPerRegion = int64(envInt("POLICY_MAX_CONCURRENT_PROMO", int(cfg.MaxConcurrentPromoPerRegion)))
	cfg.LowQuotaWarnRemaining = envInt("POLICY_LOW_QUOTA_WARN", cfg.LowQuotaWarnRemaining)

	if v := os.Getenv("POLICY_WALLET_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("WARNING: invalid POLICY_WALLET_TIMEOUT %q, keeping %s", v, cfg.WalletTimeout)
		} else {
			cfg.WalletTimeout = d
		}
	}
	if v := os.Getenv("POLICY_VERSION"); v != "" {
		cfg.Version = v
	}
	return cfg
}

// GrossTokensFor returns the gross token price for a paid message of the
// given word count, per the word-bucket table.
func (c PolicyConfig) GrossTokensFor(wordCount int) int64 {
	if len(c.WordBuckets) == 0 {
		return 0
	}
	for _, b := range c.WordBuckets {
		if b.MaxWords > 0 && wordCount <= b.MaxWords {
			return b.Tokens
		}
	}
	return c.WordBuckets[len(c.WordBuckets)-1].Tokens
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARNING: invalid %s %q, keeping %d", key, v, fallback)
		return fallback
	}
	return n
}
