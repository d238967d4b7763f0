package domain

// Monthly generation caps per subscription tier, aligned to the Stripe
// billing cycle. Unknown or missing tiers fall back to the trial cap.
var tierCaps = map[SubscriptionTier]int{
	TierTrial:    5,
	TierStarter:  25,
	TierPro:      60,
	TierBusiness: 175,
}

// CapForTier returns the monthly generation cap for a tier.
func CapForTier(tier SubscriptionTier) int {
	if cap, ok := tierCaps[tier]; ok {
		return cap
	}
	return tierCaps[TierTrial]
}

// UsageRecord is the read-only usage view returned to clients.
type UsageRecord struct {
	Used      int    `json:"used"`
	Cap       int    `json:"cap"`
	Remaining int    `json:"remaining"`
	Month     string `json:"month"` // calendar-month key, e.g. "2026-08"
}

// UsageCheck is the result of a metered check-and-increment.
type UsageCheck struct {
	Allowed     bool
	Used        int // after increment when allowed, unchanged when not
	Cap         int
	PeriodStart int64
	PeriodEnd   int64
}
