// Package discount derives referral discounts. Percentages are never stored;
// they are recomputed from the active referral count whenever needed.
package discount

const (
	// PercentPerReferral is the discount earned per active referral
	PercentPerReferral = 20
	// MaxPercent caps the discount; five active referrals make the subscription free
	MaxPercent = 100
	// ReferralEnrollmentFeePercent is the enrollment-fee discount granted to a referred family
	ReferralEnrollmentFeePercent = 20
)

// Percent returns the recurring discount earned by activeReferrals active referrals
func Percent(activeReferrals int) int {
	if activeReferrals <= 0 {
		return 0
	}
	p := activeReferrals * PercentPerReferral
	if p > MaxPercent {
		return MaxPercent
	}
	return p
}

// Apply returns baseCents reduced by percent, rounded down to whole cents
func Apply(baseCents int64, percent int) int64 {
	percent = clamp(percent)
	return baseCents * int64(100-percent) / 100
}

// IsFree reports whether percent covers the whole price
func IsFree(percent int) bool {
	return percent >= MaxPercent
}

func clamp(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > MaxPercent:
		return MaxPercent
	default:
		return percent
	}
}
