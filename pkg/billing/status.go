package billing

import (
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/stripe/stripe-go/v76"
)

// MapSubscriptionStatus translates a provider subscription status into the
// student's subscription status
func MapSubscriptionStatus(status string) string {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrial
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusPaused:
		return models.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return models.SubscriptionCancelled
	default:
		return models.SubscriptionNone
	}
}

// edgeStatusFor is the referral edge status mirroring a referred student's status
func edgeStatusFor(subscriptionStatus string) string {
	switch subscriptionStatus {
	case models.SubscriptionTrial:
		return models.ReferralTrial
	case models.SubscriptionActive:
		return models.ReferralActive
	case models.SubscriptionCancelled:
		return models.ReferralCancelled
	default:
		return models.ReferralPending
	}
}
