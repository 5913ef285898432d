package billing

import (
	"context"
	"errors"

	"github.com/am0414/success-academy-international/pkg/discount"
	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/stripe/stripe-go/v76"
)

// UpdateReferrerDiscount recomputes the discount of the student owning code
// and pushes it to their subscription. Unknown codes and referrers without a
// provider subscription are skipped.
func (s *Service) UpdateReferrerDiscount(ctx context.Context, code string) error {
	rc, err := s.repos.ReferralCodes().GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("referral code not found for discount update", "code", code)
			return nil
		}
		return err
	}

	referrer, err := s.repos.Students().GetByID(ctx, rc.StudentID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("referrer not found for discount update", "code", code, "student_id", rc.StudentID)
			return nil
		}
		return err
	}

	return s.SyncStudentDiscount(ctx, referrer)
}

// UpdateReferrerDiscounts pushes the discount for each code
func (s *Service) UpdateReferrerDiscounts(ctx context.Context, codes []string) error {
	for _, code := range codes {
		if err := s.UpdateReferrerDiscount(ctx, code); err != nil {
			return err
		}
	}
	return nil
}

// SyncStudentDiscount makes the coupon on the student's subscription match
// their current active referral count and stores the resulting monthly price.
func (s *Service) SyncStudentDiscount(ctx context.Context, student *models.Student) error {
	if !student.HasProviderSubscription() {
		return nil
	}
	if student.SubscriptionStatus == models.SubscriptionCancelled {
		return nil
	}

	active, err := s.repos.Referrals().CountActiveByReferrer(ctx, student.ID)
	if err != nil {
		return err
	}
	percent := discount.Percent(active)

	subscriptionID := student.StripeSubscriptionID.String
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.NewProviderError("get subscription", err)
	}
	if stripe.SubscriptionStatus(sub.Status) == stripe.SubscriptionStatusCanceled {
		return nil
	}

	target := ""
	if percent > 0 {
		target = CouponID(percent)
	}

	if sub.CouponID != target {
		if sub.CouponID != "" {
			if err := s.provider.DeleteSubscriptionDiscount(ctx, subscriptionID); err != nil {
				return domain.NewProviderError("delete subscription discount", err)
			}
		}
		if target != "" {
			if _, err := s.coupons.Ensure(ctx, percent); err != nil {
				return err
			}
			if err := s.provider.SetSubscriptionCoupon(ctx, subscriptionID, target); err != nil {
				if errors.Is(err, ErrCouponNotFound) {
					// deleted on the provider side; recreated on the next sync
					s.coupons.Forget(percent)
				}
				return domain.NewProviderError("set subscription coupon", err)
			}
		}
		s.metrics.CouponSwap()
		s.log.Info("subscription discount updated",
			"student_id", student.ID,
			"subscription_id", subscriptionID,
			"from_coupon", sub.CouponID,
			"to_coupon", target,
			"active_referrals", active,
		)
		s.notifyDiscountChanged(ctx, student, percent)
	}

	monthly := discount.Apply(s.config.MonthlyPriceCents, percent)
	if monthly != student.MonthlyPriceCents {
		if err := s.repos.Students().SetMonthlyPrice(ctx, student.ID, monthly); err != nil {
			return err
		}
		student.MonthlyPriceCents = monthly
	}
	return nil
}

// SyncSummary reports the outcome of a full discount sweep
type SyncSummary struct {
	Checked int
	Failed  int
}

// SyncAllDiscounts runs SyncStudentDiscount for every billable student.
// Individual failures are logged and the sweep continues.
func (s *Service) SyncAllDiscounts(ctx context.Context) (SyncSummary, error) {
	students, err := s.repos.Students().ListBillable(ctx)
	if err != nil {
		return SyncSummary{}, err
	}

	var summary SyncSummary
	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		if err := s.SyncStudentDiscount(ctx, student); err != nil {
			summary.Failed++
			s.log.Error("discount sync failed", "student_id", student.ID, "error", err)
		}
	}

	s.log.Info("discount sync finished", "checked", summary.Checked, "failed", summary.Failed)
	return summary, nil
}
