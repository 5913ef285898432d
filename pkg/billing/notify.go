package billing

import (
	"context"

	"github.com/am0414/success-academy-international/pkg/discount"
	"github.com/am0414/success-academy-international/pkg/models"
)

// notify sends a billing email to the student's parent. Delivery failures
// never fail the event being reconciled.
func (s *Service) notify(ctx context.Context, student *models.Student, kind string,
	build func(parentName string) (subject, html, plainText string)) {
	if s.email == nil {
		return
	}

	parent, err := s.repos.Profiles().GetByID(ctx, student.ParentID)
	if err != nil {
		s.log.Warn("failed to load parent for notification", "student_id", student.ID, "kind", kind, "error", err)
		return
	}
	name := parent.FullName
	if name == "" {
		name = "there"
	}

	subject, html, plainText := build(name)
	if err := s.email.SendEmail(parent.Email, parent.FullName, subject, html, plainText); err != nil {
		s.log.Error("failed to send billing email", "student_id", student.ID, "kind", kind, "error", err)
		return
	}
	s.log.Debug("billing email sent", "student_id", student.ID, "kind", kind)
}

func (s *Service) notifyTrialStarted(ctx context.Context, student *models.Student) {
	trialEnd := s.now().AddDate(0, 0, int(s.config.TrialDays))
	if refreshed, err := s.repos.Students().GetByID(ctx, student.ID); err == nil && refreshed.TrialEndDate.Valid {
		trialEnd = refreshed.TrialEndDate.Time
	}
	s.notify(ctx, student, "trial_started", func(parentName string) (string, string, string) {
		return buildTrialStartedEmail(parentName, student.Name, trialEnd, s.config.FrontendURL)
	})
}

func (s *Service) notifyPaymentFailed(ctx context.Context, student *models.Student) {
	s.notify(ctx, student, "payment_failed", func(parentName string) (string, string, string) {
		return buildPaymentFailedEmail(parentName, student.Name, s.config.FrontendURL)
	})
}

func (s *Service) notifyCancelled(ctx context.Context, student *models.Student) {
	s.notify(ctx, student, "subscription_cancelled", func(parentName string) (string, string, string) {
		return buildSubscriptionCancelledEmail(parentName, student.Name, s.config.FrontendURL)
	})
}

func (s *Service) notifyDiscountChanged(ctx context.Context, student *models.Student, percent int) {
	monthly := discount.Apply(s.config.MonthlyPriceCents, percent)
	s.notify(ctx, student, "discount_changed", func(parentName string) (string, string, string) {
		return buildReferralDiscountEmail(parentName, student.Name, percent, monthly, s.config.Currency, s.config.FrontendURL)
	})
}
