package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
)

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	studentID := sess.ClientReferenceID
	if studentID == "" {
		studentID = sess.Metadata[MetaStudentID]
	}
	if studentID == "" {
		s.log.Warn("checkout session without student reference", "session_id", sess.ID)
		return nil
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		s.log.Warn("checkout session without subscription", "session_id", sess.ID, "student_id", studentID)
		return nil
	}
	subscriptionID := sess.Subscription.ID
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	student, err := s.repos.Students().GetByID(ctx, studentID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("student not found for checkout", "student_id", studentID, "session_id", sess.ID)
			return nil
		}
		return err
	}

	if err := s.repos.Students().SetCheckoutIDs(ctx, student.ID, customerID, subscriptionID); err != nil {
		return err
	}

	// The session only says "complete"; the subscription knows if it is trialing
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.NewProviderError("get subscription", err)
	}
	if customerID == "" {
		customerID = sub.CustomerID
	}

	status := MapSubscriptionStatus(sub.Status)
	if err := s.applyStatus(ctx, student.ID, status); err != nil {
		return err
	}
	if sub.TrialStart > 0 && sub.TrialEnd > 0 {
		if err := s.repos.Students().SetTrialDates(ctx, student.ID, time.Unix(sub.TrialStart, 0), time.Unix(sub.TrialEnd, 0)); err != nil {
			return err
		}
	}

	metadata := mergeMetadata(sess.Metadata, sub.Metadata)
	if metadata[MetaCodeType] == CodeTypeReferral && metadata[MetaReferralCode] != "" {
		if err := s.recordCheckoutReferral(ctx, student, metadata[MetaReferralCode], status); err != nil {
			return err
		}
	}

	if status != models.SubscriptionCancelled {
		fee := s.feeFromMetadata(metadata)
		outcome, err := s.ChargeEnrollmentFeeOnce(ctx, FeeCharge{
			StudentID:   student.ID,
			CustomerID:  customerID,
			AmountCents: fee,
		})
		if err != nil {
			// invoice.created retries while the flag stays false
			s.log.Warn("enrollment fee not charged at checkout", "student_id", student.ID, "error", err)
		} else {
			s.log.Info("enrollment fee processed at checkout", "student_id", student.ID, "outcome", string(outcome))
		}
	}

	s.log.Info("checkout completed",
		"student_id", student.ID,
		"customer_id", customerID,
		"subscription_id", subscriptionID,
		"status", status,
	)

	if status == models.SubscriptionTrial {
		s.notifyTrialStarted(ctx, student)
	}
	return nil
}

// recordCheckoutReferral makes sure an edge exists from code to the student's
// family, mirroring the student's status, then refreshes the referrer.
func (s *Service) recordCheckoutReferral(ctx context.Context, student *models.Student, code, status string) error {
	rc, err := s.repos.ReferralCodes().GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("referral code from checkout not found", "code", code, "student_id", student.ID)
			return nil
		}
		return err
	}

	owner, err := s.repos.Students().GetByID(ctx, rc.StudentID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return err
	}
	if owner.ParentID == student.ParentID {
		s.log.Info("self-referral ignored", "code", code, "student_id", student.ID)
		return nil
	}

	edgeStatus := edgeStatusFor(status)
	edge, err := s.repos.Referrals().GetByCodeAndUser(ctx, rc.Code, student.ParentID)
	switch {
	case err == nil:
		if !edge.ReferredStudentID.Valid {
			if err := s.repos.Referrals().AttachReferredStudent(ctx, edge.ID, student.ID); err != nil {
				return err
			}
		}
		if edge.Status != edgeStatus {
			if _, err := s.repos.Referrals().UpdateStatusForReferred(ctx, store.ReferredMatch{StudentID: student.ID}, edgeStatus, s.now()); err != nil {
				return err
			}
		}
	case domain.IsNotFound(err):
		ref := &models.Referral{
			ID:                uuid.NewString(),
			ReferrerStudentID: rc.StudentID,
			ReferralCode:      rc.Code,
			ReferredUserID:    student.ParentID,
			ReferredStudentID: sql.NullString{String: student.ID, Valid: true},
			Status:            edgeStatus,
			SignedUpAt:        s.now(),
		}
		if edgeStatus == models.ReferralActive {
			ref.ActivatedAt = sql.NullTime{Time: s.now(), Valid: true}
		}
		if err := s.repos.Referrals().Create(ctx, ref); err != nil {
			// lost a race with a concurrent delivery; the unique key kept one edge
			if _, getErr := s.repos.Referrals().GetByCodeAndUser(ctx, rc.Code, student.ParentID); getErr != nil {
				return err
			}
		} else {
			s.log.Info("referral recorded from checkout", "code", rc.Code, "referrer_student_id", rc.StudentID, "referred_student_id", student.ID)
		}
	default:
		return err
	}

	return s.UpdateReferrerDiscount(ctx, rc.Code)
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	current := subscriptionFromStripe(&sub)
	student, err := s.studentForSubscription(ctx, current)
	if err != nil || student == nil {
		return err
	}

	// Deliveries can arrive out of order; mirror the provider's current state
	live, err := s.provider.GetSubscription(ctx, sub.ID)
	if err != nil {
		return domain.NewProviderError("get subscription", err)
	}

	status := MapSubscriptionStatus(live.Status)
	if status != MapSubscriptionStatus(string(sub.Status)) {
		s.log.Info("stale subscription event", "subscription_id", sub.ID, "event_status", sub.Status, "live_status", live.Status)
	}
	if err := s.applyStatus(ctx, student.ID, status); err != nil {
		return err
	}

	if live.CancelScheduled() || status == models.SubscriptionCancelled {
		customerID := student.StripeCustomerID.String
		if current.CustomerID != "" {
			customerID = current.CustomerID
		}
		if err := s.deletePendingItems(ctx, customerID); err != nil {
			return err
		}
	}

	s.log.Info("subscription status mirrored", "student_id", student.ID, "subscription_id", sub.ID, "status", status)
	return nil
}

// studentForSubscription finds the student billed by sub. A subscription
// event can arrive before checkout completion linked it, so the student id
// in the subscription metadata is used to link it here.
func (s *Service) studentForSubscription(ctx context.Context, sub *Subscription) (*models.Student, error) {
	student, err := s.repos.Students().GetBySubscriptionID(ctx, sub.ID)
	if err == nil {
		return student, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	studentID := sub.Metadata[MetaStudentID]
	if studentID == "" {
		s.log.Warn("student not found for subscription", "subscription_id", sub.ID)
		return nil, nil
	}
	student, err = s.repos.Students().GetByID(ctx, studentID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("student from subscription metadata not found", "subscription_id", sub.ID, "student_id", studentID)
			return nil, nil
		}
		return nil, err
	}

	if err := s.repos.Students().SetCheckoutIDs(ctx, student.ID, sub.CustomerID, sub.ID); err != nil {
		return nil, err
	}
	student.StripeCustomerID = sql.NullString{String: sub.CustomerID, Valid: sub.CustomerID != ""}
	student.StripeSubscriptionID = sql.NullString{String: sub.ID, Valid: true}
	return student, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	student, err := s.repos.Students().GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("student not found for deleted subscription", "subscription_id", sub.ID)
			return nil
		}
		return err
	}

	if err := s.repos.Students().SetStatus(ctx, student.ID, models.SubscriptionCancelled); err != nil {
		return err
	}
	if err := s.repos.Students().ResetEnrollmentFee(ctx, student.ID); err != nil {
		return err
	}

	customerID := student.StripeCustomerID.String
	if sub.Customer != nil && sub.Customer.ID != "" {
		customerID = sub.Customer.ID
	}
	if err := s.deletePendingItems(ctx, customerID); err != nil {
		return err
	}

	res, err := s.repos.Referrals().UpdateStatusForReferred(ctx,
		store.ReferredMatch{StudentID: student.ID, UserID: student.ParentID}, models.ReferralCancelled, s.now())
	if err != nil {
		return err
	}
	if err := s.UpdateReferrerDiscounts(ctx, res.Codes); err != nil {
		return err
	}

	if s.config.CascadeOnReferrerCancel {
		n, err := s.repos.Referrals().CancelOutbound(ctx, student.ID, s.now())
		if err != nil {
			return err
		}
		s.log.Info("outbound referrals cancelled", "student_id", student.ID, "count", n)
	}

	s.log.Info("subscription cancelled",
		"student_id", student.ID,
		"subscription_id", sub.ID,
		"referrers_updated", len(res.Codes),
	)
	s.notifyCancelled(ctx, student)
	return nil
}

// studentForInvoice resolves the invoice's student; nil means nothing to do
func (s *Service) studentForInvoice(ctx context.Context, inv *invoicePayload) (*models.Student, error) {
	subscriptionID := inv.subscriptionID()
	if subscriptionID == "" {
		s.log.Debug("invoice without subscription", "invoice_id", inv.ID)
		return nil, nil
	}

	student, err := s.repos.Students().GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("student not found for invoice", "invoice_id", inv.ID, "subscription_id", subscriptionID)
			return nil, nil
		}
		return nil, err
	}
	return student, nil
}

func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event.Data.Raw)
	if err != nil {
		return err
	}
	// the zero-amount invoice opening a trial does not make anyone active
	if inv.BillingReason == "subscription_create" && inv.AmountPaid == 0 {
		return nil
	}

	student, err := s.studentForInvoice(ctx, inv)
	if err != nil || student == nil {
		return err
	}

	sub, err := s.provider.GetSubscription(ctx, student.StripeSubscriptionID.String)
	if err != nil {
		return domain.NewProviderError("get subscription", err)
	}
	if MapSubscriptionStatus(sub.Status) != models.SubscriptionActive {
		s.log.Info("paid invoice for inactive subscription ignored",
			"student_id", student.ID,
			"invoice_id", inv.ID,
			"subscription_status", sub.Status,
		)
		return nil
	}

	if err := s.repos.Students().Activate(ctx, student.ID, s.now()); err != nil {
		return err
	}

	res, err := s.repos.Referrals().UpdateStatusForReferred(ctx,
		store.ReferredMatch{StudentID: student.ID, UserID: student.ParentID}, models.ReferralActive, s.now())
	if err != nil {
		return err
	}
	if err := s.UpdateReferrerDiscounts(ctx, res.Codes); err != nil {
		return err
	}

	s.log.Info("invoice paid", "student_id", student.ID, "invoice_id", inv.ID, "referrals_activated", res.Updated)
	return nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event.Data.Raw)
	if err != nil {
		return err
	}
	student, err := s.studentForInvoice(ctx, inv)
	if err != nil || student == nil {
		return err
	}

	if err := s.repos.Students().SetStatus(ctx, student.ID, models.SubscriptionPastDue); err != nil {
		return err
	}

	s.log.Info("student set to past_due after payment failure", "student_id", student.ID, "invoice_id", inv.ID)
	s.notifyPaymentFailed(ctx, student)
	return nil
}

func (s *Service) handleInvoiceUpcoming(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event.Data.Raw)
	if err != nil {
		return err
	}
	student, err := s.studentForInvoice(ctx, inv)
	if err != nil || student == nil {
		return err
	}
	return s.SyncStudentDiscount(ctx, student)
}

// handleInvoiceCreated retries an enrollment fee whose checkout-time charge
// was rolled back. Cancelled students are never charged.
func (s *Service) handleInvoiceCreated(ctx context.Context, event stripe.Event) error {
	inv, err := parseInvoice(event.Data.Raw)
	if err != nil {
		return err
	}
	student, err := s.studentForInvoice(ctx, inv)
	if err != nil || student == nil {
		return err
	}
	if student.EnrollmentFeeCharged || student.SubscriptionStatus == models.SubscriptionCancelled {
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, student.StripeSubscriptionID.String)
	if err != nil {
		return domain.NewProviderError("get subscription", err)
	}
	if MapSubscriptionStatus(sub.Status) == models.SubscriptionCancelled {
		s.log.Info("enrollment fee not retried on ended subscription", "student_id", student.ID, "invoice_id", inv.ID)
		return nil
	}
	if _, ok := sub.Metadata[MetaEnrollmentFee]; !ok {
		return nil
	}

	customerID := inv.customerID()
	if customerID == "" {
		customerID = student.StripeCustomerID.String
	}
	invoiceID := ""
	if inv.Status == "draft" && inv.BillingReason == "subscription_cycle" {
		invoiceID = inv.ID
	}

	outcome, err := s.ChargeEnrollmentFeeOnce(ctx, FeeCharge{
		StudentID:   student.ID,
		CustomerID:  customerID,
		AmountCents: s.feeFromMetadata(sub.Metadata),
		InvoiceID:   invoiceID,
	})
	if err != nil {
		return err
	}
	s.log.Info("enrollment fee retried on invoice", "student_id", student.ID, "invoice_id", inv.ID, "outcome", string(outcome))
	return nil
}

func (s *Service) applyStatus(ctx context.Context, studentID, status string) error {
	if status == models.SubscriptionActive {
		return s.repos.Students().Activate(ctx, studentID, s.now())
	}
	return s.repos.Students().SetStatus(ctx, studentID, status)
}

// feeFromMetadata reads the discounted enrollment fee recorded at checkout,
// falling back to the configured fee
func (s *Service) feeFromMetadata(metadata map[string]string) int64 {
	raw, ok := metadata[MetaEnrollmentFee]
	if !ok || raw == "" {
		return s.config.EnrollmentFeeCents
	}
	fee, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || fee < 0 {
		s.log.Warn("invalid enrollment fee in metadata", "value", raw)
		return s.config.EnrollmentFeeCents
	}
	return fee
}

func mergeMetadata(primary, fallback map[string]string) map[string]string {
	out := make(map[string]string, len(primary)+len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	for k, v := range primary {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
