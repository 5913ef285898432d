package models

import (
	"database/sql"
	"time"
)

// Subscription statuses stored on a student
const (
	SubscriptionNone      = "none"
	SubscriptionTrial     = "trial"
	SubscriptionActive    = "active"
	SubscriptionPastDue   = "past_due"
	SubscriptionCancelled = "cancelled"
)

// Referral edge statuses
const (
	ReferralPending   = "pending"
	ReferralTrial     = "trial"
	ReferralActive    = "active"
	ReferralCancelled = "cancelled"
)

// FreeSubscriptionID marks a student whose subscription is fully covered by referrals.
// It never corresponds to a provider subscription.
const FreeSubscriptionID = "free_referral_100"

// Profile is a parent account
type Profile struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	FullName  string    `db:"full_name"`
	CreatedAt time.Time `db:"created_at"`
}

// Student is the billable entity; one subscription per student
type Student struct {
	ID                    string         `db:"id"`
	ParentID              string         `db:"parent_id"`
	Name                  string         `db:"name"`
	SubscriptionStatus    string         `db:"subscription_status"`
	MonthlyPriceCents     int64          `db:"monthly_price_cents"`
	StripeCustomerID      sql.NullString `db:"stripe_customer_id"`
	StripeSubscriptionID  sql.NullString `db:"stripe_subscription_id"`
	EnrollmentFeeCharged  bool           `db:"enrollment_fee_charged"`
	TrialStartDate        sql.NullTime   `db:"trial_start_date"`
	TrialEndDate          sql.NullTime   `db:"trial_end_date"`
	SubscriptionStartDate sql.NullTime   `db:"subscription_start_date"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

// HasProviderSubscription reports whether the student is backed by a real provider subscription
func (s *Student) HasProviderSubscription() bool {
	return s.StripeSubscriptionID.Valid &&
		s.StripeSubscriptionID.String != "" &&
		s.StripeSubscriptionID.String != FreeSubscriptionID
}

// ReferralCode is the immutable code owned by a student
type ReferralCode struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	Code      string    `db:"code"`
	CreatedAt time.Time `db:"created_at"`
}

// Referral is a directed edge from a referrer student to a referred parent account
type Referral struct {
	ID                string         `db:"id"`
	ReferrerStudentID string         `db:"referrer_student_id"`
	ReferralCode      string         `db:"referral_code"`
	ReferredUserID    string         `db:"referred_user_id"`
	ReferredStudentID sql.NullString `db:"referred_student_id"`
	Status            string         `db:"status"`
	SignedUpAt        time.Time      `db:"signed_up_at"`
	ActivatedAt       sql.NullTime   `db:"activated_at"`
	CancelledAt       sql.NullTime   `db:"cancelled_at"`
}

// View converts the edge into its API representation
func (r *Referral) View() ReferralView {
	v := ReferralView{
		ID:                r.ID,
		ReferrerStudentID: r.ReferrerStudentID,
		ReferralCode:      r.ReferralCode,
		ReferredUserID:    r.ReferredUserID,
		Status:            r.Status,
		SignedUpAt:        r.SignedUpAt,
	}
	if r.ReferredStudentID.Valid {
		id := r.ReferredStudentID.String
		v.ReferredStudentID = &id
	}
	if r.ActivatedAt.Valid {
		t := r.ActivatedAt.Time
		v.ActivatedAt = &t
	}
	if r.CancelledAt.Valid {
		t := r.CancelledAt.Time
		v.CancelledAt = &t
	}
	return v
}

// SpecialCode is an administrator-issued promotional code discounting the enrollment fee
type SpecialCode struct {
	ID              string       `db:"id"`
	Code            string       `db:"code"`
	DiscountPercent int          `db:"discount_percent"`
	IsActive        bool         `db:"is_active"`
	ExpiresAt       sql.NullTime `db:"expires_at"`
	CreatedAt       time.Time    `db:"created_at"`
}

// Usable reports whether the code can be redeemed at the given time
func (s *SpecialCode) Usable(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return !s.ExpiresAt.Valid || s.ExpiresAt.Time.After(now)
}
