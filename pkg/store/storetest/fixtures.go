// Package storetest seeds stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/am0414/success-academy-international/pkg/database/dbtest"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// New returns a store over a fresh migrated database
func New(t testing.TB) *store.Store {
	t.Helper()
	return store.New(dbtest.New(t))
}

// Parent creates a parent account with a fake name and e-mail
func Parent(t testing.TB, s *store.Store) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:       uuid.NewString(),
		Email:    gofakeit.Email(),
		FullName: gofakeit.Name(),
	}
	require.NoError(t, s.Profiles().Create(context.Background(), p))
	return p
}

// StudentOption customizes a seeded student
type StudentOption func(*models.Student)

// WithSubscription gives the student provider ids and a status
func WithSubscription(customerID, subscriptionID, status string) StudentOption {
	return func(st *models.Student) {
		st.StripeCustomerID = sql.NullString{String: customerID, Valid: customerID != ""}
		st.StripeSubscriptionID = sql.NullString{String: subscriptionID, Valid: subscriptionID != ""}
		st.SubscriptionStatus = status
	}
}

// WithMonthlyPrice sets the stored monthly price
func WithMonthlyPrice(cents int64) StudentOption {
	return func(st *models.Student) {
		st.MonthlyPriceCents = cents
	}
}

// WithFeeCharged sets the enrollment fee flag
func WithFeeCharged() StudentOption {
	return func(st *models.Student) {
		st.EnrollmentFeeCharged = true
	}
}

// Student creates a student under parent
func Student(t testing.TB, s *store.Store, parent *models.Profile, opts ...StudentOption) *models.Student {
	t.Helper()
	st := &models.Student{
		ID:                 uuid.NewString(),
		ParentID:           parent.ID,
		Name:               gofakeit.FirstName(),
		SubscriptionStatus: models.SubscriptionNone,
	}
	for _, opt := range opts {
		opt(st)
	}
	require.NoError(t, s.Students().Create(context.Background(), st))
	return st
}

// Code gives the student a fixed referral code
func Code(t testing.TB, s *store.Store, student *models.Student, code string) *models.ReferralCode {
	t.Helper()
	rc := &models.ReferralCode{ID: uuid.NewString(), StudentID: student.ID, Code: code}
	require.NoError(t, s.ReferralCodes().Create(context.Background(), rc))
	return rc
}

// Edge records a referral from the code owner to the referred student's parent
func Edge(t testing.TB, s *store.Store, code *models.ReferralCode, referred *models.Student, status string) *models.Referral {
	t.Helper()
	ref := &models.Referral{
		ID:                uuid.NewString(),
		ReferrerStudentID: code.StudentID,
		ReferralCode:      code.Code,
		ReferredUserID:    referred.ParentID,
		ReferredStudentID: sql.NullString{String: referred.ID, Valid: true},
		Status:            status,
	}
	require.NoError(t, s.Referrals().Create(context.Background(), ref))
	return ref
}

// ActiveReferrals creates n active edges into code, each from a new family
func ActiveReferrals(t testing.TB, s *store.Store, code *models.ReferralCode, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		referred := Student(t, s, Parent(t, s), WithSubscription("cus_"+uuid.NewString()[:8], "sub_"+uuid.NewString()[:8], models.SubscriptionActive))
		Edge(t, s, code, referred, models.ReferralActive)
	}
}
