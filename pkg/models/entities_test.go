package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudent_HasProviderSubscription(t *testing.T) {
	tests := []struct {
		name string
		sub  sql.NullString
		want bool
	}{
		{"No subscription", sql.NullString{}, false},
		{"Empty subscription", sql.NullString{String: "", Valid: true}, false},
		{"Free referral sentinel", sql.NullString{String: FreeSubscriptionID, Valid: true}, false},
		{"Real subscription", sql.NullString{String: "sub_123", Valid: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Student{StripeSubscriptionID: tt.sub}
			assert.Equal(t, tt.want, s.HasProviderSubscription())
		})
	}
}

func TestSpecialCode_Usable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&SpecialCode{IsActive: true}).Usable(now))
	assert.False(t, (&SpecialCode{IsActive: false}).Usable(now))
	assert.True(t, (&SpecialCode{IsActive: true, ExpiresAt: sql.NullTime{Time: now.Add(time.Hour), Valid: true}}).Usable(now))
	assert.False(t, (&SpecialCode{IsActive: true, ExpiresAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true}}).Usable(now))
}

func TestReferral_View(t *testing.T) {
	signed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := &Referral{
		ID:                "ref-1",
		ReferrerStudentID: "stu-1",
		ReferralCode:      "ABC234",
		ReferredUserID:    "user-2",
		ReferredStudentID: sql.NullString{String: "stu-2", Valid: true},
		Status:            ReferralActive,
		SignedUpAt:        signed,
		ActivatedAt:       sql.NullTime{Time: signed.Add(time.Hour), Valid: true},
	}

	v := r.View()
	require.NotNil(t, v.ReferredStudentID)
	assert.Equal(t, "stu-2", *v.ReferredStudentID)
	require.NotNil(t, v.ActivatedAt)
	assert.Nil(t, v.CancelledAt)
	assert.Equal(t, ReferralActive, v.Status)
}
