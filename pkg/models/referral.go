package models

import "time"

// ReferralView is an edge as exposed over the API
type ReferralView struct {
	ID                string     `json:"id"`
	ReferrerStudentID string     `json:"referrerStudentId"`
	ReferralCode      string     `json:"referralCode"`
	ReferredUserID    string     `json:"referredUserId"`
	ReferredStudentID *string    `json:"referredStudentId,omitempty"`
	Status            string     `json:"status"`
	SignedUpAt        time.Time  `json:"signedUpAt"`
	ActivatedAt       *time.Time `json:"activatedAt,omitempty"`
	CancelledAt       *time.Time `json:"cancelledAt,omitempty"`
}

// ReferralStatsResponse is the referral summary of a single student
type ReferralStatsResponse struct {
	ReferralCode    string         `json:"referralCode"`
	ActiveReferrals int            `json:"activeReferrals"`
	DiscountPercent int            `json:"discountPercent"`
	Referrals       []ReferralView `json:"referrals"`
}

// StudentReferralSummary is one student's entry in a parent's referral overview
type StudentReferralSummary struct {
	StudentID       string `json:"studentId"`
	StudentName     string `json:"studentName"`
	ReferralCode    string `json:"referralCode"`
	ActiveReferrals int    `json:"activeReferrals"`
	DiscountPercent int    `json:"discountPercent"`
}

// ParentReferralsResponse lists the referral summaries of every student of a parent account
type ParentReferralsResponse struct {
	StudentReferrals []StudentReferralSummary `json:"studentReferrals"`
}

// CreateReferralRequest records that a user signed up with a referral code
type CreateReferralRequest struct {
	ReferralCode   string `json:"referralCode" validate:"required,max=32"`
	ReferredUserID string `json:"referredUserId" validate:"required"`
}

// CreateReferralResponse is returned once a referral has been recorded
type CreateReferralResponse struct {
	Success  bool         `json:"success"`
	Referral ReferralView `json:"referral"`
	Message  string       `json:"message"`
}

// UpdateReferralStatusRequest moves every edge of a referred user to a new status
type UpdateReferralStatusRequest struct {
	UserID    string `json:"userId" validate:"required"`
	NewStatus string `json:"newStatus" validate:"required,oneof=pending trial active cancelled"`
}

// UpdateReferralStatusResponse reports how many edges changed
type UpdateReferralStatusResponse struct {
	Success bool `json:"success"`
	Updated int  `json:"updated"`
}
