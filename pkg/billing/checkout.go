package billing

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/am0414/success-academy-international/pkg/discount"
	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/models"
)

// Checkout metadata keys, written on both the session and the subscription
const (
	MetaStudentID             = "student_id"
	MetaUserID                = "user_id"
	MetaDiscountPercent       = "discount_percent"
	MetaEnrollmentFee         = "enrollment_fee"
	MetaEnrollmentFeeDiscount = "enrollment_fee_discount"
	MetaReferrerStudentID     = "referrer_student_id"
	MetaReferralCode          = "referral_code"
	MetaCodeType              = "code_type"
)

// FreeActivationMessage is shown when referrals cover the full price
const FreeActivationMessage = "Free subscription activated!"

// CheckoutInput is a request to subscribe a student
type CheckoutInput struct {
	StudentID       string
	UserID          string
	CustomerEmail   string
	ReferralCode    string
	DiscountPercent *int
}

// CheckoutResult holds exactly one of a hosted checkout or a free activation
type CheckoutResult struct {
	Session *models.CheckoutResponse
	Free    *models.FreeActivationResponse
}

// CreateCheckoutSession builds a subscription checkout for a student. The
// recurring discount is derived from the student's active referrals; a code
// only discounts the enrollment fee. A 100% discount activates the student
// without contacting the provider.
func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	student, err := s.repos.Students().GetByID(ctx, in.StudentID)
	if err != nil {
		return nil, err
	}
	if student.ParentID != in.UserID {
		return nil, domain.NewBadRequestError("student does not belong to this account")
	}

	resolution, err := s.ResolveCode(ctx, in.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve code: %w", err)
	}
	if resolution.Type == CodeTypeReferral && resolution.ReferrerParentID == in.UserID {
		s.log.Info("ignoring own referral code at checkout", "student_id", student.ID, "code", resolution.Code)
		resolution = CodeResolution{}
	}

	active, err := s.repos.Referrals().CountActiveByReferrer(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	percent := discount.Percent(active)
	if in.DiscountPercent != nil && *in.DiscountPercent != percent {
		s.log.Warn("client discount differs from computed discount",
			"student_id", student.ID, "client_percent", *in.DiscountPercent, "percent", percent)
	}

	if discount.IsFree(percent) {
		if err := s.repos.Students().ActivateFree(ctx, student.ID, s.now()); err != nil {
			return nil, err
		}
		s.metrics.CheckoutSession("free")
		s.log.Info("free subscription activated", "student_id", student.ID, "active_referrals", active)
		return &CheckoutResult{Free: &models.FreeActivationResponse{
			Success:  true,
			Message:  FreeActivationMessage,
			Redirect: "/dashboard?success=true&free=true",
		}}, nil
	}

	priceID, err := s.provider.EnsureMonthlyPrice(ctx, PriceSpec{
		UnitAmount:  s.config.MonthlyPriceCents,
		Currency:    s.config.Currency,
		ProductName: s.config.ProductName,
	})
	if err != nil {
		s.metrics.CheckoutSession("error")
		return nil, domain.NewProviderError("ensure price", err)
	}

	couponID, err := s.coupons.Ensure(ctx, percent)
	if err != nil {
		s.metrics.CheckoutSession("error")
		return nil, err
	}

	finalFee := discount.Apply(s.config.EnrollmentFeeCents, resolution.EnrollmentFeeDiscount)
	metadata := map[string]string{
		MetaStudentID:             student.ID,
		MetaUserID:                in.UserID,
		MetaDiscountPercent:       strconv.Itoa(percent),
		MetaEnrollmentFee:         strconv.FormatInt(finalFee, 10),
		MetaEnrollmentFeeDiscount: strconv.Itoa(resolution.EnrollmentFeeDiscount),
		MetaReferrerStudentID:     resolution.ReferrerStudentID,
		MetaReferralCode:          resolution.Code,
		MetaCodeType:              resolution.Type,
	}

	sess, err := s.provider.CreateCheckoutSession(ctx, CheckoutSessionInput{
		CustomerEmail:     in.CustomerEmail,
		ClientReferenceID: student.ID,
		PriceID:           priceID,
		CouponID:          couponID,
		TrialDays:         s.config.TrialDays,
		SuccessURL:        s.frontendURL("/dashboard?success=true"),
		CancelURL:         s.frontendURL("/dashboard?canceled=true"),
		Metadata:          metadata,
	})
	if err != nil {
		s.metrics.CheckoutSession("error")
		return nil, domain.NewProviderError("create checkout session", err)
	}

	// Written only once the provider accepted the session. A failure here is
	// repaired by the next discount sync, so the session is still returned.
	monthly := discount.Apply(s.config.MonthlyPriceCents, percent)
	if err := s.repos.Students().SetMonthlyPrice(ctx, student.ID, monthly); err != nil {
		s.log.Error("failed to store monthly price after checkout", "student_id", student.ID, "error", err)
	}

	s.metrics.CheckoutSession("created")
	s.log.Info("checkout session created",
		"student_id", student.ID,
		"session_id", sess.ID,
		"discount_percent", percent,
		"code_type", resolution.Type,
		"enrollment_fee", finalFee,
	)

	return &CheckoutResult{Session: &models.CheckoutResponse{
		SessionID:             sess.ID,
		URL:                   sess.URL,
		DiscountPercent:       percent,
		EnrollmentFeeDiscount: resolution.EnrollmentFeeDiscount,
		FinalEnrollmentFee:    finalFee,
	}}, nil
}

// CreateCustomerPortalSession opens the billing portal for a student's customer
func (s *Service) CreateCustomerPortalSession(ctx context.Context, studentID, returnURL string) (*models.CustomerPortalResponse, error) {
	student, err := s.repos.Students().GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.StripeCustomerID.Valid || student.StripeCustomerID.String == "" {
		return nil, domain.NewNotFoundError("Customer")
	}

	if returnURL == "" {
		returnURL = s.frontendURL("/dashboard")
	}

	portalURL, err := s.provider.CreatePortalSession(ctx, student.StripeCustomerID.String, returnURL)
	if err != nil {
		return nil, domain.NewProviderError("create portal session", err)
	}
	return &models.CustomerPortalResponse{URL: portalURL}, nil
}

// ValidReturnURL reports whether u points back at the configured frontend
func (s *Service) ValidReturnURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return false
	}
	base, err := url.Parse(s.config.FrontendURL)
	if err != nil {
		return false
	}
	return parsed.Scheme == base.Scheme && parsed.Host == base.Host
}

func (s *Service) frontendURL(path string) string {
	return strings.TrimRight(s.config.FrontendURL, "/") + path
}
