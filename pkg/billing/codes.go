package billing

import (
	"context"
	"strings"

	"github.com/am0414/success-academy-international/pkg/discount"
	"github.com/am0414/success-academy-international/pkg/domain"
)

// Code types recorded in checkout metadata
const (
	CodeTypeSpecial  = "special"
	CodeTypeReferral = "referral"
)

// CodeResolution describes what a code entered at checkout is worth
type CodeResolution struct {
	Type                  string
	Code                  string
	EnrollmentFeeDiscount int
	ReferrerStudentID     string
	ReferrerParentID      string
}

// NormalizeCode upper-cases and trims a user-entered code
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ResolveCode looks the code up among promotional codes first and peer
// referral codes second. An unknown, inactive or expired code resolves to
// the zero CodeResolution.
func (s *Service) ResolveCode(ctx context.Context, raw string) (CodeResolution, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return CodeResolution{}, nil
	}

	special, err := s.repos.SpecialCodes().GetByCode(ctx, code)
	switch {
	case err == nil:
		if special.Usable(s.now()) {
			return CodeResolution{
				Type:                  CodeTypeSpecial,
				Code:                  special.Code,
				EnrollmentFeeDiscount: special.DiscountPercent,
			}, nil
		}
		s.log.Info("special code not usable", "code", code, "active", special.IsActive)
	case !domain.IsNotFound(err):
		return CodeResolution{}, err
	}

	rc, err := s.repos.ReferralCodes().GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			return CodeResolution{}, nil
		}
		return CodeResolution{}, err
	}

	owner, err := s.repos.Students().GetByID(ctx, rc.StudentID)
	if err != nil {
		if domain.IsNotFound(err) {
			s.log.Warn("referral code owner missing", "code", code, "student_id", rc.StudentID)
			return CodeResolution{}, nil
		}
		return CodeResolution{}, err
	}

	return CodeResolution{
		Type:                  CodeTypeReferral,
		Code:                  rc.Code,
		EnrollmentFeeDiscount: discount.ReferralEnrollmentFeePercent,
		ReferrerStudentID:     owner.ID,
		ReferrerParentID:      owner.ParentID,
	}, nil
}
