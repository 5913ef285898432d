// Package referral manages referral codes and the referral edges recorded
// against them.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/am0414/success-academy-international/pkg/discount"
	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/am0414/success-academy-international/pkg/store"
	"github.com/google/uuid"
)

const (
	// CodeLength is the number of characters in a generated referral code
	CodeLength = 6
	// CodeAlphabet omits characters that are easy to misread (I, O, 0, 1)
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 10
)

// ErrCodeSpaceExhausted is returned when no free code was found
var ErrCodeSpaceExhausted = errors.New("could not generate a unique referral code")

// DiscountUpdater pushes recomputed discounts to the referrers owning codes
type DiscountUpdater interface {
	UpdateReferrerDiscounts(ctx context.Context, codes []string) error
}

// Repositories is the persistence the referral service needs
type Repositories interface {
	Students() store.StudentRepository
	ReferralCodes() store.ReferralCodeRepository
	Referrals() store.ReferralRepository
}

// Service handles referral code and referral edge operations
type Service struct {
	repos     Repositories
	discounts DiscountUpdater
	log       logger.Logger
	now       func() time.Time
	generate  func() (string, error)
}

// NewService creates a new referral service
func NewService(repos Repositories, discounts DiscountUpdater, log logger.Logger) *Service {
	return &Service{
		repos:     repos,
		discounts: discounts,
		log:       log.With("component", "referral"),
		now:       func() time.Time { return time.Now().UTC() },
		generate:  generateCode,
	}
}

// GetOrCreateCode returns the student's referral code, creating one on first use
func (s *Service) GetOrCreateCode(ctx context.Context, studentID string) (*models.ReferralCode, error) {
	rc, err := s.repos.ReferralCodes().GetByStudent(ctx, studentID)
	if err == nil {
		return rc, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	if _, err := s.repos.Students().GetByID(ctx, studentID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate referral code: %w", err)
		}

		if _, err := s.repos.ReferralCodes().GetByCode(ctx, code); err == nil {
			continue
		} else if !domain.IsNotFound(err) {
			return nil, err
		}

		rc := &models.ReferralCode{ID: uuid.NewString(), StudentID: studentID, Code: code}
		if err := s.repos.ReferralCodes().Create(ctx, rc); err != nil {
			// a concurrent request may have created the student's code first
			if existing, getErr := s.repos.ReferralCodes().GetByStudent(ctx, studentID); getErr == nil {
				return existing, nil
			}
			s.log.Warn("referral code insert conflicted, retrying", "student_id", studentID, "error", err)
			continue
		}

		s.log.Info("referral code created", "student_id", studentID, "code", code)
		return rc, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// StatsForStudent returns the student's code, active referral count,
// derived discount and active referrals
func (s *Service) StatsForStudent(ctx context.Context, studentID string) (*models.ReferralStatsResponse, error) {
	rc, err := s.GetOrCreateCode(ctx, studentID)
	if err != nil {
		return nil, err
	}

	edges, err := s.repos.Referrals().ListByCode(ctx, rc.Code)
	if err != nil {
		return nil, err
	}

	views := make([]models.ReferralView, 0, len(edges))
	for _, e := range edges {
		if e.Status == models.ReferralActive {
			views = append(views, e.View())
		}
	}

	return &models.ReferralStatsResponse{
		ReferralCode:    rc.Code,
		ActiveReferrals: len(views),
		DiscountPercent: discount.Percent(len(views)),
		Referrals:       views,
	}, nil
}

// StatsForParent summarizes the referrals of every student of a parent account
func (s *Service) StatsForParent(ctx context.Context, parentID string) (*models.ParentReferralsResponse, error) {
	students, err := s.repos.Students().ListByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}

	out := &models.ParentReferralsResponse{
		StudentReferrals: make([]models.StudentReferralSummary, 0, len(students)),
	}
	for _, student := range students {
		rc, err := s.GetOrCreateCode(ctx, student.ID)
		if err != nil {
			return nil, err
		}
		active, err := s.repos.Referrals().CountActiveByReferrer(ctx, student.ID)
		if err != nil {
			return nil, err
		}
		out.StudentReferrals = append(out.StudentReferrals, models.StudentReferralSummary{
			StudentID:       student.ID,
			StudentName:     student.Name,
			ReferralCode:    rc.Code,
			ActiveReferrals: active,
			DiscountPercent: discount.Percent(active),
		})
	}
	return out, nil
}

// RecordReferral records that referredUserID signed up with code. The edge
// starts in trial and has no referred student until checkout completes.
func (s *Service) RecordReferral(ctx context.Context, code, referredUserID string) (*models.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || referredUserID == "" {
		return nil, domain.NewValidationError("Referral code and referred user ID are required")
	}

	rc, err := s.repos.ReferralCodes().GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewReferralRejectedError(domain.MsgInvalidReferralCode)
		}
		return nil, err
	}

	owner, err := s.repos.Students().GetByID(ctx, rc.StudentID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewReferralRejectedError(domain.MsgInvalidReferralCode)
		}
		return nil, err
	}
	if owner.ParentID == referredUserID {
		return nil, domain.NewReferralRejectedError(domain.MsgSelfReferral)
	}

	if _, err := s.repos.Referrals().GetByCodeAndUser(ctx, rc.Code, referredUserID); err == nil {
		return nil, domain.NewReferralRejectedError(domain.MsgAlreadyReferred)
	} else if !domain.IsNotFound(err) {
		return nil, err
	}

	ref := &models.Referral{
		ID:                uuid.NewString(),
		ReferrerStudentID: rc.StudentID,
		ReferralCode:      rc.Code,
		ReferredUserID:    referredUserID,
		Status:            models.ReferralTrial,
		SignedUpAt:        s.now(),
	}
	if err := s.repos.Referrals().Create(ctx, ref); err != nil {
		// the unique (code, user) key caught a concurrent duplicate
		if _, getErr := s.repos.Referrals().GetByCodeAndUser(ctx, rc.Code, referredUserID); getErr == nil {
			return nil, domain.NewReferralRejectedError(domain.MsgAlreadyReferred)
		}
		return nil, err
	}

	s.log.Info("referral recorded", "code", rc.Code, "referrer_student_id", rc.StudentID, "referred_user_id", referredUserID)
	return ref, nil
}

// UpdateStatus moves every edge of the referred user to status and pushes
// the affected referrers' discounts. A failed push is logged; the next
// upcoming invoice or scheduled sync repairs it.
func (s *Service) UpdateStatus(ctx context.Context, referredUserID, status string) (int, error) {
	switch status {
	case models.ReferralPending, models.ReferralTrial, models.ReferralActive, models.ReferralCancelled:
	default:
		return 0, domain.NewValidationError(fmt.Sprintf("invalid referral status %q", status))
	}

	res, err := s.repos.Referrals().UpdateStatusForReferred(ctx, store.ReferredMatch{UserID: referredUserID}, status, s.now())
	if err != nil {
		return 0, err
	}

	if s.discounts != nil && len(res.Codes) > 0 {
		if err := s.discounts.UpdateReferrerDiscounts(ctx, res.Codes); err != nil {
			s.log.Error("failed to push referrer discounts", "referred_user_id", referredUserID, "codes", res.Codes, "error", err)
		}
	}

	s.log.Info("referral status updated", "referred_user_id", referredUserID, "status", status, "updated", res.Updated)
	return res.Updated, nil
}

func generateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf), nil
}
