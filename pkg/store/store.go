// Package store persists the referral graph, student billing state and the
// processed-webhook log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

// StudentRepository reads and writes student billing state
type StudentRepository interface {
	Create(ctx context.Context, s *models.Student) error
	GetByID(ctx context.Context, id string) (*models.Student, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Student, error)
	ListByParent(ctx context.Context, parentID string) ([]*models.Student, error)
	ListBillable(ctx context.Context) ([]*models.Student, error)
	SetCheckoutIDs(ctx context.Context, id, customerID, subscriptionID string) error
	SetStatus(ctx context.Context, id, status string) error
	SetTrialDates(ctx context.Context, id string, start, end time.Time) error
	Activate(ctx context.Context, id string, at time.Time) error
	ActivateFree(ctx context.Context, id string, at time.Time) error
	SetMonthlyPrice(ctx context.Context, id string, cents int64) error
	MarkEnrollmentFeeCharged(ctx context.Context, id string) (bool, error)
	ResetEnrollmentFee(ctx context.Context, id string) error
}

// ProfileRepository reads parent accounts
type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
}

// ReferralCodeRepository stores the immutable code of each student
type ReferralCodeRepository interface {
	Create(ctx context.Context, rc *models.ReferralCode) error
	GetByStudent(ctx context.Context, studentID string) (*models.ReferralCode, error)
	GetByCode(ctx context.Context, code string) (*models.ReferralCode, error)
}

// ReferredMatch selects the edges pointing at a referred student. Edges
// recorded before the student existed only carry the parent account id.
type ReferredMatch struct {
	StudentID string
	UserID    string
}

// StatusUpdate reports the outcome of a bulk edge status change
type StatusUpdate struct {
	Updated int
	Codes   []string
}

// ReferralRepository stores referral edges
type ReferralRepository interface {
	Create(ctx context.Context, r *models.Referral) error
	GetByCodeAndUser(ctx context.Context, code, referredUserID string) (*models.Referral, error)
	ListByCode(ctx context.Context, code string) ([]*models.Referral, error)
	CountActiveByReferrer(ctx context.Context, referrerStudentID string) (int, error)
	AttachReferredStudent(ctx context.Context, id, studentID string) error
	UpdateStatusForReferred(ctx context.Context, match ReferredMatch, status string, at time.Time) (StatusUpdate, error)
	CancelOutbound(ctx context.Context, referrerStudentID string, at time.Time) (int, error)
}

// SpecialCodeRepository stores administrator promotional codes
type SpecialCodeRepository interface {
	Create(ctx context.Context, sc *models.SpecialCode) error
	GetByCode(ctx context.Context, code string) (*models.SpecialCode, error)
}

// WebhookEventRepository records provider events that were fully handled
type WebhookEventRepository interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Store groups the repositories over a single connection pool
type Store struct {
	db            *sqlx.DB
	students      StudentRepository
	profiles      ProfileRepository
	referralCodes ReferralCodeRepository
	referrals     ReferralRepository
	specialCodes  SpecialCodeRepository
	webhookEvents WebhookEventRepository
}

// New creates a Store backed by db
func New(db *sqlx.DB) *Store {
	return &Store{
		db:            db,
		students:      &studentRepository{db: db},
		profiles:      &profileRepository{db: db},
		referralCodes: &referralCodeRepository{db: db},
		referrals:     &referralRepository{db: db},
		specialCodes:  &specialCodeRepository{db: db},
		webhookEvents: &webhookEventRepository{db: db},
	}
}

func (s *Store) Students() StudentRepository { return s.students }
func (s *Store) Profiles() ProfileRepository { return s.profiles }
func (s *Store) ReferralCodes() ReferralCodeRepository { return s.referralCodes }
func (s *Store) Referrals() ReferralRepository { return s.referrals }
func (s *Store) SpecialCodes() SpecialCodeRepository { return s.specialCodes }
func (s *Store) WebhookEvents() WebhookEventRepository { return s.webhookEvents }

// Ping checks the underlying connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(resource)
	}
	return fmt.Errorf("failed loading %s: %w", resource, err)
}

func expectOne(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFoundError(resource)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
