package store

import (
	"context"
	"fmt"

	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

type referralCodeRepository struct {
	db *sqlx.DB
}

// Create inserts a code. Both student_id and code are unique, so a conflicting
// insert fails and the caller decides which constraint it hit.
func (r *referralCodeRepository) Create(ctx context.Context, rc *models.ReferralCode) error {
	rc.CreatedAt = now()
	query := r.db.Rebind(`INSERT INTO referral_codes (id, student_id, code, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, rc.ID, rc.StudentID, rc.Code, rc.CreatedAt); err != nil {
		return fmt.Errorf("failed creating referral code: %w", err)
	}
	return nil
}

func (r *referralCodeRepository) GetByStudent(ctx context.Context, studentID string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	query := r.db.Rebind(`SELECT id, student_id, code, created_at FROM referral_codes WHERE student_id = ?`)
	if err := r.db.GetContext(ctx, &rc, query, studentID); err != nil {
		return nil, notFound(err, "referral code")
	}
	return &rc, nil
}

func (r *referralCodeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	query := r.db.Rebind(`SELECT id, student_id, code, created_at FROM referral_codes WHERE code = ?`)
	if err := r.db.GetContext(ctx, &rc, query, code); err != nil {
		return nil, notFound(err, "referral code")
	}
	return &rc, nil
}
