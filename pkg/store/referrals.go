package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

const referralColumns = `id, referrer_student_id, referral_code, referred_user_id, referred_student_id,
	status, signed_up_at, activated_at, cancelled_at`

type referralRepository struct {
	db *sqlx.DB
}

func (r *referralRepository) Create(ctx context.Context, ref *models.Referral) error {
	if ref.SignedUpAt.IsZero() {
		ref.SignedUpAt = now()
	}
	query := r.db.Rebind(`INSERT INTO referrals (` + referralColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		ref.ID, ref.ReferrerStudentID, ref.ReferralCode, ref.ReferredUserID, ref.ReferredStudentID,
		ref.Status, ref.SignedUpAt, ref.ActivatedAt, ref.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("failed creating referral: %w", err)
	}
	return nil
}

func (r *referralRepository) GetByCodeAndUser(ctx context.Context, code, referredUserID string) (*models.Referral, error) {
	var ref models.Referral
	query := r.db.Rebind(`SELECT ` + referralColumns + ` FROM referrals WHERE referral_code = ? AND referred_user_id = ?`)
	if err := r.db.GetContext(ctx, &ref, query, code, referredUserID); err != nil {
		return nil, notFound(err, "referral")
	}
	return &ref, nil
}

func (r *referralRepository) ListByCode(ctx context.Context, code string) ([]*models.Referral, error) {
	refs := []*models.Referral{}
	query := r.db.Rebind(`SELECT ` + referralColumns + ` FROM referrals WHERE referral_code = ? ORDER BY signed_up_at DESC, id`)
	if err := r.db.SelectContext(ctx, &refs, query, code); err != nil {
		return nil, fmt.Errorf("failed listing referrals: %w", err)
	}
	return refs, nil
}

func (r *referralRepository) CountActiveByReferrer(ctx context.Context, referrerStudentID string) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM referrals WHERE referrer_student_id = ? AND status = ?`)
	if err := r.db.GetContext(ctx, &n, query, referrerStudentID, models.ReferralActive); err != nil {
		return 0, fmt.Errorf("failed counting active referrals: %w", err)
	}
	return n, nil
}

func (r *referralRepository) AttachReferredStudent(ctx context.Context, id, studentID string) error {
	query := r.db.Rebind(`UPDATE referrals SET referred_student_id = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, studentID, id)
	if err != nil {
		return fmt.Errorf("failed attaching referred student: %w", err)
	}
	return expectOne(res, "referral")
}

// UpdateStatusForReferred moves every edge pointing at the referred student to
// status and returns the distinct referral codes touched. Activation and
// cancellation timestamps record the first transition only.
func (r *referralRepository) UpdateStatusForReferred(ctx context.Context, match ReferredMatch, status string, at time.Time) (StatusUpdate, error) {
	where, args := referredWhere(match)
	if where == "" {
		return StatusUpdate{}, nil
	}

	var codes []string
	selectQuery := r.db.Rebind(`SELECT DISTINCT referral_code FROM referrals WHERE ` + where)
	if err := r.db.SelectContext(ctx, &codes, selectQuery, args...); err != nil {
		return StatusUpdate{}, fmt.Errorf("failed finding referrals to update: %w", err)
	}
	if len(codes) == 0 {
		return StatusUpdate{Codes: []string{}}, nil
	}

	set := `status = ?`
	setArgs := []any{status}
	switch status {
	case models.ReferralActive:
		set += `, activated_at = COALESCE(activated_at, ?), cancelled_at = NULL`
		setArgs = append(setArgs, at.UTC())
	case models.ReferralCancelled:
		set += `, cancelled_at = COALESCE(cancelled_at, ?)`
		setArgs = append(setArgs, at.UTC())
	}

	updateQuery := r.db.Rebind(`UPDATE referrals SET ` + set + ` WHERE ` + where)
	res, err := r.db.ExecContext(ctx, updateQuery, append(setArgs, args...)...)
	if err != nil {
		return StatusUpdate{}, fmt.Errorf("failed updating referral status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StatusUpdate{}, err
	}

	sort.Strings(codes)
	return StatusUpdate{Updated: int(n), Codes: codes}, nil
}

func referredWhere(match ReferredMatch) (string, []any) {
	switch {
	case match.StudentID != "" && match.UserID != "":
		return `(referred_student_id = ? OR (referred_student_id IS NULL AND referred_user_id = ?))`,
			[]any{match.StudentID, match.UserID}
	case match.StudentID != "":
		return `referred_student_id = ?`, []any{match.StudentID}
	case match.UserID != "":
		return `referred_user_id = ?`, []any{match.UserID}
	default:
		return "", nil
	}
}

// CancelOutbound cancels every live edge the student referred
func (r *referralRepository) CancelOutbound(ctx context.Context, referrerStudentID string, at time.Time) (int, error) {
	query := r.db.Rebind(`UPDATE referrals
		SET status = ?, cancelled_at = COALESCE(cancelled_at, ?)
		WHERE referrer_student_id = ? AND status <> ?`)
	res, err := r.db.ExecContext(ctx, query, models.ReferralCancelled, at.UTC(), referrerStudentID, models.ReferralCancelled)
	if err != nil {
		return 0, fmt.Errorf("failed cancelling outbound referrals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
