package store

import (
	"context"
	"fmt"
	"time"

	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

const studentColumns = `id, parent_id, name, subscription_status, monthly_price_cents,
	stripe_customer_id, stripe_subscription_id, enrollment_fee_charged,
	trial_start_date, trial_end_date, subscription_start_date, created_at, updated_at`

type studentRepository struct {
	db *sqlx.DB
}

func (r *studentRepository) Create(ctx context.Context, s *models.Student) error {
	ts := now()
	if s.SubscriptionStatus == "" {
		s.SubscriptionStatus = models.SubscriptionNone
	}
	s.CreatedAt, s.UpdatedAt = ts, ts

	query := r.db.Rebind(`INSERT INTO students (` + studentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.ParentID, s.Name, s.SubscriptionStatus, s.MonthlyPriceCents,
		s.StripeCustomerID, s.StripeSubscriptionID, s.EnrollmentFeeCharged,
		s.TrialStartDate, s.TrialEndDate, s.SubscriptionStartDate, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed creating student: %w", err)
	}
	return nil
}

func (r *studentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var s models.Student
	query := r.db.Rebind(`SELECT ` + studentColumns + ` FROM students WHERE id = ?`)
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		return nil, notFound(err, "student")
	}
	return &s, nil
}

func (r *studentRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Student, error) {
	var s models.Student
	query := r.db.Rebind(`SELECT ` + studentColumns + ` FROM students WHERE stripe_subscription_id = ?`)
	if err := r.db.GetContext(ctx, &s, query, subscriptionID); err != nil {
		return nil, notFound(err, "student")
	}
	return &s, nil
}

func (r *studentRepository) ListByParent(ctx context.Context, parentID string) ([]*models.Student, error) {
	students := []*models.Student{}
	query := r.db.Rebind(`SELECT ` + studentColumns + ` FROM students WHERE parent_id = ? ORDER BY created_at, id`)
	if err := r.db.SelectContext(ctx, &students, query, parentID); err != nil {
		return nil, fmt.Errorf("failed listing students: %w", err)
	}
	return students, nil
}

// ListBillable returns students backed by a live provider subscription
func (r *studentRepository) ListBillable(ctx context.Context) ([]*models.Student, error) {
	students := []*models.Student{}
	query := r.db.Rebind(`SELECT ` + studentColumns + ` FROM students
		WHERE stripe_subscription_id IS NOT NULL
		  AND stripe_subscription_id <> ''
		  AND stripe_subscription_id <> ?
		  AND subscription_status IN (?, ?, ?)
		ORDER BY id`)
	err := r.db.SelectContext(ctx, &students, query,
		models.FreeSubscriptionID,
		models.SubscriptionTrial, models.SubscriptionActive, models.SubscriptionPastDue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed listing billable students: %w", err)
	}
	return students, nil
}

func (r *studentRepository) SetCheckoutIDs(ctx context.Context, id, customerID, subscriptionID string) error {
	query := r.db.Rebind(`UPDATE students
		SET stripe_customer_id = ?, stripe_subscription_id = ?, updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, customerID, subscriptionID, now(), id)
	if err != nil {
		return fmt.Errorf("failed storing checkout ids: %w", err)
	}
	return expectOne(res, "student")
}

func (r *studentRepository) SetStatus(ctx context.Context, id, status string) error {
	query := r.db.Rebind(`UPDATE students SET subscription_status = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, status, now(), id)
	if err != nil {
		return fmt.Errorf("failed updating subscription status: %w", err)
	}
	return expectOne(res, "student")
}

func (r *studentRepository) SetTrialDates(ctx context.Context, id string, start, end time.Time) error {
	query := r.db.Rebind(`UPDATE students SET trial_start_date = ?, trial_end_date = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, start.UTC(), end.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed updating trial dates: %w", err)
	}
	return expectOne(res, "student")
}

// Activate marks the student active; the subscription start date is only set once
func (r *studentRepository) Activate(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE students
		SET subscription_status = ?,
		    subscription_start_date = COALESCE(subscription_start_date, ?),
		    updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, models.SubscriptionActive, at.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed activating student: %w", err)
	}
	return expectOne(res, "student")
}

// ActivateFree records a subscription fully covered by referrals. No provider
// subscription exists, so the sentinel id stands in for it.
func (r *studentRepository) ActivateFree(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE students
		SET subscription_status = ?,
		    monthly_price_cents = 0,
		    stripe_subscription_id = ?,
		    subscription_start_date = COALESCE(subscription_start_date, ?),
		    updated_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, models.SubscriptionActive, models.FreeSubscriptionID, at.UTC(), now(), id)
	if err != nil {
		return fmt.Errorf("failed activating free subscription: %w", err)
	}
	return expectOne(res, "student")
}

func (r *studentRepository) SetMonthlyPrice(ctx context.Context, id string, cents int64) error {
	query := r.db.Rebind(`UPDATE students SET monthly_price_cents = ?, updated_at = ? WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, cents, now(), id)
	if err != nil {
		return fmt.Errorf("failed updating monthly price: %w", err)
	}
	return expectOne(res, "student")
}

// MarkEnrollmentFeeCharged flips the fee flag from false to true and reports
// whether this call performed the flip. Concurrent callers race on the row;
// exactly one observes true.
func (r *studentRepository) MarkEnrollmentFeeCharged(ctx context.Context, id string) (bool, error) {
	query := r.db.Rebind(`UPDATE students
		SET enrollment_fee_charged = ?, updated_at = ?
		WHERE id = ? AND enrollment_fee_charged = ?`)
	res, err := r.db.ExecContext(ctx, query, true, now(), id, false)
	if err != nil {
		return false, fmt.Errorf("failed claiming enrollment fee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *studentRepository) ResetEnrollmentFee(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE students SET enrollment_fee_charged = ?, updated_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, false, now(), id); err != nil {
		return fmt.Errorf("failed resetting enrollment fee flag: %w", err)
	}
	return nil
}
