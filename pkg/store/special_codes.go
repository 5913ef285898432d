package store

import (
	"context"
	"fmt"

	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

type specialCodeRepository struct {
	db *sqlx.DB
}

func (r *specialCodeRepository) Create(ctx context.Context, sc *models.SpecialCode) error {
	sc.CreatedAt = now()
	query := r.db.Rebind(`INSERT INTO special_codes (id, code, discount_percent, is_active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, sc.ID, sc.Code, sc.DiscountPercent, sc.IsActive, sc.ExpiresAt, sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed creating special code: %w", err)
	}
	return nil
}

// GetByCode returns the code whatever its state; callers check Usable
func (r *specialCodeRepository) GetByCode(ctx context.Context, code string) (*models.SpecialCode, error) {
	var sc models.SpecialCode
	query := r.db.Rebind(`SELECT id, code, discount_percent, is_active, expires_at, created_at
		FROM special_codes WHERE code = ?`)
	if err := r.db.GetContext(ctx, &sc, query, code); err != nil {
		return nil, notFound(err, "special code")
	}
	return &sc, nil
}
