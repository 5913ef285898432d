package store

import (
	"context"
	"fmt"

	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/jmoiron/sqlx"
)

type profileRepository struct {
	db *sqlx.DB
}

func (r *profileRepository) Create(ctx context.Context, p *models.Profile) error {
	p.CreatedAt = now()
	query := r.db.Rebind(`INSERT INTO profiles (id, email, full_name, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Email, p.FullName, p.CreatedAt); err != nil {
		return fmt.Errorf("failed creating profile: %w", err)
	}
	return nil
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	query := r.db.Rebind(`SELECT id, email, full_name, created_at FROM profiles WHERE id = ?`)
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		return nil, notFound(err, "profile")
	}
	return &p, nil
}
