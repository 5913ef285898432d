package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type webhookEventRepository struct {
	db *sqlx.DB
}

func (r *webhookEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM webhook_events WHERE id = ?`)
	if err := r.db.GetContext(ctx, &n, query, eventID); err != nil {
		return false, fmt.Errorf("failed checking webhook event: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed is idempotent; a redelivery racing the first handler is absorbed
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	query := r.db.Rebind(`INSERT INTO webhook_events (id, type, processed_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, eventID, eventType, now()); err != nil {
		return fmt.Errorf("failed recording webhook event: %w", err)
	}
	return nil
}

func (r *webhookEventRepository) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM webhook_events WHERE processed_at < ?`)
	res, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed purging webhook events: %w", err)
	}
	return res.RowsAffected()
}
