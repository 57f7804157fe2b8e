package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// OutboxRepository queues catalog changes that still need projecting.
//
// Enqueue is meant to run in the same transaction as the catalog write it describes.
type OutboxRepository struct {
	q shared.DBTX
}

// NewOutboxRepository creates a new [OutboxRepository] over the given query surface
func NewOutboxRepository(q shared.DBTX) *OutboxRepository {
	return &OutboxRepository{q: q}
}

// Enqueue stores changes, assigning IDs and creation times. The slice is updated in place.
func (r *OutboxRepository) Enqueue(ctx context.Context, changes ...*models.Change) error {
	now := time.Now().UTC()
	for _, c := range changes {
		if c.ID == "" {
			c.ID = shared.GenerateID()
		}
		if c.Field == "" {
			c.Field = models.ChangeFull
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}

		_, err := r.q.ExecContext(ctx,
			`INSERT INTO outbox (id, kind, entity_id, field, created_at) VALUES (?, ?, ?, ?, ?)`,
			c.ID, string(c.Kind), c.EntityID, string(c.Field), c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s change: %w", c.Key(), err)
		}
	}
	return nil
}

// Pending lists unprocessed changes oldest first. A limit <= 0 means no limit.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]*models.Change, error) {
	query := `
		SELECT id, kind, entity_id, field, created_at, attempts, last_error, processed_at
		FROM outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC, rowid ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var changes []*models.Change
	for rows.Next() {
		var (
			c           models.Change
			kind, field string
			processedAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &kind, &c.EntityID, &field, &c.CreatedAt, &c.Attempts, &c.LastError, &processedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		c.Kind, c.Field = models.ChangeKind(kind), models.ChangeField(field)
		if processedAt.Valid {
			c.ProcessedAt = &processedAt.Time
		}
		changes = append(changes, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return changes, nil
}

// MarkProcessed stamps the given entries as projected
func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids ...string) error {
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE outbox SET processed_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`, now, id,
		); err != nil {
			return fmt.Errorf("failed to mark outbox entry %s: %w", id, err)
		}
	}
	return nil
}

// MarkFailed records a failed attempt and leaves the entries pending
func (r *OutboxRepository) MarkFailed(ctx context.Context, cause error, ids ...string) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	for _, id := range ids {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?`, msg, id,
		); err != nil {
			return fmt.Errorf("failed to record outbox failure %s: %w", id, err)
		}
	}
	return nil
}

// CountPending returns the number of unprocessed changes
func (r *OutboxRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE processed_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}
