package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// ShareRepository appends share events. Shares are never updated.
type ShareRepository struct {
	q shared.DBTX
}

// NewShareRepository creates a new [ShareRepository] over the given query surface
func NewShareRepository(q shared.DBTX) *ShareRepository {
	return &ShareRepository{q: q}
}

// Create appends a share and sets its ID
func (r *ShareRepository) Create(ctx context.Context, share *models.Share) error {
	if err := share.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidTarget, err)
	}
	if share.CreatedAt.IsZero() {
		share.CreatedAt = time.Now().UTC()
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO shares (sender_id, receiver_id, target_type, target_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, share.SenderID, share.ReceiverID, string(share.TargetType), share.TargetID, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read share id: %w", err)
	}
	share.ID = id
	return nil
}

// List returns every share in insertion order
func (r *ShareRepository) List(ctx context.Context) ([]*models.Share, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, target_type, target_id, created_at
		FROM shares
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var shares []*models.Share
	for rows.Next() {
		var (
			s      models.Share
			target string
		)
		if err := rows.Scan(&s.ID, &s.SenderID, &s.ReceiverID, &target, &s.TargetID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		s.TargetType = models.TargetType(target)
		shares = append(shares, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return shares, nil
}
