package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// RatingRepository keeps one rating per (user, song).
type RatingRepository struct {
	q shared.DBTX
}

// NewRatingRepository creates a new [RatingRepository] over the given query surface
func NewRatingRepository(q shared.DBTX) *RatingRepository {
	return &RatingRepository{q: q}
}

// Upsert stores a rating, replacing any earlier value from the same user
func (r *RatingRepository) Upsert(ctx context.Context, rating *models.Rating) error {
	if err := rating.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ratings (user_id, song_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, song_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, rating.UserID, rating.SongID, rating.Value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// Mean returns the average rating of a song, or 0 when it has none
func (r *RatingRepository) Mean(ctx context.Context, songID int64) (float64, error) {
	var mean float64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(value), 0) FROM ratings WHERE song_id = ?`, songID,
	).Scan(&mean)
	if err != nil {
		return 0, fmt.Errorf("failed to compute mean rating: %w", err)
	}
	return mean, nil
}
