package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// ReferenceRepository manages artists, albums and genres.
type ReferenceRepository struct {
	q shared.DBTX
}

// NewReferenceRepository creates a new [ReferenceRepository] over the given query surface
func NewReferenceRepository(q shared.DBTX) *ReferenceRepository {
	return &ReferenceRepository{q: q}
}

// Artist returns the artist with the given name, creating it when absent
func (r *ReferenceRepository) Artist(ctx context.Context, name string) (*models.Artist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: artist name is required", shared.ErrInvalidInput)
	}

	id, err := r.findOrCreate(ctx,
		`SELECT id FROM artists WHERE name = ?`,
		`INSERT INTO artists (name) VALUES (?)`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("artist %q: %w", name, err)
	}
	return &models.Artist{ID: id, Name: name}, nil
}

// Album returns the album with the given title under artistID, creating it when absent
func (r *ReferenceRepository) Album(ctx context.Context, title string, artistID int64) (*models.Album, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: album title is required", shared.ErrInvalidInput)
	}

	id, err := r.findOrCreate(ctx,
		`SELECT id FROM albums WHERE title = ? AND artist_id = ?`,
		`INSERT INTO albums (title, artist_id) VALUES (?, ?)`,
		title, artistID,
	)
	if err != nil {
		return nil, fmt.Errorf("album %q: %w", title, err)
	}
	return &models.Album{ID: id, Title: title, ArtistID: artistID}, nil
}

// Genre returns the genre with the given name, creating it when absent
func (r *ReferenceRepository) Genre(ctx context.Context, name string) (*models.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: genre name is required", shared.ErrInvalidInput)
	}

	id, err := r.findOrCreate(ctx,
		`SELECT id FROM genres WHERE name = ?`,
		`INSERT INTO genres (name) VALUES (?)`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("genre %q: %w", name, err)
	}
	return &models.Genre{ID: id, Name: name}, nil
}

// Exists reports whether a share target is present in the catalog
func (r *ReferenceRepository) Exists(ctx context.Context, target models.TargetType, id int64) (bool, error) {
	var table string
	switch target {
	case models.TargetSong:
		table = "songs"
	case models.TargetArtist:
		table = "artists"
	case models.TargetAlbum:
		table = "albums"
	case models.TargetGenre:
		table = "genres"
	default:
		return false, fmt.Errorf("%w: %q", shared.ErrInvalidTarget, target)
	}

	var found int
	err := r.q.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check %s %d: %w", target, id, err)
	}
	return true, nil
}

func (r *ReferenceRepository) findOrCreate(ctx context.Context, selectQuery, insertQuery string, args ...any) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, selectQuery, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up: %w", err)
	}

	result, err := r.q.ExecContext(ctx, insertQuery, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert: %w", err)
	}
	return result.LastInsertId()
}
