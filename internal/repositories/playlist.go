package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// PlaylistRepository persists [models.Playlist] rows.
//
// Song ids are stored as a JSON array so insertion order survives round trips.
type PlaylistRepository struct {
	q shared.DBTX
}

// NewPlaylistRepository creates a new [PlaylistRepository] over the given query surface
func NewPlaylistRepository(q shared.DBTX) *PlaylistRepository {
	return &PlaylistRepository{q: q}
}

const playlistSelect = `
	SELECT id, name, owner_id, song_ids, visibility, created_at, updated_at, deleted_at
	FROM playlists
`

// Create inserts a new playlist and sets its generated ID and timestamps
func (r *PlaylistRepository) Create(ctx context.Context, p *models.Playlist) error {
	if p.Visibility == "" {
		p.Visibility = models.Public
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	songs, err := encodeSongIDs(p.SongIDs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO playlists (name, owner_id, song_ids, visibility, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.Name, p.OwnerID, songs, string(p.Visibility), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read playlist id: %w", err)
	}
	p.ID = id
	return nil
}

// Get retrieves a live playlist by ID
func (r *PlaylistRepository) Get(ctx context.Context, id int64) (*models.Playlist, error) {
	p, err := scanPlaylist(r.q.QueryRowContext(ctx, playlistSelect+" WHERE id = ? AND deleted_at IS NULL", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("playlist", id)
	}
	return p, err
}

// GetByName retrieves the live playlist an owner has under name
func (r *PlaylistRepository) GetByName(ctx context.Context, ownerID int64, name string) (*models.Playlist, error) {
	p, err := scanPlaylist(r.q.QueryRowContext(ctx,
		playlistSelect+" WHERE owner_id = ? AND name = ? AND deleted_at IS NULL", ownerID, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("playlist", name)
	}
	return p, err
}

// Update replaces the name, songs and visibility of a live playlist
func (r *PlaylistRepository) Update(ctx context.Context, p *models.Playlist) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	songs, err := encodeSongIDs(p.SongIDs)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE playlists
		SET name = ?, song_ids = ?, visibility = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, p.Name, songs, string(p.Visibility), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	return requireAffected(result, "playlist", p.ID)
}

// Delete soft-deletes a playlist by ID
func (r *PlaylistRepository) Delete(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	result, err := r.q.ExecContext(ctx,
		`UPDATE playlists SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	return requireAffected(result, "playlist", id)
}

// ListByOwner retrieves the live playlists of one user ordered by ID
func (r *PlaylistRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Playlist, error) {
	rows, err := r.q.QueryContext(ctx,
		playlistSelect+" WHERE owner_id = ? AND deleted_at IS NULL ORDER BY id ASC", ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// OwnersOfSong lists the distinct owners whose live playlists contain songID.
func (r *PlaylistRepository) OwnersOfSong(ctx context.Context, songID int64) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT p.owner_id
		FROM playlists p, json_each(p.song_ids) j
		WHERE p.deleted_at IS NULL AND j.value = ?
		ORDER BY p.owner_id ASC
	`, songID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner id: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func encodeSongIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode song ids: %w", err)
	}
	return string(data), nil
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		p          models.Playlist
		songs      string
		visibility string
		deletedAt  sql.NullTime
	)

	err := s.Scan(&p.ID, &p.Name, &p.OwnerID, &songs, &visibility, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	if err := json.Unmarshal([]byte(songs), &p.SongIDs); err != nil {
		return nil, fmt.Errorf("failed to decode song ids for playlist %d: %w", p.ID, err)
	}
	if p.SongIDs == nil {
		p.SongIDs = []int64{}
	}

	p.Visibility = models.Visibility(visibility)
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}
