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

// SongRow is a song left-joined to its relations and its mean rating.
//
// Missing names the relations ("artist", "album", "genre") that did not resolve.
type SongRow struct {
	models.SongDetail
	Rating  float64
	Missing []string
}

// Complete reports whether artist, album and genre all resolved.
func (r SongRow) Complete() bool { return len(r.Missing) == 0 }

// Err returns [shared.ErrIncompleteRelation] for incomplete rows and nil otherwise.
func (r SongRow) Err() error {
	if r.Complete() {
		return nil
	}
	return fmt.Errorf("%w: song %d missing %s", shared.ErrIncompleteRelation, r.ID, strings.Join(r.Missing, ", "))
}

// SongRepository persists [models.Song] rows and answers the join queries used by projection.
type SongRepository struct {
	q shared.DBTX
}

// NewSongRepository creates a new [SongRepository] over the given query surface
func NewSongRepository(q shared.DBTX) *SongRepository {
	return &SongRepository{q: q}
}

const songRowSelect = `
	SELECT s.id, s.title, s.artist_id, s.album_id, s.genre_id, s.recommendation_count,
		ar.name, al.title, g.name,
		COALESCE((SELECT AVG(r.value) FROM ratings r WHERE r.song_id = s.id), 0)
	FROM songs s
	LEFT JOIN artists ar ON ar.id = s.artist_id
	LEFT JOIN albums al ON al.id = s.album_id
	LEFT JOIN genres g ON g.id = s.genre_id
`

// Create inserts a song and sets its generated ID
func (r *SongRepository) Create(ctx context.Context, song *models.Song) error {
	if err := song.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	result, err := r.q.ExecContext(ctx,
		`INSERT INTO songs (title, artist_id, album_id, genre_id, recommendation_count) VALUES (?, ?, ?, ?, ?)`,
		song.Title, song.ArtistID, song.AlbumID, song.GenreID, song.RecommendationCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert song: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read song id: %w", err)
	}
	song.ID = id
	return nil
}

// Get retrieves a song by ID without resolving relations
func (r *SongRepository) Get(ctx context.Context, id int64) (*models.Song, error) {
	var s models.Song
	err := r.q.QueryRowContext(ctx,
		`SELECT id, title, artist_id, album_id, genre_id, recommendation_count FROM songs WHERE id = ?`, id,
	).Scan(&s.ID, &s.Title, &s.ArtistID, &s.AlbumID, &s.GenreID, &s.RecommendationCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("song", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query song: %w", err)
	}
	return &s, nil
}

// Row retrieves one song joined to its relations and mean rating.
//
// Incomplete songs are returned with Missing populated. Only an absent song is an error.
func (r *SongRepository) Row(ctx context.Context, id int64) (*SongRow, error) {
	row, err := scanSongRow(r.q.QueryRowContext(ctx, songRowSelect+" WHERE s.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("song", id)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Rows retrieves every song joined to its relations and mean rating, ordered by ID
func (r *SongRepository) Rows(ctx context.Context) ([]SongRow, error) {
	rows, err := r.q.QueryContext(ctx, songRowSelect+" ORDER BY s.id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query songs: %w", err)
	}
	defer rows.Close()

	var out []SongRow
	for rows.Next() {
		row, err := scanSongRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// IDsByTitles returns every song whose title is one of titles, ordered by ID. Unknown titles match nothing.
func (r *SongRepository) IDsByTitles(ctx context.Context, titles []string) ([]int64, error) {
	ids := make([]int64, 0, len(titles))
	if len(titles) == 0 {
		return ids, nil
	}

	args := make([]any, 0, len(titles))
	for _, t := range titles {
		args = append(args, t)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(titles)), ", ")

	rows, err := r.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id FROM songs WHERE title IN (%s) ORDER BY id ASC`, placeholders), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve song titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan song id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IDsForTarget lists the songs affected by a share target, ordered by ID.
//
// A song target yields at most that song. Existence of the target itself is not checked here.
func (r *SongRepository) IDsForTarget(ctx context.Context, target models.TargetType, id int64) ([]int64, error) {
	column, err := targetColumn(target)
	if err != nil {
		return nil, err
	}

	rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM songs WHERE %s = ? ORDER BY id ASC`, column), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query songs for %s %d: %w", target, id, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var songID int64
		if err := rows.Scan(&songID); err != nil {
			return nil, fmt.Errorf("failed to scan song id: %w", err)
		}
		ids = append(ids, songID)
	}
	return ids, rows.Err()
}

// IncrementRecommendations adds one to recommendation_count on every song under the target and returns the number of songs changed.
func (r *SongRepository) IncrementRecommendations(ctx context.Context, target models.TargetType, id int64) (int64, error) {
	column, err := targetColumn(target)
	if err != nil {
		return 0, err
	}

	result, err := r.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE songs SET recommendation_count = recommendation_count + 1 WHERE %s = ?`, column), id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to increment recommendation counts: %w", err)
	}
	return result.RowsAffected()
}

// RecommendationCount returns the stored counter for one song
func (r *SongRepository) RecommendationCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT recommendation_count FROM songs WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, notFound("song", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query recommendation count: %w", err)
	}
	return count, nil
}

func targetColumn(target models.TargetType) (string, error) {
	switch target {
	case models.TargetSong:
		return "id", nil
	case models.TargetArtist:
		return "artist_id", nil
	case models.TargetAlbum:
		return "album_id", nil
	case models.TargetGenre:
		return "genre_id", nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidTarget, target)
	}
}

func scanSongRow(s scanner) (*SongRow, error) {
	var (
		row                  SongRow
		artist, album, genre sql.NullString
	)

	err := s.Scan(
		&row.ID, &row.Title, &row.ArtistID, &row.AlbumID, &row.GenreID, &row.RecommendationCount,
		&artist, &album, &genre, &row.Rating,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan song: %w", err)
	}

	row.ArtistName, row.AlbumTitle, row.GenreName = artist.String, album.String, genre.String
	if !artist.Valid {
		row.Missing = append(row.Missing, "artist")
	}
	if !album.Valid {
		row.Missing = append(row.Missing, "album")
	}
	if !genre.Valid {
		row.Missing = append(row.Missing, "genre")
	}
	return &row, nil
}
