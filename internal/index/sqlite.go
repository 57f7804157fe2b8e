package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS song_documents (
    song_id INTEGER PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_documents (
    user_id INTEGER PRIMARY KEY,
    body TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite stores documents as JSON bodies keyed by id and evaluates queries in memory.
//
// It is the embedded backend for single-host installs and tests; [Elastic] talks to a cluster.
type SQLite struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*SQLite, error) {
	db, err := shared.NewDatabase(shared.DSN(path, 5000))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertSong replaces the stored document for doc.SongID.
func (s *SQLite) UpsertSong(ctx context.Context, doc models.SongDoc) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode song document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO song_documents (song_id, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (song_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, doc.SongID, string(body))
	if err != nil {
		return fmt.Errorf("failed to upsert song document %d: %w", doc.SongID, err)
	}
	return nil
}

// PatchSong reads, patches and rewrites one song document in a transaction.
func (s *SQLite) PatchSong(ctx context.Context, songID int64, patch SongPatch) error {
	if patch.Empty() {
		return nil
	}

	return shared.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var body string
		err := tx.QueryRowContext(ctx, `SELECT body FROM song_documents WHERE song_id = ?`, songID).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: song document %d", shared.ErrNotFound, songID)
		}
		if err != nil {
			return fmt.Errorf("failed to read song document %d: %w", songID, err)
		}

		var doc models.SongDoc
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return fmt.Errorf("failed to decode song document %d: %w", songID, err)
		}
		patch.apply(&doc)

		updated, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode song document: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE song_documents SET body = ?, updated_at = CURRENT_TIMESTAMP WHERE song_id = ?`, string(updated), songID,
		); err != nil {
			return fmt.Errorf("failed to patch song document %d: %w", songID, err)
		}
		return nil
	})
}

// DeleteSong removes a song document. Deleting an absent document is not an error.
func (s *SQLite) DeleteSong(ctx context.Context, songID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM song_documents WHERE song_id = ?`, songID); err != nil {
		return fmt.Errorf("failed to delete song document %d: %w", songID, err)
	}
	return nil
}

// GetSong returns one song document or [shared.ErrNotFound].
func (s *SQLite) GetSong(ctx context.Context, songID int64) (*models.SongDoc, error) {
	var doc models.SongDoc
	if err := s.get(ctx, `SELECT body FROM song_documents WHERE song_id = ?`, songID, "song", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// UpsertUser replaces the stored document for doc.UserID.
func (s *SQLite) UpsertUser(ctx context.Context, doc models.UserDoc) error {
	if doc.Playlists == nil {
		doc.Playlists = []models.PlaylistDoc{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_documents (user_id, body, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, doc.UserID, string(body))
	if err != nil {
		return fmt.Errorf("failed to upsert user document %d: %w", doc.UserID, err)
	}
	return nil
}

// DeleteUser removes a user document. Deleting an absent document is not an error.
func (s *SQLite) DeleteUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_documents WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user document %d: %w", userID, err)
	}
	return nil
}

// GetUser returns one user document or [shared.ErrNotFound].
func (s *SQLite) GetUser(ctx context.Context, userID int64) (*models.UserDoc, error) {
	var doc models.UserDoc
	if err := s.get(ctx, `SELECT body FROM user_documents WHERE user_id = ?`, userID, "user", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Search runs a query over every song document.
func (s *SQLite) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.run(req)
}

// Terms runs a terms aggregation over every song document.
func (s *SQLite) Terms(ctx context.Context, agg TermsAggregation) ([]Bucket, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	buckets, _, err := c.aggregate(agg)
	return buckets, err
}

// TopHits runs a terms aggregation and keeps the best hits of each bucket.
func (s *SQLite) TopHits(ctx context.Context, agg TopHitsAggregation) ([]BucketHits, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.topHits(agg)
}

// Stats counts stored documents.
func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM song_documents), (SELECT COUNT(*) FROM user_documents)`,
	).Scan(&st.Songs, &st.Users)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count documents: %w", err)
	}
	return st, nil
}

// DocumentIDs lists stored song and user ids.
func (s *SQLite) DocumentIDs(ctx context.Context) (DocumentIDs, error) {
	songs, err := s.ids(ctx, `SELECT song_id FROM song_documents ORDER BY song_id ASC`)
	if err != nil {
		return DocumentIDs{}, err
	}
	users, err := s.ids(ctx, `SELECT user_id FROM user_documents ORDER BY user_id ASC`)
	if err != nil {
		return DocumentIDs{}, err
	}
	return DocumentIDs{Songs: songs, Users: users}, nil
}

func (s *SQLite) ids(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) get(ctx context.Context, query string, id int64, kind string, dest any) error {
	var body string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s document %d", shared.ErrNotFound, kind, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s document %d: %w", kind, id, err)
	}
	if err := json.Unmarshal([]byte(body), dest); err != nil {
		return fmt.Errorf("failed to decode %s document %d: %w", kind, id, err)
	}
	return nil
}

// load reads every song document ordered by id.
func (s *SQLite) load(ctx context.Context) (*corpus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM song_documents ORDER BY song_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query song documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.SongDoc, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan song document: %w", err)
		}
		var doc models.SongDoc
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode song document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return newCorpus(docs), nil
}
