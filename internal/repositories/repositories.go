// package repositories provides persistence layer implementations for all catalog entities.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Session groups every repository over one query surface.
type Session struct {
	Users     *UserRepository
	Songs     *SongRepository
	Reference *ReferenceRepository
	Playlists *PlaylistRepository
	Ratings   *RatingRepository
	Shares    *ShareRepository
	Outbox    *OutboxRepository
}

// NewSession builds a [Session] over q.
func NewSession(q shared.DBTX) *Session {
	return &Session{
		Users:     NewUserRepository(q),
		Songs:     NewSongRepository(q),
		Reference: NewReferenceRepository(q),
		Playlists: NewPlaylistRepository(q),
		Ratings:   NewRatingRepository(q),
		Shares:    NewShareRepository(q),
		Outbox:    NewOutboxRepository(q),
	}
}

// CatalogOptions configures [NewCatalog].
type CatalogOptions struct {
	Policy shared.RetryPolicy // applied to [Catalog.Read]
	Logger *log.Logger
}

// Catalog is the catalog store handle shared by the projector, hooks and mutation layer.
type Catalog struct {
	db     *sql.DB
	policy shared.RetryPolicy
	logger *log.Logger
}

// NewCatalog wraps an open, migrated database. A zero policy falls back to [shared.DefaultRetryPolicy].
func NewCatalog(db *sql.DB, opts CatalogOptions) *Catalog {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = shared.DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Catalog{db: db, policy: opts.Policy, logger: shared.WithLogger(opts.Logger, "component", "catalog")}
}

// DB returns the underlying pool.
func (c *Catalog) DB() *sql.DB { return c.db }

// Session runs fn with repositories bound to one pooled connection, released when fn returns.
func (c *Catalog) Session(ctx context.Context, fn func(s *Session) error) error {
	return shared.WithConn(ctx, c.db, func(conn *sql.Conn) error {
		return fn(NewSession(conn))
	})
}

// Read runs fn in a [Catalog.Session], retrying transient failures with backoff.
//
// fn must only read: it may run more than once. [shared.ErrNotFound] and other permanent errors are returned at once.
func (c *Catalog) Read(ctx context.Context, fn func(s *Session) error) error {
	return shared.Retry(ctx, c.policy, func() error {
		return c.Session(ctx, fn)
	}, func(err error, wait time.Duration) {
		metrics.CatalogReadRetries.Inc()
		c.logger.Warn("retrying catalog read", "wait", wait, "error", err)
	})
}

// Tx runs fn with repositories bound to a transaction. The transaction commits only if fn returns nil.
func (c *Catalog) Tx(ctx context.Context, fn func(s *Session) error) error {
	return shared.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		return fn(NewSession(tx))
	})
}

// notFound wraps [shared.ErrNotFound] with the entity name and id.
func notFound(entity string, id any) error {
	return fmt.Errorf("%w: %s %v", shared.ErrNotFound, entity, id)
}
