// Package projector derives index documents from catalog rows.
//
// Songs become [models.SongDoc] only when their artist, album and genre all resolve; otherwise any
// stale document is removed and the song is counted as skipped. Users become [models.UserDoc]
// holding their live playlists with songs in playlist order. Every operation is an idempotent
// re-derivation, so re-running it with no catalog change writes identical documents.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Options configures a [Projector].
type Options struct {
	Workers int // concurrent per-item projections, default 8
	Logger  *log.Logger
}

// Projector writes catalog state into the document index.
type Projector struct {
	catalog *repositories.Catalog
	index   index.Index
	workers int
	logger  *log.Logger
}

// Report tallies one projection run.
type Report struct {
	Projected int // documents written
	Skipped   int // songs or playlist entries left out for unresolved relations
	Deleted   int // documents removed
}

func (r *Report) add(o Report) {
	r.Projected += o.Projected
	r.Skipped += o.Skipped
	r.Deleted += o.Deleted
}

// New creates a [Projector].
func New(catalog *repositories.Catalog, idx index.Index, opts Options) *Projector {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Projector{
		catalog: catalog,
		index:   idx,
		workers: opts.Workers,
		logger:  shared.WithLogger(opts.Logger, "component", "projector"),
	}
}

// ProjectAllSongs upserts a document for every complete song and removes documents of incomplete ones.
func (p *Projector) ProjectAllSongs(ctx context.Context) (Report, error) {
	var rows []repositories.SongRow
	err := p.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		rows, err = s.Songs.Rows(ctx)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	var projected, skipped, deleted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, row := range rows {
		g.Go(func() error {
			wrote, err := p.writeSong(gctx, row)
			if err != nil {
				return err
			}
			if wrote {
				projected.Add(1)
			} else {
				skipped.Add(1)
				deleted.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	report := Report{Projected: int(projected.Load()), Skipped: int(skipped.Load()), Deleted: int(deleted.Load())}
	if err == nil {
		ids := make([]int64, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		var pruned int
		pruned, err = p.PruneSongs(ctx, ids)
		report.Deleted += pruned
	}
	p.logger.Info("projected songs", "projected", report.Projected, "skipped", report.Skipped, "deleted", report.Deleted)
	return report, err
}

// ProjectSongFull re-derives one song document. An absent or incomplete song has its document removed.
func (p *Projector) ProjectSongFull(ctx context.Context, songID int64) (Report, error) {
	var row *repositories.SongRow
	err := p.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		row, err = s.Songs.Row(ctx, songID)
		return err
	})
	if errors.Is(err, shared.ErrNotFound) {
		return Report{Deleted: 1}, p.index.DeleteSong(ctx, songID)
	}
	if err != nil {
		return Report{}, err
	}

	wrote, err := p.writeSong(ctx, *row)
	if err != nil {
		return Report{}, err
	}
	if !wrote {
		return Report{Skipped: 1, Deleted: 1}, nil
	}
	return Report{Projected: 1}, nil
}

// ProjectSong refreshes one field of a song document with a partial update.
//
// [models.ChangeFull], or a document that does not exist yet, falls back to [Projector.ProjectSongFull].
func (p *Projector) ProjectSong(ctx context.Context, songID int64, field models.ChangeField) (Report, error) {
	var patch index.SongPatch
	err := p.catalog.Read(ctx, func(s *repositories.Session) error {
		switch field {
		case models.ChangeRating:
			mean, err := s.Ratings.Mean(ctx, songID)
			if err != nil {
				return err
			}
			patch.Rating = &mean
		case models.ChangeRecommendationCount:
			count, err := s.Songs.RecommendationCount(ctx, songID)
			if err != nil {
				return err
			}
			patch.RecommendationCount = &count
		}
		return nil
	})
	if errors.Is(err, shared.ErrNotFound) {
		return p.ProjectSongFull(ctx, songID)
	}
	if err != nil {
		return Report{}, err
	}

	if patch.Empty() {
		return p.ProjectSongFull(ctx, songID)
	}

	err = p.index.PatchSong(ctx, songID, patch)
	if errors.Is(err, shared.ErrNotFound) {
		p.logger.Debug("song document missing, projecting in full", "song_id", songID)
		return p.ProjectSongFull(ctx, songID)
	}
	if err != nil {
		return Report{}, err
	}

	metrics.ProjectedDocuments.WithLabelValues("song").Inc()
	return Report{Projected: 1}, nil
}

// writeSong upserts a complete row or deletes the document of an incomplete one. It reports whether a document was written.
func (p *Projector) writeSong(ctx context.Context, row repositories.SongRow) (bool, error) {
	if !row.Complete() {
		metrics.SkippedSongs.Inc()
		p.logger.Debug("skipping song", "song_id", row.ID, "missing", row.Missing)
		if err := p.index.DeleteSong(ctx, row.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := p.index.UpsertSong(ctx, models.NewSongDoc(row.SongDetail, row.Rating)); err != nil {
		p.logger.Error("failed to write song document", "song_id", row.ID, "error", err)
		return false, err
	}
	metrics.ProjectedDocuments.WithLabelValues("song").Inc()
	return true, nil
}

// ProjectAllUsers re-derives the document of every live user.
func (p *Projector) ProjectAllUsers(ctx context.Context) (Report, error) {
	var users []*models.User
	err := p.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		users, err = s.Users.List(ctx)
		return err
	})
	if err != nil {
		return Report{}, err
	}

	reports := make([]Report, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, user := range users {
		g.Go(func() error {
			r, err := p.ProjectUser(gctx, user.ID)
			reports[i] = r
			return err
		})
	}

	err = g.Wait()
	var total Report
	for _, r := range reports {
		total.add(r)
	}
	if err == nil {
		ids := make([]int64, 0, len(users))
		for _, u := range users {
			ids = append(ids, u.ID)
		}
		var pruned int
		pruned, err = p.PruneUsers(ctx, ids)
		total.Deleted += pruned
	}
	p.logger.Info("projected users", "projected", total.Projected, "skipped", total.Skipped, "deleted", total.Deleted)
	return total, err
}

// PruneSongs deletes every song document whose id is not in catalogIDs and returns how many went.
func (p *Projector) PruneSongs(ctx context.Context, catalogIDs []int64) (int, error) {
	stored, err := p.index.DocumentIDs(ctx)
	if err != nil {
		return 0, err
	}
	return p.prune(ctx, "song", stored.Songs, catalogIDs, p.index.DeleteSong)
}

// PruneUsers deletes every user document whose id is not in catalogIDs and returns how many went.
func (p *Projector) PruneUsers(ctx context.Context, catalogIDs []int64) (int, error) {
	stored, err := p.index.DocumentIDs(ctx)
	if err != nil {
		return 0, err
	}
	return p.prune(ctx, "user", stored.Users, catalogIDs, p.index.DeleteUser)
}

func (p *Projector) prune(ctx context.Context, kind string, stored, keep []int64, del func(context.Context, int64) error) (int, error) {
	live := make(map[int64]bool, len(keep))
	for _, id := range keep {
		live[id] = true
	}

	var (
		removed int
		errs    []error
	)
	for _, id := range stored {
		if live[id] {
			continue
		}
		if err := del(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s %d: %w", kind, id, err))
			continue
		}
		removed++
		p.logger.Debug("removed orphan document", "kind", kind, "id", id)
	}
	return removed, errors.Join(errs...)
}

// ProjectUser re-derives one user document. A deleted or absent user has its document removed.
func (p *Projector) ProjectUser(ctx context.Context, userID int64) (Report, error) {
	var (
		doc     models.UserDoc
		skipped int
	)
	err := p.catalog.Read(ctx, func(s *repositories.Session) error {
		user, err := s.Users.Get(ctx, userID)
		if err != nil {
			return err
		}
		doc, skipped, err = p.buildUserDoc(ctx, s, user)
		return err
	})
	if errors.Is(err, shared.ErrNotFound) {
		return Report{Deleted: 1}, p.index.DeleteUser(ctx, userID)
	}
	if err != nil {
		return Report{}, err
	}

	if err := p.index.UpsertUser(ctx, doc); err != nil {
		p.logger.Error("failed to write user document", "user_id", userID, "error", err)
		return Report{Skipped: skipped}, err
	}
	metrics.ProjectedDocuments.WithLabelValues("user").Inc()
	return Report{Projected: 1, Skipped: skipped}, nil
}

// buildUserDoc resolves every playlist entry of user. Unresolvable entries are skipped and counted.
func (p *Projector) buildUserDoc(ctx context.Context, s *repositories.Session, user *models.User) (models.UserDoc, int, error) {
	doc := models.UserDoc{
		UserID:         user.ID,
		Username:       user.Username,
		CredentialHash: user.CredentialHash,
		Playlists:      []models.PlaylistDoc{},
	}

	playlists, err := s.Playlists.ListByOwner(ctx, user.ID)
	if err != nil {
		return doc, 0, err
	}

	resolved := make(map[int64]*repositories.SongRow)
	skipped := 0
	for _, pl := range playlists {
		pd := models.PlaylistDoc{
			PlaylistID: pl.ID,
			Name:       pl.Name,
			Visibility: pl.Visibility,
			Songs:      make([]models.SongEntry, 0, len(pl.SongIDs)),
		}

		for _, songID := range pl.SongIDs {
			row, ok := resolved[songID]
			if !ok {
				row, err = s.Songs.Row(ctx, songID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return doc, skipped, fmt.Errorf("playlist %d: %w", pl.ID, err)
				}
				resolved[songID] = row
			}

			if row == nil || !row.Complete() {
				skipped++
				metrics.SkippedSongs.Inc()
				p.logger.Debug("skipping playlist entry", "playlist_id", pl.ID, "song_id", songID)
				continue
			}
			pd.Songs = append(pd.Songs, models.NewSongEntry(row.SongDetail))
		}
		doc.Playlists = append(doc.Playlists, pd)
	}
	return doc, skipped, nil
}
