package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/desertthunder/tunedex/internal/hooks"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/repositories"
)

// RebuildOpts contains configuration for a full re-projection.
type RebuildOpts struct {
	Workers   int     // Concurrent workers (default: 8)
	RateLimit float64 // Documents per second, 0 = unlimited
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	Songs  projector.Report
	Users  projector.Report
	Failed int // documents whose projection returned an error
	Drain  hooks.Result
}

type rebuildJob struct {
	kind  models.ChangeKind
	id    int64
	label string
}

type rebuildOutcome struct {
	job    rebuildJob
	report projector.Report
	err    error
}

// Rebuild re-projects every song, then every user, removes documents the catalog no longer has,
// then drains the outbox.
//
// Songs go first so the user documents built afterwards never lag the song documents they mirror.
// Per-document failures are counted and joined into the returned error; the rebuild keeps going.
func (l *Library) Rebuild(ctx context.Context, prog chan<- ProgressUpdate, opts RebuildOpts) (*RebuildResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}

	var (
		rows  []repositories.SongRow
		users []*models.User
	)
	err := l.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		if rows, err = s.Songs.Rows(ctx); err != nil {
			return err
		}
		users, err = s.Users.List(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	sendProgress(prog, loadCatalogUpdate(len(rows), len(users)))

	songJobs := make([]rebuildJob, 0, len(rows))
	for _, r := range rows {
		songJobs = append(songJobs, rebuildJob{kind: models.ChangeSong, id: r.ID, label: r.Title})
	}
	userJobs := make([]rebuildJob, 0, len(users))
	for _, u := range users {
		userJobs = append(userJobs, rebuildJob{kind: models.ChangeUser, id: u.ID, label: u.Username})
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	result := &RebuildResult{}
	songErrs := l.runRebuildPhase(ctx, prog, ProjectSongs, songJobs, limiter, opts.Workers, &result.Songs)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	userErrs := l.runRebuildPhase(ctx, prog, ProjectUsers, userJobs, limiter, opts.Workers, &result.Users)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	errs := append(songErrs, userErrs...)
	result.Failed = len(errs)
	errs = append(errs, l.pruneOrphans(ctx, rows, users, result)...)

	drain, err := l.hooks.Drain(ctx)
	result.Drain = drain
	l.songsChanged()
	if err != nil {
		errs = append(errs, fmt.Errorf("drain outbox: %w", err))
	}
	sendProgress(prog, drainUpdate(drain.Processed, drain.Failed))

	l.logger.Info("rebuild finished",
		"songs", result.Songs.Projected, "skipped", result.Songs.Skipped,
		"users", result.Users.Projected, "removed", result.Songs.Deleted+result.Users.Deleted, "failed", result.Failed)
	return result, errors.Join(errs...)
}

// pruneOrphans deletes song and user documents whose ids were not loaded from the catalog.
func (l *Library) pruneOrphans(ctx context.Context, rows []repositories.SongRow, users []*models.User, result *RebuildResult) []error {
	var errs []error

	songIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		songIDs = append(songIDs, r.ID)
	}
	n, err := l.projector.PruneSongs(ctx, songIDs)
	result.Songs.Deleted += n
	if err != nil {
		errs = append(errs, fmt.Errorf("prune song documents: %w", err))
	}

	userIDs := make([]int64, 0, len(users))
	for _, u := range users {
		userIDs = append(userIDs, u.ID)
	}
	n, err = l.projector.PruneUsers(ctx, userIDs)
	result.Users.Deleted += n
	if err != nil {
		errs = append(errs, fmt.Errorf("prune user documents: %w", err))
	}
	return errs
}

// runRebuildPhase feeds jobs through a rate limiter to a pool of workers, adding their reports into report.
func (l *Library) runRebuildPhase(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	phase Phase,
	jobs []rebuildJob,
	limiter *rate.Limiter,
	workers int,
	report *projector.Report,
) []error {
	queue := make(chan rebuildJob, len(jobs))
	results := make(chan rebuildOutcome, len(jobs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go l.rebuildWorker(ctx, &wg, queue, results)
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			queue <- j
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		errs      []error
		completed int
	)
	for res := range results {
		completed++
		report.Projected += res.report.Projected
		report.Skipped += res.report.Skipped
		report.Deleted += res.report.Deleted

		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s %d: %w", res.job.kind, res.job.id, res.err))
			sendProgress(prog, projectFailedUpdate(phase, completed, len(jobs), res.job.label, res.err))
			continue
		}
		sendProgress(prog, projectedUpdate(phase, completed, len(jobs), res.job.label))
	}
	return errs
}

func (l *Library) rebuildWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan rebuildJob, results chan<- rebuildOutcome) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var (
			report projector.Report
			err    error
		)
		switch job.kind {
		case models.ChangeSong:
			report, err = l.projector.ProjectSongFull(ctx, job.id)
		case models.ChangeUser:
			report, err = l.projector.ProjectUser(ctx, job.id)
		}
		results <- rebuildOutcome{job: job, report: report, err: err}
	}
}
