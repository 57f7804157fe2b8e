// Package hooks projects outbox changes into the document index.
//
// Mutations write their catalog change and outbox entries in one transaction, then hand the
// entries to [Dispatcher.Dispatch] so the caller reads its own writes. Entries that fail stay
// pending with their attempt count and last error until [Dispatcher.Drain] or [Dispatcher.Run]
// picks them up again. The catalog is never rolled back because projection failed.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Projector is the subset of [projector.Projector] the dispatcher drives.
type Projector interface {
	ProjectSong(ctx context.Context, songID int64, field models.ChangeField) (projector.Report, error)
	ProjectSongFull(ctx context.Context, songID int64) (projector.Report, error)
	ProjectUser(ctx context.Context, userID int64) (projector.Report, error)
}

// Options configures a [Dispatcher].
type Options struct {
	Workers   int // concurrent projections per dispatch, default 8
	BatchSize int // entries per drain round, default 256
	Logger    *log.Logger
}

// Dispatcher applies outbox entries through a [Projector].
type Dispatcher struct {
	catalog   *repositories.Catalog
	projector Projector
	workers   int
	batch     int
	logger    *log.Logger
}

// Result summarizes one dispatch.
type Result struct {
	Processed int
	Failed    int
	Report    projector.Report
}

// New creates a [Dispatcher].
func New(catalog *repositories.Catalog, p Projector, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Dispatcher{
		catalog:   catalog,
		projector: p,
		workers:   opts.Workers,
		batch:     opts.BatchSize,
		logger:    shared.WithLogger(opts.Logger, "component", "hooks"),
	}
}

// Dispatch projects entries and records the outcome of each in the outbox.
//
// Entries asking for the same work are projected once. Projection failures are joined into the
// returned error; they never undo the catalog write that produced the entries.
func (d *Dispatcher) Dispatch(ctx context.Context, entries []*models.Change) (Result, error) {
	if len(entries) == 0 {
		return Result{}, nil
	}

	groups := make(map[string][]*models.Change)
	var order []string
	for _, e := range entries {
		key := e.Key()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var (
		mu        sync.Mutex
		result    Result
		errs      []error
		processed []string
		failed    = make(map[string][]string)
	)

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for _, key := range order {
		group := groups[key]
		g.Go(func() error {
			report, err := d.apply(ctx, group[0])

			ids := make([]string, 0, len(group))
			for _, e := range group {
				ids = append(ids, e.ID)
			}

			mu.Lock()
			defer mu.Unlock()
			result.Report.Projected += report.Projected
			result.Report.Skipped += report.Skipped
			result.Report.Deleted += report.Deleted
			if err != nil {
				result.Failed += len(ids)
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				failed[err.Error()] = append(failed[err.Error()], ids...)
				return nil
			}
			result.Processed += len(ids)
			processed = append(processed, ids...)
			return nil
		})
	}
	_ = g.Wait()

	if err := d.record(ctx, processed, failed); err != nil {
		errs = append(errs, err)
	}

	metrics.OutboxDispatched.WithLabelValues("processed").Add(float64(result.Processed))
	metrics.OutboxDispatched.WithLabelValues("failed").Add(float64(result.Failed))
	if result.Failed > 0 {
		d.logger.Error("projection failed", "failed", result.Failed, "processed", result.Processed)
	} else {
		d.logger.Debug("dispatched changes", "processed", result.Processed)
	}
	return result, errors.Join(errs...)
}

func (d *Dispatcher) apply(ctx context.Context, c *models.Change) (projector.Report, error) {
	switch c.Kind {
	case models.ChangeSong:
		if c.Field == models.ChangeFull || c.Field == "" {
			return d.projector.ProjectSongFull(ctx, c.EntityID)
		}
		return d.projector.ProjectSong(ctx, c.EntityID, c.Field)
	case models.ChangeUser:
		return d.projector.ProjectUser(ctx, c.EntityID)
	default:
		return projector.Report{}, fmt.Errorf("%w: unknown change kind %q", shared.ErrInvalidInput, c.Kind)
	}
}

// record writes outcomes back to the outbox. It uses a fresh context so a cancelled dispatch still leaves an accurate trail.
func (d *Dispatcher) record(ctx context.Context, processed []string, failed map[string][]string) error {
	ctx = context.WithoutCancel(ctx)
	return d.catalog.Tx(ctx, func(s *repositories.Session) error {
		if err := s.Outbox.MarkProcessed(ctx, processed...); err != nil {
			return err
		}
		for msg, ids := range failed {
			if err := s.Outbox.MarkFailed(ctx, errors.New(msg), ids...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pending returns the number of unprocessed entries and updates the pending gauge.
func (d *Dispatcher) Pending(ctx context.Context) (int, error) {
	var n int
	err := d.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		n, err = s.Outbox.CountPending(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.OutboxPending.Set(float64(n))
	return n, nil
}

// PendingEntries lists unprocessed entries oldest first. A limit <= 0 lists all.
func (d *Dispatcher) PendingEntries(ctx context.Context, limit int) ([]*models.Change, error) {
	var entries []*models.Change
	err := d.catalog.Read(ctx, func(s *repositories.Session) (err error) {
		entries, err = s.Outbox.Pending(ctx, limit)
		return err
	})
	return entries, err
}

// Drain dispatches pending entries in batches until none remain or a batch makes no progress.
func (d *Dispatcher) Drain(ctx context.Context) (Result, error) {
	var total Result
	for {
		entries, err := d.PendingEntries(ctx, d.batch)
		if err != nil {
			return total, err
		}
		if len(entries) == 0 {
			break
		}

		res, err := d.Dispatch(ctx, entries)
		total.Processed += res.Processed
		total.Failed += res.Failed
		total.Report.Projected += res.Report.Projected
		total.Report.Skipped += res.Report.Skipped
		total.Report.Deleted += res.Report.Deleted

		if err != nil || res.Processed == 0 {
			if _, perr := d.Pending(ctx); perr != nil {
				d.logger.Warn("failed to count pending changes", "error", perr)
			}
			return total, err
		}
	}

	_, err := d.Pending(ctx)
	return total, err
}

// Run drains the outbox every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if res, err := d.Drain(ctx); err != nil {
			d.logger.Warn("outbox drain incomplete", "processed", res.Processed, "failed", res.Failed, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
