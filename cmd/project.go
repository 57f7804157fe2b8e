package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/tunedex/internal/metrics"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
	"github.com/urfave/cli/v3"
)

func (r *Runner) writeReport(what string, rep projector.Report) {
	r.writePlain("✓ %s: %d projected, %d skipped, %d removed\n", what, rep.Projected, rep.Skipped, rep.Deleted)
}

// ProjectUsers projects every user directly. Failures exit non-zero.
func (r *Runner) ProjectUsers(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	rep, err := r.projector.ProjectAllUsers(ctx)
	r.writeReport("Users", rep)
	return err
}

// ProjectUser projects one user.
func (r *Runner) ProjectUser(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	rep, err := r.projector.ProjectUser(ctx, cmd.Int64("id"))
	if err != nil {
		return err
	}
	r.writeReport(fmt.Sprintf("User #%d", cmd.Int64("id")), rep)
	return nil
}

// ProjectSongs projects every song directly.
func (r *Runner) ProjectSongs(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	rep, err := r.projector.ProjectAllSongs(ctx)
	r.writeReport("Songs", rep)
	return err
}

// ProjectSong projects one song, either whole or a single derived field.
func (r *Runner) ProjectSong(ctx context.Context, cmd *cli.Command) error {
	songID := cmd.Int64("id")

	var field models.ChangeField
	switch f := models.ChangeField(strings.ToLower(cmd.String("field"))); f {
	case models.ChangeFull, models.ChangeRating, models.ChangeRecommendationCount:
		field = f
	default:
		return fmt.Errorf("%w: field %q (want full, rating or recommendation_count)", shared.ErrInvalidArgument, f)
	}

	if err := r.open(ctx); err != nil {
		return err
	}

	var (
		rep projector.Report
		err error
	)
	if field == models.ChangeFull {
		rep, err = r.projector.ProjectSongFull(ctx, songID)
	} else {
		rep, err = r.projector.ProjectSong(ctx, songID, field)
	}
	if err != nil {
		return err
	}
	r.writeReport(fmt.Sprintf("Song #%d (%s)", songID, field), rep)
	return nil
}

// Rebuild re-projects the catalog, printing progress as it goes.
func (r *Runner) Rebuild(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	opts := tasks.RebuildOpts{Workers: r.config.Projector.Workers, RateLimit: r.config.Projector.RateLimit}
	if cmd.IsSet("workers") {
		opts.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("rate-limit") {
		opts.RateLimit = cmd.Float("rate-limit")
	}

	r.logger.Info("starting rebuild", "workers", opts.Workers, "rate_limit", opts.RateLimit)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progressCh {
			switch update.Phase {
			case tasks.LoadCatalog:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.ProjectSongs, tasks.ProjectUsers:
				r.writePlain("   %s\n", update.Message)
			case tasks.DrainOutbox:
				r.writePlain("\n📤 %s\n", update.Message)
			}
		}
	}()

	result, err := r.library.Rebuild(ctx, progressCh, opts)
	close(progressCh)
	<-printed

	if result == nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Rebuild Complete!")
	r.writePlain("Songs: %d projected, %d skipped, %d removed\n", result.Songs.Projected, result.Songs.Skipped, result.Songs.Deleted)
	r.writePlain("Users: %d projected, %d entries skipped, %d removed\n", result.Users.Projected, result.Users.Skipped, result.Users.Deleted)
	r.writePlain("Outbox: %d processed, %d failed\n", result.Drain.Processed, result.Drain.Failed)
	if result.Failed > 0 {
		r.writePlain("\n%d documents failed to project\n", result.Failed)
	}
	return err
}

// OutboxStatus prints the number of pending changes and optionally the oldest of them.
func (r *Runner) OutboxStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	pending, err := r.hooks.Pending(ctx)
	if err != nil {
		return err
	}
	r.writePlain("Pending changes: %d\n", pending)

	limit := cmd.Int("list")
	if limit <= 0 || pending == 0 {
		return nil
	}

	entries, err := r.hooks.PendingEntries(ctx, limit)
	if err != nil {
		return err
	}
	r.writePlain("\n")
	for _, e := range entries {
		r.writePlain("%s  %s #%d (%s)  attempts=%d  queued=%s\n",
			e.ID, e.Kind, e.EntityID, e.Field, e.Attempts, e.CreatedAt.Format("2006-01-02 15:04:05"))
		if e.LastError != "" {
			r.writePlain("   last error: %s\n", e.LastError)
		}
	}
	return nil
}

// OutboxDrain projects every pending change once, or keeps doing so at --watch intervals.
func (r *Runner) OutboxDrain(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}

	if interval := cmd.Duration("watch"); interval > 0 {
		r.logger.Info("draining outbox until interrupted", "interval", interval)
		if err := r.hooks.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	res, err := r.hooks.Drain(ctx)
	r.writePlain("✓ Outbox: %d processed, %d failed\n", res.Processed, res.Failed)
	if err != nil {
		return err
	}

	pending, err := r.hooks.Pending(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d changes still pending", shared.ErrIndexUnavailable, pending)
	}
	return nil
}

// Metrics prints the tunedex collectors gathered during this process.
func (r *Runner) Metrics(ctx context.Context, cmd *cli.Command) error {
	families, err := metrics.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(families, true)
	}

	for _, f := range families {
		r.writePlain("# %s\n", f.Help)
		for _, s := range f.Samples {
			r.writePlain("%s%s %g\n", f.Name, labels(s.Labels), s.Value)
		}
	}
	return nil
}

func labels(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, m[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
