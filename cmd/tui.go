package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
	"github.com/desertthunder/tunedex/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI for charts and recommendations.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/tunedex-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if err := shared.ConfigureLogger(fileLogger, r.config.Logging.Level); err != nil {
		return err
	}
	r.SetLogger(fileLogger)

	if err := r.open(ctx); err != nil {
		return err
	}

	deps := ui.Deps{
		Recommender: r.engine,
		Charts:      r.charts,
		UserID:      cmd.Int64("user"),
		Size:        cmd.Int("size"),
		Rebuild:     tasks.RebuildOpts{Workers: r.config.Projector.Workers, RateLimit: r.config.Projector.RateLimit},
	}
	if cmd.Bool("rebuild") {
		deps.Rebuilder = r.library
	}

	model := ui.NewModel(ctx, deps)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
