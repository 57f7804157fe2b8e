package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedex/internal/formatter"
	"github.com/desertthunder/tunedex/internal/hooks"
	"github.com/desertthunder/tunedex/internal/index"
	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/popularity"
	"github.com/desertthunder/tunedex/internal/projector"
	"github.com/desertthunder/tunedex/internal/recommend"
	"github.com/desertthunder/tunedex/internal/repositories"
	"github.com/desertthunder/tunedex/internal/shared"
	"github.com/desertthunder/tunedex/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The catalog and index are opened on first use so that commands like setup run without them.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	catalog   *repositories.Catalog
	index     index.Index
	projector *projector.Projector
	hooks     *hooks.Dispatcher
	library   *tasks.Library
	engine    *recommend.Engine
	charts    *popularity.Aggregator
	closers   []io.Closer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Logger  *log.Logger
	Output  io.Writer
	Catalog *repositories.Catalog // opened from Config when nil
	Index   index.Index           // opened from Config when nil
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
	if opts.Catalog != nil && opts.Index != nil {
		r.wire(opts.Catalog, opts.Index)
	}
	return r
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "tunedex",
		Usage:   "Project a music catalog into a search index and recommend songs from it",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before:   r.Configure,
		After:    r.Shutdown,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, catalogCommand, userCommand, projectCommand, rebuildCommand,
		recommendCommand, topCommand, trendingCommand, searchCommand, rateCommand,
		playlistCommand, shareCommand, outboxCommand, metricsCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Configure loads the configuration file named by --config and applies its log level.
//
// A missing default config.toml keeps the current configuration; a missing file named explicitly is an error.
func (r *Runner) Configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")

	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else if cmd.IsSet("config") {
		return ctx, fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
	}

	if err := shared.ConfigureLogger(r.logger, r.config.Logging.Level); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// Shutdown releases the catalog and index if a command opened them.
func (r *Runner) Shutdown(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// SetLogger replaces the runner's logger. Components opened afterwards inherit it.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// open connects the catalog and index described by the configuration and wires every component over them.
func (r *Runner) open(ctx context.Context) error {
	if r.library != nil {
		return nil
	}

	db, err := shared.NewDatabase(shared.DSN(r.config.Database.Path, r.config.Database.BusyTimeoutMS))
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	r.closers = append(r.closers, db)
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := index.New(ctx, r.config.Index)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	idx := index.NewResilient(store, index.ResilientOptions{
		Policy:           r.config.Index.RetryPolicy(),
		WriteConcurrency: int64(r.config.Index.WriteConcurrency),
		Logger:           r.logger,
	})
	r.closers = append(r.closers, idx)

	r.logger.Debug("opened catalog and index", "catalog", r.config.Database.Path, "index", r.indexLocation())
	r.wire(repositories.NewCatalog(db, repositories.CatalogOptions{
		Policy: r.config.Database.RetryPolicy(),
		Logger: r.logger,
	}), idx)
	return nil
}

// indexLocation describes where documents live for the configured backend.
func (r *Runner) indexLocation() string {
	if r.config.Index.Backend == shared.IndexBackendElasticsearch {
		return strings.Join(r.config.Index.Elasticsearch.Addresses, ",")
	}
	return r.config.Index.Path
}

func (r *Runner) wire(catalog *repositories.Catalog, idx index.Index) {
	r.catalog = catalog
	r.index = idx
	r.projector = projector.New(catalog, idx, projector.Options{
		Workers: r.config.Projector.Workers,
		Logger:  r.logger,
	})
	r.hooks = hooks.New(catalog, r.projector, hooks.Options{
		Workers: r.config.Projector.Workers,
		Logger:  r.logger,
	})
	r.engine = recommend.New(idx, recommend.Options{
		PoolSize:        r.config.Recommend.PoolSize,
		DefaultSize:     r.config.Recommend.DefaultSize,
		MaxQueryTerms:   r.config.Recommend.MaxQueryTerms,
		PopularGenres:   r.config.Recommend.PopularGenres,
		PopularArtists:  r.config.Recommend.PopularArtists,
		MinGenreSongs:   r.config.Recommend.MinGenreSongs,
		NeighborhoodTTL: r.config.Recommend.NeighborhoodTTL(),
		Logger:          r.logger,
	})
	r.library = tasks.NewLibrary(catalog, idx, r.projector, r.hooks, tasks.Options{
		Logger:       r.logger,
		SongsChanged: r.engine.Invalidate,
	})
	r.charts = popularity.New(idx)
}

// Close closes everything [Runner.open] opened, newest first.
func (r *Runner) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// writeSongs renders songs in the --format of cmd, to --output when set.
func (r *Runner) writeSongs(cmd *cli.Command, title string, songs []models.SongDoc) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	list := formatter.SongList{Title: title, Songs: songs}
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, list, format); err != nil {
			return err
		}
		r.logger.Info("songs written", "file", path, "count", len(songs))
		return nil
	}
	return formatter.Write(r.output, list, format)
}

// reportOutcome warns when a catalog write committed but its projection did not.
func (r *Runner) reportOutcome(out tasks.Outcome) {
	if !out.Degraded() {
		return
	}
	r.logger.Warn("index update failed, catalog change kept", "error", out.IndexErr)
	r.writePlain("⚠ Saved, but the index is behind the catalog: %v\n", out.IndexErr)
	r.writePlain("  Run 'tunedex outbox drain' to catch up.\n")
}
