package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/justestif/spotify-listen-sync/internal/auth"
	"github.com/justestif/spotify-listen-sync/internal/config"
	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/db/postgres"
	"github.com/justestif/spotify-listen-sync/internal/db/sqlite"
	"github.com/justestif/spotify-listen-sync/internal/enrich"
	"github.com/justestif/spotify-listen-sync/internal/lastfm"
	"github.com/justestif/spotify-listen-sync/internal/logging"
	"github.com/justestif/spotify-listen-sync/internal/metrics"
	"github.com/justestif/spotify-listen-sync/internal/spotify"
	"github.com/justestif/spotify-listen-sync/internal/sync"
)

// Runner holds the dependencies shared by command actions.
type Runner struct {
	output    io.Writer
	logOutput io.Writer

	cfg    *config.Config
	logger zerolog.Logger
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config    *config.Config // Loaded from --config when nil
	Output    io.Writer
	LogOutput io.Writer
}

// NewRunner creates a new Runner.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	r := &Runner{
		output:    opts.Output,
		logOutput: opts.LogOutput,
		cfg:       opts.Config,
		logger:    zerolog.Nop(),
	}
	if r.cfg != nil {
		r.logger = r.newLogger()
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range []func(*Runner) *cli.Command{
		loginCommand, syncCommand, serveCommand, skipCommand, moodsCommand, logoutCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// load reads the configuration once per process.
func (r *Runner) load(cmd *cli.Command) error {
	if r.cfg != nil {
		return nil
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.logger = r.newLogger()
	return nil
}

func (r *Runner) newLogger() zerolog.Logger {
	return logging.New(logging.Config{
		Level:  r.cfg.Log.Level,
		Format: r.cfg.Log.Format,
		Output: r.logOutput,
	})
}

// openStore opens the configured database.
func (r *Runner) openStore(ctx context.Context) (db.Store, error) {
	switch r.cfg.Database.Driver {
	case "postgres":
		store, err := postgres.New(ctx, r.cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(r.cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite database: %w", err)
		}
		return store, nil
	}
}

func (r *Runner) credentialStore() (*auth.FileStore, error) {
	path := r.cfg.Credentials.Path
	if path == "" {
		var err error
		if path, err = auth.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return auth.NewFileStore(path), nil
}

func (r *Runner) credentialManager() (*auth.Manager, error) {
	store, err := r.credentialStore()
	if err != nil {
		return nil, err
	}
	return auth.NewManager(store, auth.Config{
		ClientID:      r.cfg.Spotify.ClientID,
		ClientSecret:  r.cfg.Spotify.ClientSecret,
		TokenURL:      r.cfg.Spotify.TokenURL,
		RefreshMargin: r.cfg.Credentials.RefreshMargin,
		Timeout:       r.cfg.Spotify.RequestTimeout,
	})
}

// newSyncService wires the credential manager, API clients and enrichment
// pipeline around store. recorder may be nil.
func (r *Runner) newSyncService(store db.Store, recorder *metrics.Recorder) (*sync.Service, error) {
	manager, err := r.credentialManager()
	if err != nil {
		return nil, err
	}

	client := spotify.New(spotify.Config{
		APIURL:  r.cfg.Spotify.APIURL,
		Timeout: r.cfg.Spotify.RequestTimeout,
	})

	enrichOpts := []enrich.Option{
		enrich.WithBatchSize(r.cfg.Enrich.BatchSize),
		enrich.WithConcurrency(r.cfg.Enrich.Concurrency),
		enrich.WithRateLimit(r.cfg.Enrich.RequestsPerSecond),
		enrich.WithBreakerFailures(r.cfg.Enrich.BreakerFailures),
		enrich.WithBackfillLimit(r.cfg.Enrich.BackfillLimit),
		enrich.WithLogger(r.logger.With().Str("component", "enrich").Logger()),
	}
	if r.cfg.LastFM.APIKey != "" {
		fallback, err := lastfm.New(lastfm.Config{
			APIKey:  r.cfg.LastFM.APIKey,
			Timeout: r.cfg.Spotify.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating Last.fm client: %w", err)
		}
		enrichOpts = append(enrichOpts, enrich.WithFallback(fallback))
	}
	pipeline := enrich.New(client, store.Tracks(), enrichOpts...)

	opts := []sync.Option{
		sync.WithLogger(r.logger),
		sync.WithMergeWindow(r.cfg.Sync.MergeWindow),
		sync.WithWindowLimit(r.cfg.Sync.WindowLimit),
	}
	if recorder != nil {
		opts = append(opts, sync.WithRecorder(recorder))
	}
	return sync.New(store, manager, client, pipeline, opts...), nil
}

func newRecorder() *metrics.Recorder {
	return metrics.New(prometheus.NewRegistry())
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(r.output, string(output)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) {
	fmt.Fprintf(r.output, format, args...)
}
