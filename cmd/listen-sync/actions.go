package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/justestif/spotify-listen-sync/internal/auth"
	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/moods"
	"github.com/justestif/spotify-listen-sync/internal/skip"
	"github.com/justestif/spotify-listen-sync/internal/sync"
	"github.com/justestif/spotify-listen-sync/internal/web"
)

// Login runs the authorization code flow and stores the credential.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	store, err := r.credentialStore()
	if err != nil {
		return err
	}

	err = auth.Login(ctx, auth.LoginConfig{
		ClientID:     r.cfg.Spotify.ClientID,
		ClientSecret: r.cfg.Spotify.ClientSecret,
		RedirectURL:  r.cfg.Spotify.RedirectURL,
	}, store, r.logger)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	r.writePlain("Credential stored at %s\n", store.Path())
	return nil
}

// Logout deletes the stored credential.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}
	manager, err := r.credentialManager()
	if err != nil {
		return err
	}
	if err := manager.Logout(); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	r.writePlain("Logged out\n")
	return nil
}

// Sync runs one sync job and prints its summary. The summary is printed
// for failed runs too.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := r.newSyncService(store, nil)
	if err != nil {
		return err
	}

	mode := sync.ModeIncremental
	if cmd.Bool("initial") {
		mode = sync.ModeInitial
	}

	summary, runErr := svc.Run(ctx, mode)
	if summary != nil {
		if cmd.Bool("json") {
			if err := r.writeJSON(summary); err != nil {
				return err
			}
		} else {
			r.printSummary(summary)
		}
	}
	if errors.Is(runErr, auth.ErrCredentialUnavailable) {
		return fmt.Errorf("%w (run `listen-sync login`)", runErr)
	}
	return runErr
}

func (r *Runner) printSummary(s *sync.RunSummary) {
	r.writePlain("Run %s (%s): %s in %s\n", s.RunID, s.Mode, s.Status, s.Elapsed().Round(time.Millisecond))
	if s.Error != "" {
		r.writePlain("  Error:            %s\n", s.Error)
	}
	r.writePlain("  Fetched:          %d (%d malformed, %d merged)\n", s.Fetched, s.Malformed, s.Merged)
	r.writePlain("  New plays:        %d (%d already stored)\n", s.NewPlays, s.ExistingPlays)
	r.writePlain("  New tracks:       %d\n", s.NewTracks)
	r.writePlain("  Audio features:   %d applied, %d batches failed\n", s.FeaturesApplied, s.BatchesFailed)
	r.writePlain("  Genres:           %d set, %d failed\n", s.GenresSet, s.GenresFailed)
	r.writePlain("  Genre backfill:   %d set, %d failed\n", s.BackfillSet, s.BackfillFailed)
	if s.Checkpoint != nil {
		r.writePlain("  Checkpoint:       %s\n", s.Checkpoint.LastPlayedAt.Format(time.RFC3339))
	}
}

// Serve starts the HTTP API and blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	recorder := newRecorder()
	svc, err := r.newSyncService(store, recorder)
	if err != nil {
		return err
	}

	addr := r.cfg.Server.Addr
	if cmd.String("addr") != "" {
		addr = cmd.String("addr")
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:    addr,
		Store:   store,
		Syncer:  svc,
		Metrics: recorder.Handler(),
		Logger:  r.logger.With().Str("component", "http").Logger(),
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return server.Run(ctx)
}

// Skip prints the skip verdict of one stored play.
func (r *Runner) Skip(ctx context.Context, cmd *cli.Command) error {
	id, err := parsePlayID(cmd.StringArg("play-id"))
	if err != nil {
		return err
	}
	if err := r.load(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	play, err := store.Plays().Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("play %d not found", id)
	}
	if err != nil {
		return err
	}
	track, err := store.Tracks().Get(ctx, play.TrackID)
	if err != nil {
		return fmt.Errorf("loading track %s: %w", play.TrackID, err)
	}

	result, err := skip.NewDetector(store.Plays()).WasSkipped(ctx, play, track.DurationMs)
	if err != nil {
		return err
	}

	r.writePlain("%s - %s at %s\n", track.Artist, track.Name, play.PlayedAt.Format(time.RFC3339))
	r.writePlain("%s: %s\n", result.Verdict, result.Reason)
	return nil
}

func parsePlayID(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("play ID is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid play ID %q", raw)
	}
	return id, nil
}

// Moods prints mood groups of the enriched tracks.
func (r *Runner) Moods(ctx context.Context, cmd *cli.Command) error {
	if err := r.load(cmd); err != nil {
		return err
	}

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	tracks, err := store.Tracks().WithAudioFeatures(ctx)
	if err != nil {
		return fmt.Errorf("loading tracks: %w", err)
	}

	cfg := moods.DefaultConfig()
	cfg.K = int(cmd.Int("k"))
	groups, ungrouped, err := moods.Group(tracks, cfg)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(groups)
	}
	r.printMoods(groups, ungrouped)
	return nil
}

func (r *Runner) printMoods(groups []moods.MoodGroup, ungrouped []db.Track) {
	if len(groups) == 0 {
		r.writePlain("No mood groups yet (%d tracks without a group)\n", len(ungrouped))
		return
	}
	for _, g := range groups {
		r.writePlain("%s (%d tracks)\n", g.Label, len(g.Tracks))
		r.writePlain("  %s\n", g.Description)
		for _, t := range g.Tracks {
			r.writePlain("    %s - %s\n", t.Artist, t.Name)
		}
	}
	if len(ungrouped) > 0 {
		r.writePlain("%d tracks without a group\n", len(ungrouped))
	}
}
