// Package sync runs one listening-history sync: fetch the recently-played
// window, merge pause/resume duplicates, persist new tracks and plays,
// enrich new tracks and append a checkpoint.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/enrich"
	"github.com/justestif/spotify-listen-sync/internal/ingest"
	"github.com/justestif/spotify-listen-sync/internal/spotify"
)

// ErrInvalidMode is returned by ParseMode for unknown names.
var ErrInvalidMode = errors.New("invalid sync mode")

// Mode selects how a run frames the fetched window.
type Mode string

const (
	// ModeInitial assumes no prior checkpoint and ingests the full window.
	ModeInitial Mode = "initial"
	// ModeIncremental re-fetches the same bounded window and relies on
	// idempotent inserts. Without a prior checkpoint it behaves as initial.
	ModeIncremental Mode = "incremental"
)

// ParseMode parses a mode name. An empty name means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeInitial:
		return ModeInitial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// CredentialSource supplies a valid bearer credential.
type CredentialSource interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Fetcher reads from the Spotify Web API.
type Fetcher interface {
	RecentPlays(ctx context.Context, accessToken string, limit int) (*spotify.Window, error)
	CurrentUser(ctx context.Context, accessToken string) (*spotify.Profile, error)
}

// Enricher fills attributes of newly stored tracks.
type Enricher interface {
	Run(ctx context.Context, accessToken string, tracks []spotify.Track) *enrich.Result
}

// Recorder observes finished runs, for metrics.
type Recorder interface {
	ObserveRun(summary *RunSummary)
}

// Service orchestrates sync runs for one user.
type Service struct {
	store    db.Store
	creds    CredentialSource
	fetcher  Fetcher
	enricher Enricher
	merger   *ingest.Merger
	guard    *Guard
	recorder Recorder
	logger   zerolog.Logger

	guardKey    string
	windowLimit int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithRecorder sets the run observer.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// WithMergeWindow sets the duplicate merge threshold.
func WithMergeWindow(d time.Duration) Option {
	return func(s *Service) {
		s.merger = ingest.NewMerger(d)
	}
}

// WithWindowLimit sets how many recent plays to request.
func WithWindowLimit(n int) Option {
	return func(s *Service) {
		s.windowLimit = n
	}
}

// WithGuardKey sets the key that identifies the user to the single-flight guard.
func WithGuardKey(key string) Option {
	return func(s *Service) {
		s.guardKey = key
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a new sync service.
func New(store db.Store, creds CredentialSource, fetcher Fetcher, enricher Enricher, opts ...Option) *Service {
	s := &Service{
		store:       store,
		creds:       creds,
		fetcher:     fetcher,
		enricher:    enricher,
		merger:      ingest.NewMerger(ingest.DefaultMergeWindow),
		guard:       NewGuard(),
		logger:      zerolog.Nop(),
		guardKey:    "default",
		windowLimit: spotify.MaxRecentPlays,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs one sync. A concurrent call for the same user joins the run
// already in flight and receives its summary with Joined set.
//
// The run is not cancelled with ctx. A caller whose ctx ends stops waiting
// and gets ctx's error; the run still completes for everyone joined to it.
//
// Credential, fetch and persistence failures abort the run: the error is
// returned together with a failed summary and no checkpoint is written.
// Enrichment failures never abort a run; they are counted in the summary.
func (s *Service) Run(ctx context.Context, mode Mode) (*RunSummary, error) {
	return s.guard.Do(ctx, s.guardKey, func(ctx context.Context) (*RunSummary, error) {
		return s.run(ctx, mode)
	})
}

func (s *Service) run(ctx context.Context, mode Mode) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: s.now().UTC(),
	}
	logger := s.logger.With().Str("run_id", summary.RunID).Logger()
	logger.Info().Str("mode", string(mode)).Msg("sync started")

	err := s.execute(ctx, logger, summary)

	summary.FinishedAt = s.now().UTC()
	if err != nil {
		summary.Status = StatusFailed
		summary.Error = err.Error()
		logger.Error().Err(err).Dur("elapsed", summary.Elapsed()).Msg("sync failed")
	} else {
		summary.Status = StatusSucceeded
		logger.Info().
			Int("fetched", summary.Fetched).
			Int("new_plays", summary.NewPlays).
			Int("new_tracks", summary.NewTracks).
			Int("batches_failed", summary.BatchesFailed).
			Dur("elapsed", summary.Elapsed()).
			Msg("sync finished")
	}

	if s.recorder != nil {
		s.recorder.ObserveRun(summary)
	}
	return summary, err
}

func (s *Service) execute(ctx context.Context, logger zerolog.Logger, summary *RunSummary) error {
	token, err := s.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("getting credential: %w", err)
	}

	userID := s.syncProfile(ctx, logger, token.AccessToken, summary)

	previous, err := s.store.Checkpoints().Latest(ctx)
	switch {
	case errors.Is(err, db.ErrNotFound):
		previous = nil
		if summary.Mode == ModeIncremental {
			logger.Info().Msg("no previous checkpoint, running as initial sync")
			summary.Mode = ModeInitial
		}
	case err != nil:
		return fmt.Errorf("reading checkpoint: %w", err)
	}

	window, err := s.fetcher.RecentPlays(ctx, token.AccessToken, s.windowLimit)
	if err != nil {
		return fmt.Errorf("fetching recent plays: %w", err)
	}
	summary.Fetched = len(window.Events)
	summary.Malformed = len(window.Malformed)
	for _, m := range window.Malformed {
		logger.Warn().Err(m).Msg("skipping malformed event")
	}

	events := s.merger.Merge(window.Events)
	summary.Merged = summary.Fetched - len(events)

	newTracks, err := s.persist(ctx, events, userID, summary)
	if err != nil {
		return err
	}

	res := s.enricher.Run(ctx, token.AccessToken, newTracks)
	summary.applyEnrichment(res)

	cp, err := s.checkpoint(ctx, window, previous, summary.NewPlays)
	if err != nil {
		return err
	}
	summary.Checkpoint = cp
	return nil
}

// syncProfile upserts the current user. Failures are logged and counted;
// the run continues with a null owner.
func (s *Service) syncProfile(ctx context.Context, logger zerolog.Logger, accessToken string, summary *RunSummary) *string {
	profile, err := s.fetcher.CurrentUser(ctx, accessToken)
	if err == nil {
		err = s.store.Users().Upsert(ctx, &db.User{
			ID:          profile.ID,
			DisplayName: profile.DisplayName,
			Email:       profile.Email,
		})
	}
	if err != nil {
		summary.ProfileFailed = true
		logger.Warn().Err(err).Msg("user profile not stored")
		return nil
	}
	summary.UserID = profile.ID
	return &profile.ID
}

// persist inserts tracks and plays one event at a time and returns the
// tracks that did not exist before.
func (s *Service) persist(ctx context.Context, events []spotify.PlayEvent, userID *string, summary *RunSummary) ([]spotify.Track, error) {
	var newTracks []spotify.Track

	for _, e := range events {
		track := &db.Track{
			ID:         e.Track.ID,
			Name:       e.Track.Name,
			Artist:     e.Track.ArtistNames(),
			DurationMs: e.Track.DurationMs,
			Popularity: e.Track.Popularity,
			UserID:     userID,
		}
		if id := e.Track.PrimaryArtistID(); id != "" {
			track.PrimaryArtistID = &id
		}

		inserted, err := s.store.Tracks().Insert(ctx, track)
		if err != nil {
			return nil, fmt.Errorf("storing track %s: %w", e.Track.ID, err)
		}
		if inserted {
			newTracks = append(newTracks, e.Track)
		}

		inserted, err = s.store.Plays().Insert(ctx, &db.Play{
			TrackID:  e.Track.ID,
			PlayedAt: e.PlayedAt,
			Context:  e.Context,
		})
		if err != nil {
			return nil, fmt.Errorf("storing play %s@%s: %w", e.Track.ID, e.PlayedAt.Format(time.RFC3339), err)
		}
		if inserted {
			summary.NewPlays++
		} else {
			summary.ExistingPlays++
		}
	}

	summary.NewTracks = len(newTracks)
	return newTracks, nil
}

// checkpoint appends a download-history row covering the window. An empty
// window keeps the previous position; with no previous position nothing is
// written.
func (s *Service) checkpoint(ctx context.Context, window *spotify.Window, previous *db.Checkpoint, newPlays int) (*db.Checkpoint, error) {
	last, ok := window.Latest()
	if previous != nil && (!ok || previous.LastPlayedAt.After(last)) {
		last, ok = previous.LastPlayedAt, true
	}
	if !ok {
		return nil, nil
	}

	cp := &db.Checkpoint{
		LastPlayedAt:  last,
		PlaysIngested: newPlays,
		CompletedAt:   s.now().UTC(),
	}
	if err := s.store.Checkpoints().Append(ctx, cp); err != nil {
		return nil, fmt.Errorf("writing checkpoint: %w", err)
	}
	return cp, nil
}

// LastCheckpoint returns the most recent checkpoint, or db.ErrNotFound.
func (s *Service) LastCheckpoint(ctx context.Context) (*db.Checkpoint, error) {
	return s.store.Checkpoints().Latest(ctx)
}
