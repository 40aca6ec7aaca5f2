// Package enrich fills the numeric attributes and genre of newly observed
// tracks. Enrichment is best-effort: failed batches and lookups are logged
// and counted, never returned as errors.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/spotify"
)

// Defaults.
const (
	DefaultConcurrency       = 4
	DefaultRequestsPerSecond = 5
	DefaultBreakerFailures   = 5
	DefaultBackfillLimit     = 50
)

// ErrBatchFailed marks an audio-features batch that was skipped.
var ErrBatchFailed = errors.New("enrichment batch failed")

// Source is the Spotify side of enrichment.
type Source interface {
	AudioFeatures(ctx context.Context, accessToken string, trackIDs []string) ([]db.AudioFeatures, error)
	Artist(ctx context.Context, accessToken, artistID string) (*spotify.Artist, error)
}

// TagSource resolves a genre from an artist name when Spotify has none.
type TagSource interface {
	ArtistTopTag(ctx context.Context, artist string) (string, error)
}

// Result counts what one enrichment pass did.
type Result struct {
	FeaturesApplied int
	BatchesFailed   int
	GenresSet       int
	GenresFailed    int
	BackfillSet     int
	BackfillFailed  int

	// BatchErrors holds one error wrapping ErrBatchFailed per skipped batch.
	BatchErrors []error
}

// Pipeline runs enrichment against a track repository.
type Pipeline struct {
	source   Source
	tracks   db.TrackRepository
	fallback TagSource

	batchSize     int
	concurrency   int
	backfillLimit int

	limiter *rate.Limiter
	logger  zerolog.Logger

	rps             float64
	breakerFailures uint32
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the audio-features batch size, capped at the endpoint ceiling.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = min(n, spotify.MaxAudioFeatureIDs)
		}
	}
}

// WithConcurrency sets the number of concurrent lookups.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRateLimit caps outbound lookups per second. A non-positive value
// disables the limit.
func WithRateLimit(rps float64) Option {
	return func(p *Pipeline) {
		p.rps = rps
	}
}

// WithBreakerFailures sets how many consecutive failed calls to one endpoint
// open its breaker.
func WithBreakerFailures(n uint32) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.breakerFailures = n
		}
	}
}

// WithBackfillLimit bounds how many genre-less tracks one backfill pass visits.
func WithBackfillLimit(n int) Option {
	return func(p *Pipeline) {
		if n >= 0 {
			p.backfillLimit = n
		}
	}
}

// WithFallback sets the secondary genre source.
func WithFallback(ts TagSource) Option {
	return func(p *Pipeline) {
		p.fallback = ts
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline.
func New(source Source, tracks db.TrackRepository, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:          source,
		tracks:          tracks,
		batchSize:       spotify.MaxAudioFeatureIDs,
		concurrency:     DefaultConcurrency,
		backfillLimit:   DefaultBackfillLimit,
		rps:             DefaultRequestsPerSecond,
		breakerFailures: DefaultBreakerFailures,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.rps > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(p.rps), p.concurrency)
	} else {
		p.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	return p
}

// breakers holds one breaker per remote endpoint for a single run. The
// backfill pass has its own artist breaker.
type breakers struct {
	features *gobreaker.CircuitBreaker[any]
	genres   *gobreaker.CircuitBreaker[any]
	backfill *gobreaker.CircuitBreaker[any]
}

func (p *Pipeline) newBreakers() *breakers {
	return &breakers{
		features: newBreaker("audio-features", p.breakerFailures, p.logger),
		genres:   newBreaker("artist-genres", p.breakerFailures, p.logger),
		backfill: newBreaker("genre-backfill", p.breakerFailures, p.logger),
	}
}

func newBreaker(name string, failures uint32, logger zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// call runs fn under the rate limiter and the given circuit breaker. A
// cancelled context fails the call without touching the breaker.
func call[T any](ctx context.Context, p *Pipeline, cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return zero, err
	}
	v, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// Run enriches the given newly inserted tracks, then backfills genres for
// any stored track still missing one. Work left over when ctx is cancelled
// is counted as failed.
func (p *Pipeline) Run(ctx context.Context, accessToken string, tracks []spotify.Track) *Result {
	res := &Result{}
	br := p.newBreakers()

	p.applyAudioFeatures(ctx, accessToken, tracks, br.features, res)

	genres := newArtistCache()
	pending := p.resolveGenres(ctx, accessToken, tracks, genres, br.genres, res)
	p.backfillGenres(ctx, accessToken, pending, genres, br.backfill, res)

	return res
}

// forEach runs fn for every index in [0, n) on the bounded worker pool.
// Every index is visited; fn sees a cancelled ctx through its own calls.
func (p *Pipeline) forEach(n int, fn func(i int)) {
	workCh := make(chan int, n)
	for i := 0; i < n; i++ {
		workCh <- i
	}
	close(workCh)

	var wg sync.WaitGroup
	for w := 0; w < min(p.concurrency, n); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// applyAudioFeatures fetches and stores numeric attributes batch by batch.
// A batch is written in full or not at all.
func (p *Pipeline) applyAudioFeatures(ctx context.Context, accessToken string, tracks []spotify.Track, cb *gobreaker.CircuitBreaker[any], res *Result) {
	batches := chunk(trackIDs(tracks), p.batchSize)

	var mu sync.Mutex
	p.forEach(len(batches), func(i int) {
		batch := batches[i]

		features, err := call(ctx, p, cb, func() ([]db.AudioFeatures, error) {
			return p.source.AudioFeatures(ctx, accessToken, batch)
		})
		if err == nil {
			err = p.tracks.ApplyAudioFeatures(ctx, features)
		}

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			batchErr := fmt.Errorf("%w: batch %d (%d ids): %w", ErrBatchFailed, i, len(batch), err)
			res.BatchesFailed++
			res.BatchErrors = append(res.BatchErrors, batchErr)
			p.logger.Warn().Err(batchErr).Int("batch", i).Int("ids", len(batch)).Msg("audio features batch skipped")
			return
		}
		res.FeaturesApplied += len(features)
	})
}

// genreTarget is a track waiting for its artist's genre.
type genreTarget struct {
	trackID  string
	artistID string
}

// resolveGenres looks up each new track's primary artist once and returns
// the tracks whose lookup failed.
func (p *Pipeline) resolveGenres(ctx context.Context, accessToken string, tracks []spotify.Track, genres *artistCache, cb *gobreaker.CircuitBreaker[any], res *Result) []genreTarget {
	targets := make([]genreTarget, 0, len(tracks))
	for _, t := range tracks {
		if id := t.PrimaryArtistID(); id != "" {
			targets = append(targets, genreTarget{trackID: t.ID, artistID: id})
		}
	}
	byArtist, artists := groupByArtist(targets)

	var (
		mu      sync.Mutex
		pending []genreTarget
	)
	p.forEach(len(artists), func(i int) {
		artistID := artists[i]
		genre, err := p.lookupGenre(ctx, accessToken, artistID, cb)

		set, failed := 0, 0
		var retry []genreTarget
		if err != nil {
			failed = len(byArtist[artistID])
			for _, trackID := range byArtist[artistID] {
				retry = append(retry, genreTarget{trackID: trackID, artistID: artistID})
			}
			p.logger.Warn().Err(err).Str("artist_id", artistID).Msg("genre lookup failed")
		} else {
			genres.put(artistID, genre)
			if genre != "" {
				for _, trackID := range byArtist[artistID] {
					if err := p.tracks.SetGenre(ctx, trackID, genre); err != nil {
						failed++
						p.logger.Warn().Err(err).Str("track_id", trackID).Msg("storing genre failed")
						continue
					}
					set++
				}
			}
		}

		mu.Lock()
		res.GenresSet += set
		res.GenresFailed += failed
		pending = append(pending, retry...)
		mu.Unlock()
	})
	return pending
}

// backfillGenres retries the tracks whose lookup failed in this run, then
// any other stored track that still has no genre. Artists already resolved
// in this run are not looked up again.
func (p *Pipeline) backfillGenres(ctx context.Context, accessToken string, pending []genreTarget, genres *artistCache, cb *gobreaker.CircuitBreaker[any], res *Result) {
	targets := pending
	if p.backfillLimit > 0 {
		missing, err := p.tracks.MissingGenre(ctx, p.backfillLimit)
		if err != nil {
			p.logger.Warn().Err(err).Msg("listing tracks without genre failed")
		}
		seen := make(map[string]bool, len(pending))
		for _, t := range pending {
			seen[t.trackID] = true
		}
		for _, t := range missing {
			if seen[t.ID] || t.PrimaryArtistID == nil || *t.PrimaryArtistID == "" {
				continue
			}
			targets = append(targets, genreTarget{trackID: t.ID, artistID: *t.PrimaryArtistID})
		}
	}

	byArtist, artists := groupByArtist(targets)

	var mu sync.Mutex
	p.forEach(len(artists), func(i int) {
		artistID := artists[i]
		ids := byArtist[artistID]

		genre, ok := genres.get(artistID)
		if !ok {
			var err error
			genre, err = p.lookupGenre(ctx, accessToken, artistID, cb)
			if err != nil {
				mu.Lock()
				res.BackfillFailed += len(ids)
				mu.Unlock()
				p.logger.Warn().Err(err).
					Str("artist_id", artistID).
					Strs("track_ids", ids).
					Msg("genre backfill failed")
				return
			}
			genres.put(artistID, genre)
		}
		if genre == "" {
			return
		}

		set, failed := 0, 0
		for _, trackID := range ids {
			if err := p.tracks.SetGenre(ctx, trackID, genre); err != nil {
				failed++
				p.logger.Warn().Err(err).Str("track_id", trackID).Msg("storing backfilled genre failed")
				continue
			}
			set++
		}
		mu.Lock()
		res.BackfillSet += set
		res.BackfillFailed += failed
		mu.Unlock()
	})
}

// lookupGenre returns the artist's first Spotify genre, falling back to the
// top Last.fm tag. "" means the artist has no genre anywhere.
func (p *Pipeline) lookupGenre(ctx context.Context, accessToken, artistID string, cb *gobreaker.CircuitBreaker[any]) (string, error) {
	artist, err := call(ctx, p, cb, func() (*spotify.Artist, error) {
		return p.source.Artist(ctx, accessToken, artistID)
	})
	if err != nil {
		return "", err
	}
	if genre := artist.PrimaryGenre(); genre != "" || p.fallback == nil || artist.Name == "" {
		return genre, nil
	}

	genre, err := p.fallback.ArtistTopTag(ctx, artist.Name)
	if err != nil {
		// Spotify answered; a fallback failure just leaves the genre empty.
		p.logger.Debug().Err(err).Str("artist", artist.Name).Msg("fallback genre lookup failed")
		return "", nil
	}
	return genre, nil
}

// artistCache holds successful genre lookups for one run.
type artistCache struct {
	mu     sync.Mutex
	genres map[string]string
}

func newArtistCache() *artistCache {
	return &artistCache{genres: make(map[string]string)}
}

func (c *artistCache) get(artistID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.genres[artistID]
	return g, ok
}

func (c *artistCache) put(artistID, genre string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genres[artistID] = genre
}

// groupByArtist maps artist IDs to their tracks and lists the artists in
// first-seen order.
func groupByArtist(targets []genreTarget) (map[string][]string, []string) {
	byArtist := make(map[string][]string)
	var artists []string
	for _, t := range targets {
		if _, ok := byArtist[t.artistID]; !ok {
			artists = append(artists, t.artistID)
		}
		byArtist[t.artistID] = append(byArtist[t.artistID], t.trackID)
	}
	return byArtist, artists
}

func trackIDs(tracks []spotify.Track) []string {
	ids := make([]string, 0, len(tracks))
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
	}
	return ids
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
