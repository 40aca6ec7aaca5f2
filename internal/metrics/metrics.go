// Package metrics exposes sync run outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justestif/spotify-listen-sync/internal/sync"
)

const namespace = "listen_sync"

// Recorder turns run summaries into metrics.
type Recorder struct {
	gatherer prometheus.Gatherer

	runs           *prometheus.CounterVec
	runDuration    prometheus.Histogram
	playsIngested  prometheus.Counter
	malformed      prometheus.Counter
	batchesFailed  prometheus.Counter
	genresFailed   prometheus.Counter
	lastCheckpoint prometheus.Gauge
}

// New registers the sync metrics on reg.
func New(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Sync runs by outcome",
			},
			[]string{"status", "mode"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of sync runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		playsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plays_ingested_total",
				Help:      "New plays stored",
			},
		),
		malformed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_events_total",
				Help:      "Feed items skipped for missing required fields",
			},
		),
		batchesFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_batches_failed_total",
				Help:      "Audio-feature batches skipped after a failed call",
			},
		),
		genresFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "genre_lookups_failed_total",
				Help:      "Tracks whose genre lookup failed, including backfill retries",
			},
		),
		lastCheckpoint: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_checkpoint_timestamp_seconds",
				Help:      "Latest played-at instant covered by a checkpoint",
			},
		),
	}
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(s *sync.RunSummary) {
	r.runs.WithLabelValues(string(s.Status), string(s.Mode)).Inc()
	r.runDuration.Observe(s.Elapsed().Seconds())
	r.playsIngested.Add(float64(s.NewPlays))
	r.malformed.Add(float64(s.Malformed))
	r.batchesFailed.Add(float64(s.BatchesFailed))
	r.genresFailed.Add(float64(s.GenresFailed + s.BackfillFailed))
	if s.Checkpoint != nil {
		r.lastCheckpoint.Set(float64(s.Checkpoint.LastPlayedAt.Unix()))
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
