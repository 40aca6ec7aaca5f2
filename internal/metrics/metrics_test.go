package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/sync"
)

func TestObserveRun(t *testing.T) {
	r := New(prometheus.NewRegistry())
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	r.ObserveRun(&sync.RunSummary{
		Mode:           sync.ModeInitial,
		Status:         sync.StatusSucceeded,
		StartedAt:      start,
		FinishedAt:     start.Add(3 * time.Second),
		NewPlays:       7,
		Malformed:      2,
		BatchesFailed:  1,
		GenresFailed:   1,
		BackfillFailed: 2,
		Checkpoint:     &db.Checkpoint{LastPlayedAt: start},
	})
	r.ObserveRun(&sync.RunSummary{
		Mode:   sync.ModeIncremental,
		Status: sync.StatusFailed,
	})

	if got := testutil.ToFloat64(r.runs.WithLabelValues("succeeded", "initial")); got != 1 {
		t.Errorf("succeeded runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.runs.WithLabelValues("failed", "incremental")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.playsIngested); got != 7 {
		t.Errorf("plays ingested = %v, want 7", got)
	}
	if got := testutil.ToFloat64(r.malformed); got != 2 {
		t.Errorf("malformed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.batchesFailed); got != 1 {
		t.Errorf("batches failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.genresFailed); got != 3 {
		t.Errorf("genres failed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.lastCheckpoint); got != float64(start.Unix()) {
		t.Errorf("last checkpoint = %v, want %d", got, start.Unix())
	}
}

func TestHandler(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.ObserveRun(&sync.RunSummary{Mode: sync.ModeInitial, Status: sync.StatusSucceeded, NewPlays: 1})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "listen_sync_plays_ingested_total 1") {
		t.Errorf("metrics output missing plays counter:\n%s", body)
	}
}
