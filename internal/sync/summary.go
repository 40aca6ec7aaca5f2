package sync

import (
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/enrich"
)

// Status is the outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RunSummary reports what one run did.
type RunSummary struct {
	RunID  string `json:"run_id"`
	Mode   Mode   `json:"mode"` // Effective mode
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	// Joined is set on the copy returned to a caller that joined a run
	// started by someone else.
	Joined bool `json:"joined,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	UserID        string `json:"user_id,omitempty"`
	ProfileFailed bool   `json:"profile_failed,omitempty"`

	Fetched       int `json:"fetched"`
	Malformed     int `json:"malformed"`
	Merged        int `json:"merged"` // Events folded into an earlier play of the same run
	NewPlays      int `json:"new_plays"`
	ExistingPlays int `json:"existing_plays"`
	NewTracks     int `json:"new_tracks"`

	FeaturesApplied int `json:"features_applied"`
	BatchesFailed   int `json:"batches_failed"`
	GenresSet       int `json:"genres_set"`
	GenresFailed    int `json:"genres_failed"`
	BackfillSet     int `json:"backfill_set"`
	BackfillFailed  int `json:"backfill_failed"`

	Checkpoint *db.Checkpoint `json:"checkpoint,omitempty"`
}

// Elapsed returns the run duration.
func (s *RunSummary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *RunSummary) applyEnrichment(res *enrich.Result) {
	if res == nil {
		return
	}
	s.FeaturesApplied = res.FeaturesApplied
	s.BatchesFailed = res.BatchesFailed
	s.GenresSet = res.GenresSet
	s.GenresFailed = res.GenresFailed
	s.BackfillSet = res.BackfillSet
	s.BackfillFailed = res.BackfillFailed
}
