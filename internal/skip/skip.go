// Package skip classifies persisted plays as skipped or completed from the
// time until the next play.
//
// The heuristic is deliberately conservative: a play counts as skipped only
// when the next play started before half of the track's duration had
// elapsed. Natural pauses, transition buffering and stops near the end of a
// track all read as completed. Treat the verdict as a signal, not ground
// truth.
package skip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// Threshold is the fraction of the track duration below which the gap to
// the next play counts as a skip.
const Threshold = 0.5

// Verdict is the outcome of a skip check.
type Verdict string

const (
	Skipped   Verdict = "skipped"
	Completed Verdict = "completed"
	// Unknown means there is no later play, or the duration is unusable.
	Unknown Verdict = "unknown"
)

// Bool maps the verdict to the nullable is_skipped column.
func (v Verdict) Bool() *bool {
	switch v {
	case Skipped:
		b := true
		return &b
	case Completed:
		b := false
		return &b
	default:
		return nil
	}
}

// Result is a verdict with a human readable reason.
type Result struct {
	Verdict Verdict       `json:"verdict"`
	Reason  string        `json:"reason"`
	Gap     time.Duration `json:"-"`
}

// NextPlayFinder returns the earliest play strictly after an instant,
// or db.ErrNotFound.
type NextPlayFinder interface {
	Next(ctx context.Context, after time.Time) (*db.Play, error)
}

// Detector evaluates plays lazily against the stored history.
type Detector struct {
	plays NextPlayFinder
}

// NewDetector creates a Detector.
func NewDetector(plays NextPlayFinder) *Detector {
	return &Detector{plays: plays}
}

// WasSkipped classifies play, whose track lasts durationMs.
func (d *Detector) WasSkipped(ctx context.Context, play *db.Play, durationMs int) (Result, error) {
	if durationMs <= 0 {
		return Result{Verdict: Unknown, Reason: "track duration unknown"}, nil
	}

	next, err := d.plays.Next(ctx, play.PlayedAt)
	if errors.Is(err, db.ErrNotFound) {
		return Result{Verdict: Unknown, Reason: "no later play recorded"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("finding next play: %w", err)
	}

	return Classify(next.PlayedAt.Sub(play.PlayedAt), durationMs), nil
}

// Classify applies the threshold to the gap between a play and the next one.
func Classify(gap time.Duration, durationMs int) Result {
	if durationMs <= 0 {
		return Result{Verdict: Unknown, Reason: "track duration unknown", Gap: gap}
	}

	duration := time.Duration(durationMs) * time.Millisecond
	limit := time.Duration(float64(duration) * Threshold)
	if gap < limit {
		return Result{
			Verdict: Skipped,
			Reason:  fmt.Sprintf("next play after %s, under half of %s", gap.Round(time.Second), duration.Round(time.Second)),
			Gap:     gap,
		}
	}
	return Result{
		Verdict: Completed,
		Reason:  fmt.Sprintf("next play after %s, at least half of %s", gap.Round(time.Second), duration.Round(time.Second)),
		Gap:     gap,
	}
}
