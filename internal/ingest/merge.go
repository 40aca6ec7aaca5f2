// Package ingest normalises a fetched play window before it is persisted.
package ingest

import (
	"time"

	"github.com/justestif/spotify-listen-sync/internal/spotify"
)

// DefaultMergeWindow is the proximity under which consecutive plays of the
// same track are treated as one pause/resume listen.
const DefaultMergeWindow = 300 * time.Second

type mergeState int

const (
	stateIdle mergeState = iota
	stateInRun
)

// Merger collapses runs of consecutive same-track events.
type Merger struct {
	window time.Duration
}

// NewMerger creates a Merger. A non-positive window means DefaultMergeWindow.
func NewMerger(window time.Duration) *Merger {
	if window <= 0 {
		window = DefaultMergeWindow
	}
	return &Merger{window: window}
}

// Window returns the merge threshold.
func (m *Merger) Window() time.Duration {
	return m.window
}

// Merge scans events once, in the order given, and emits the first event of
// every run. An event joins the current run when it has the same track ID as
// the previous event and lies strictly less than the window away from it.
// Deltas are absolute, so chronological and reverse-chronological input
// behave the same.
func (m *Merger) Merge(events []spotify.PlayEvent) []spotify.PlayEvent {
	merged := make([]spotify.PlayEvent, 0, len(events))

	state := stateIdle
	var last spotify.PlayEvent

	for _, e := range events {
		switch state {
		case stateIdle:
			merged = append(merged, e)
			state = stateInRun
		case stateInRun:
			if !m.continuesRun(last, e) {
				merged = append(merged, e)
			}
		}
		last = e
	}

	return merged
}

func (m *Merger) continuesRun(last, next spotify.PlayEvent) bool {
	if last.Track.ID != next.Track.ID {
		return false
	}
	delta := next.PlayedAt.Sub(last.PlayedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta < m.window
}
