package moods

import (
	"fmt"
	"testing"
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

func f32(v float32) *float32 { return &v }

func makeDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func track(id string, energy, valence, dance float32, stored time.Time) db.Track {
	return db.Track{
		ID:           id,
		Name:         "Song " + id,
		Energy:       f32(energy),
		Valence:      f32(valence),
		Danceability: f32(dance),
		Timestamp:    stored,
	}
}

func TestMoodName(t *testing.T) {
	tests := []struct {
		name     string
		centroid Centroid
		want     string
	}{
		{"high energy high valence", Centroid{Energy: 0.8, Valence: 0.7, Danceability: 0.6}, "Upbeat"},
		{"high energy low valence", Centroid{Energy: 0.8, Valence: 0.3, Danceability: 0.6}, "Intense"},
		{"low energy high valence", Centroid{Energy: 0.4, Valence: 0.7, Danceability: 0.5}, "Chill"},
		{"low energy low valence", Centroid{Energy: 0.3, Valence: 0.3, Danceability: 0.4}, "Melancholy"},
		{"high danceability adds modifier", Centroid{Energy: 0.8, Valence: 0.7, Danceability: 0.9}, "Upbeat (Danceable)"},
		{"boundary energy exactly 0.6 is low", Centroid{Energy: 0.6, Valence: 0.7, Danceability: 0.5}, "Chill"},
		{"boundary valence exactly 0.5 is low", Centroid{Energy: 0.8, Valence: 0.5, Danceability: 0.6}, "Intense"},
		{"boundary danceability exactly 0.7 no modifier", Centroid{Energy: 0.3, Valence: 0.3, Danceability: 0.7}, "Melancholy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := moodName(tt.centroid); got != tt.want {
				t.Errorf("moodName() = %q, want %q", got, tt.want)
			}
			if describe(tt.centroid) == "" {
				t.Error("describe() is empty")
			}
		})
	}
}

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		name  string
		since time.Time
		until time.Time
		want  string
	}{
		{"different dates", makeDate(2024, 1, 15), makeDate(2024, 2, 3), "Upbeat: Jan 15, 2024 - Feb 3, 2024"},
		{"same date", makeDate(2024, 3, 10), makeDate(2024, 3, 10).Add(time.Hour), "Upbeat: Mar 10, 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatLabel("Upbeat", tt.since, tt.until); got != tt.want {
				t.Errorf("formatLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractFeatures(t *testing.T) {
	tr := track("t", 0.8, 0.7, 0.6, time.Time{})
	coords := extractFeatures(&tr)

	if len(coords) != 3 {
		t.Fatalf("expected 3 coordinates, got %d", len(coords))
	}
	// Order: energy, valence, danceability
	for i, want := range []float32{0.8, 0.7, 0.6} {
		if got := float32(coords[i]); got != want {
			t.Errorf("coords[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestGroup_Empty(t *testing.T) {
	groups, ungrouped, err := Group(nil, DefaultConfig())
	if err != nil || groups != nil || ungrouped != nil {
		t.Errorf("Group(nil) = %v, %v, %v", groups, ungrouped, err)
	}
}

func TestGroup_MissingFeaturesUngrouped(t *testing.T) {
	tracks := []db.Track{
		track("a", 0.9, 0.9, 0.5, makeDate(2024, 1, 1)),
		track("b", 0.88, 0.91, 0.5, makeDate(2024, 1, 2)),
		{ID: "bare", Name: "No features"},
		{ID: "partial", Energy: f32(0.5)},
	}

	groups, ungrouped, err := Group(tracks, Config{K: 1})
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}

	g := groups[0]
	if g.Name != "Upbeat" {
		t.Errorf("Name = %q, want Upbeat", g.Name)
	}
	if len(g.Tracks) != 2 || g.Tracks[0].ID != "a" {
		t.Errorf("group tracks = %v, want [a b] ordered by storage time", g.Tracks)
	}
	if !g.Since.Equal(makeDate(2024, 1, 1)) || !g.Until.Equal(makeDate(2024, 1, 2)) {
		t.Errorf("range = %v..%v", g.Since, g.Until)
	}
	if len(ungrouped) != 2 {
		t.Errorf("got %d ungrouped, want 2", len(ungrouped))
	}
}

func TestGroup_TooFewTracks(t *testing.T) {
	tracks := []db.Track{
		track("a", 0.9, 0.9, 0.5, makeDate(2024, 1, 1)),
		track("b", 0.1, 0.1, 0.5, makeDate(2024, 1, 2)),
	}

	groups, ungrouped, err := Group(tracks, Config{K: 3})
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}
	if len(groups) != 0 || len(ungrouped) != 2 {
		t.Errorf("got %d groups, %d ungrouped, want 0, 2", len(groups), len(ungrouped))
	}
}

func TestGroup_EveryTrackAccountedFor(t *testing.T) {
	var tracks []db.Track
	for i := 0; i < 6; i++ {
		day := makeDate(2024, 1, 1+i)
		tracks = append(tracks,
			track(fmt.Sprintf("up%d", i), 0.9, 0.9, 0.5, day),
			track(fmt.Sprintf("low%d", i), 0.1, 0.1, 0.3, day),
		)
	}

	groups, ungrouped, err := Group(tracks, Config{K: 2, MinGroupSize: 2})
	if err != nil {
		t.Fatalf("Group() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, g := range groups {
		if g.Name != "Upbeat" && g.Name != "Melancholy" {
			t.Errorf("unexpected group name %q", g.Name)
		}
		for _, tr := range g.Tracks {
			seen[tr.ID] = true
		}
	}
	for _, tr := range ungrouped {
		seen[tr.ID] = true
	}
	if len(seen) != len(tracks) {
		t.Errorf("%d of %d tracks accounted for", len(seen), len(tracks))
	}
}
