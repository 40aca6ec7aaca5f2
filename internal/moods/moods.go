// Package moods groups enriched tracks by audio-feature similarity so the
// tagging collaborator can label a whole group at once.
package moods

import (
	"fmt"
	"slices"
	"time"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// Config holds grouping parameters.
type Config struct {
	K            int // Number of groups to create (default: 3)
	MinGroupSize int // Smaller groups are returned as ungrouped
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		K:            3,
		MinGroupSize: 2,
	}
}

// Centroid is the mean feature vector of a group.
type Centroid struct {
	Energy       float32 `json:"energy"`
	Valence      float32 `json:"valence"`
	Danceability float32 `json:"danceability"`
}

// MoodGroup is a set of tracks with similar audio features.
type MoodGroup struct {
	Name        string     `json:"name"`  // e.g. "Chill (Danceable)"
	Label       string     `json:"label"` // Name with the date range tracks were first stored in
	Description string     `json:"description"`
	Centroid    Centroid   `json:"centroid"`
	Tracks      []db.Track `json:"-"`
	Since       time.Time  `json:"since"`
	Until       time.Time  `json:"until"`
}

// trackObservation wraps a Track to implement clusters.Observation.
type trackObservation struct {
	track  *db.Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Group clusters tracks with k-means over energy, valence and danceability.
// Tracks missing any of them, and members of undersized groups, are
// returned as ungrouped. Groups are ordered most recent first.
func Group(tracks []db.Track, cfg Config) ([]MoodGroup, []db.Track, error) {
	if len(tracks) == 0 {
		return nil, nil, nil
	}

	def := DefaultConfig()
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = def.MinGroupSize
	}

	var obs clusters.Observations
	var ungrouped []db.Track
	for i := range tracks {
		t := &tracks[i]
		if !t.HasAudioFeatures() {
			ungrouped = append(ungrouped, *t)
			continue
		}
		obs = append(obs, trackObservation{track: t, coords: extractFeatures(t)})
	}

	// Fewer tracks than groups: nothing to cluster
	if len(obs) < cfg.K {
		for _, o := range obs {
			ungrouped = append(ungrouped, *o.(trackObservation).track)
		}
		return nil, ungrouped, nil
	}

	result, err := kmeans.New().Partition(obs, cfg.K)
	if err != nil {
		return nil, tracks, fmt.Errorf("partitioning tracks: %w", err)
	}

	var groups []MoodGroup
	for _, cluster := range result {
		var members []db.Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				members = append(members, *to.track)
			}
		}

		if len(members) < cfg.MinGroupSize {
			ungrouped = append(ungrouped, members...)
			continue
		}

		slices.SortFunc(members, func(a, b db.Track) int {
			return a.Timestamp.Compare(b.Timestamp)
		})

		centroid := Centroid{
			Energy:       float32(cluster.Center[0]),
			Valence:      float32(cluster.Center[1]),
			Danceability: float32(cluster.Center[2]),
		}
		name := moodName(centroid)
		since := members[0].Timestamp
		until := members[len(members)-1].Timestamp

		groups = append(groups, MoodGroup{
			Name:        name,
			Label:       formatLabel(name, since, until),
			Description: describe(centroid),
			Centroid:    centroid,
			Tracks:      members,
			Since:       since,
			Until:       until,
		})
	}

	slices.SortFunc(groups, func(a, b MoodGroup) int {
		return b.Since.Compare(a.Since)
	})

	return groups, ungrouped, nil
}

// extractFeatures returns the clustering coordinates of a track.
func extractFeatures(t *db.Track) clusters.Coordinates {
	return clusters.Coordinates{
		float64(*t.Energy),
		float64(*t.Valence),
		float64(*t.Danceability),
	}
}

// formatLabel combines a mood name with a date range.
func formatLabel(name string, since, until time.Time) string {
	const dateFormat = "Jan 2, 2006"
	start := since.Format(dateFormat)
	end := until.Format(dateFormat)

	if start == end {
		return fmt.Sprintf("%s: %s", name, start)
	}
	return fmt.Sprintf("%s: %s - %s", name, start, end)
}
