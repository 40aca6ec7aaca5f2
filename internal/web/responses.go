package web

import (
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
	"github.com/justestif/spotify-listen-sync/internal/moods"
	"github.com/justestif/spotify-listen-sync/internal/skip"
)

type errorResponse struct {
	Error string `json:"error"`
}

type trackResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Artist       string    `json:"artist"`
	DurationMs   int       `json:"duration_ms"`
	Popularity   int       `json:"popularity"`
	Genre        *string   `json:"genre"`
	Energy       *float32  `json:"energy"`
	Danceability *float32  `json:"danceability"`
	Valence      *float32  `json:"valence"`
	Tempo        *float32  `json:"tempo"`
	StoredAt     time.Time `json:"stored_at"`
}

func newTrackResponse(t *db.Track) trackResponse {
	return trackResponse{
		ID:           t.ID,
		Name:         t.Name,
		Artist:       t.Artist,
		DurationMs:   t.DurationMs,
		Popularity:   t.Popularity,
		Genre:        t.Genre,
		Energy:       t.Energy,
		Danceability: t.Danceability,
		Valence:      t.Valence,
		Tempo:        t.Tempo,
		StoredAt:     t.Timestamp,
	}
}

type playResponse struct {
	ID                int64      `json:"id"`
	TrackID           string     `json:"track_id"`
	TrackName         string     `json:"track_name"`
	Artist            string     `json:"artist"`
	DurationMs        int        `json:"duration_ms"`
	PlayedAt          time.Time  `json:"played_at"`
	Context           string     `json:"context,omitempty"`
	MoodTag           *string    `json:"mood_tag"`
	MoodWhenListening *string    `json:"mood_when_listening"`
	ThemeTag          *string    `json:"theme_tag"`
	IsSkipped         *bool      `json:"is_skipped"`
	TaggedAt          *time.Time `json:"tagged_at"`
}

func newPlayResponse(p *db.PlayDetail) playResponse {
	return playResponse{
		ID:                p.ID,
		TrackID:           p.TrackID,
		TrackName:         p.TrackName,
		Artist:            p.Artist,
		DurationMs:        p.DurationMs,
		PlayedAt:          p.PlayedAt,
		Context:           p.Context,
		MoodTag:           p.MoodTag,
		MoodWhenListening: p.MoodWhenListening,
		ThemeTag:          p.ThemeTag,
		IsSkipped:         p.IsSkipped,
		TaggedAt:          p.TaggedAt,
	}
}

type untaggedResponse struct {
	Plays  []playResponse `json:"plays"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type skipResponse struct {
	PlayID  int64        `json:"play_id"`
	TrackID string       `json:"track_id"`
	Verdict skip.Verdict `json:"verdict"`
	Reason  string       `json:"reason"`
}

type moodGroupResponse struct {
	moods.MoodGroup
	Tracks []trackResponse `json:"tracks"`
}

type moodsResponse struct {
	Groups    []moodGroupResponse `json:"groups"`
	Ungrouped int                 `json:"ungrouped"`
}
