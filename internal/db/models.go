package db

import "time"

// User represents a Spotify user profile.
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

// Track represents a Spotify track and its enrichment state.
type Track struct {
	ID              string
	Name            string
	Artist          string  // Comma-separated artist names
	PrimaryArtistID *string // nullable - first listed artist, used for genre lookups
	DurationMs      int
	Popularity      int
	Genre           *string // nullable until enriched

	// Numeric audio attributes, nullable until enriched.
	Energy       *float32
	Danceability *float32
	Valence      *float32
	Tempo        *float32

	Timestamp time.Time // When the track was first stored
	UserID    *string   // nullable - owner profile, if it could be resolved
}

// HasAudioFeatures reports whether the attributes used for mood grouping are set.
func (t *Track) HasAudioFeatures() bool {
	return t.Energy != nil && t.Valence != nil && t.Danceability != nil
}

// AudioFeatures is one track's numeric attributes as returned by the API.
type AudioFeatures struct {
	TrackID      string
	Energy       float32
	Danceability float32
	Valence      float32
	Tempo        float32
}

// Play is one listening event.
type Play struct {
	ID       int64
	TrackID  string
	PlayedAt time.Time
	Context  string

	MoodTag           *string
	MoodWhenListening *string
	ThemeTag          *string
	IsSkipped         *bool
	TaggedAt          *time.Time
}

// PlayDetail is a play joined with its track's descriptive fields.
type PlayDetail struct {
	Play
	TrackName  string
	Artist     string
	DurationMs int
}

// Tags are the user-supplied labels of a play.
type Tags struct {
	Mood         string `json:"mood_tag" validate:"required,max=64"`
	ListenerMood string `json:"mood_when_listening" validate:"required,max=64"`
	Theme        string `json:"theme_tag" validate:"required,max=64"`
}

// TagStats summarises tagging progress. A play counts as tagged when all
// three tags are present.
type TagStats struct {
	Total    int `json:"total"`
	Tagged   int `json:"tagged"`
	Untagged int `json:"untagged"`
}

// Checkpoint is one row of the download history.
type Checkpoint struct {
	ID            int64     `json:"id"`
	LastPlayedAt  time.Time `json:"last_played_at"` // Latest played-at instant covered by the run
	PlaysIngested int       `json:"plays_ingested"` // New plays inserted by the run
	CompletedAt   time.Time `json:"completed_at"`
}
