package spotify

import (
	"strings"
	"time"
)

// Artist is a credited artist of a track. Genres is only filled by
// Client.Artist; feed items do not carry it.
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// PrimaryGenre returns the first listed genre, or "".
func (a Artist) PrimaryGenre() string {
	if len(a.Genres) == 0 {
		return ""
	}
	return a.Genres[0]
}

// Track is the track description embedded in a feed item.
type Track struct {
	ID         string
	Name       string
	Artists    []Artist
	DurationMs int
	Popularity int
}

// ArtistNames returns the artist names joined by ", ".
func (t Track) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// PrimaryArtistID returns the ID of the first listed artist, or "".
func (t Track) PrimaryArtistID() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].ID
}

// PlayEvent is one validated item of the recently-played feed.
type PlayEvent struct {
	Track    Track
	PlayedAt time.Time
	Context  string // Context URI (playlist, album, ...), empty when absent
}

// Window is the result of one recently-played fetch.
type Window struct {
	Events []PlayEvent

	// Malformed holds one ErrMalformedEvent per skipped feed item.
	Malformed []error
}

// Latest returns the latest played-at instant in the window.
func (w *Window) Latest() (time.Time, bool) {
	var latest time.Time
	for _, e := range w.Events {
		if e.PlayedAt.After(latest) {
			latest = e.PlayedAt
		}
	}
	return latest, !latest.IsZero()
}

// Profile is the current user's public profile.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
}
