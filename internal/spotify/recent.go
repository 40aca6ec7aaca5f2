package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// MaxRecentPlays is the hard ceiling of the recently-played feed.
//
// The feed is a single bounded window with no deeper pagination: asking for
// more yields at most this many items, and history older than the window
// cannot be recovered by retrying.
const MaxRecentPlays = 50

type recentlyPlayedPage struct {
	Items []json.RawMessage `json:"items"`
}

type rawItem struct {
	Track    *rawTrack   `json:"track"`
	PlayedAt string      `json:"played_at"`
	Context  *rawContext `json:"context"`
}

type rawTrack struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	DurationMs int         `json:"duration_ms"`
	Popularity int         `json:"popularity"`
	Artists    []rawArtist `json:"artists"`
}

type rawArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawContext struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// RecentPlays fetches the recently-played window.
//
// limit is clamped to MaxRecentPlays; zero or negative means the ceiling.
// Items missing a track, track ID, track name or a parseable played-at are
// skipped and reported in Window.Malformed.
func (c *Client) RecentPlays(ctx context.Context, accessToken string, limit int) (*Window, error) {
	if limit <= 0 || limit > MaxRecentPlays {
		limit = MaxRecentPlays
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("limit", strconv.Itoa(limit)).
		Get("me/player/recently-played")
	if err != nil {
		return nil, fmt.Errorf("fetching recently played: %w", classify(err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fetching recently played: %w", &FetchError{
			Kind:   KindStatus,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("%s", http.StatusText(resp.StatusCode())),
		})
	}

	var page recentlyPlayedPage
	if err := json.Unmarshal(resp.Body(), &page); err != nil {
		return nil, fmt.Errorf("decoding recently played: %w", &FetchError{Kind: KindTransport, Err: err})
	}

	window := &Window{Events: make([]PlayEvent, 0, len(page.Items))}
	for i, raw := range page.Items {
		event, err := parseItem(raw)
		if err != nil {
			window.Malformed = append(window.Malformed, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		window.Events = append(window.Events, event)
	}

	return window, nil
}

// parseItem validates one feed item.
func parseItem(raw json.RawMessage) (PlayEvent, error) {
	var item rawItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return PlayEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case item.Track == nil:
		return PlayEvent{}, fmt.Errorf("%w: missing track", ErrMalformedEvent)
	case item.Track.ID == "":
		return PlayEvent{}, fmt.Errorf("%w: missing track id", ErrMalformedEvent)
	case item.Track.Name == "":
		return PlayEvent{}, fmt.Errorf("%w: missing track name for %s", ErrMalformedEvent, item.Track.ID)
	case item.PlayedAt == "":
		return PlayEvent{}, fmt.Errorf("%w: missing played_at for %s", ErrMalformedEvent, item.Track.ID)
	}

	playedAt, err := time.Parse(time.RFC3339Nano, item.PlayedAt)
	if err != nil {
		return PlayEvent{}, fmt.Errorf("%w: played_at %q: %v", ErrMalformedEvent, item.PlayedAt, err)
	}

	artists := make([]Artist, len(item.Track.Artists))
	for i, a := range item.Track.Artists {
		artists[i] = Artist{ID: a.ID, Name: a.Name}
	}

	var contextURI string
	if item.Context != nil {
		contextURI = item.Context.URI
	}

	return PlayEvent{
		Track: Track{
			ID:         item.Track.ID,
			Name:       item.Track.Name,
			Artists:    artists,
			DurationMs: item.Track.DurationMs,
			Popularity: item.Track.Popularity,
		},
		PlayedAt: playedAt.UTC(),
		Context:  contextURI,
	}, nil
}
