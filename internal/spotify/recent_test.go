package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler, timeout time.Duration) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{APIURL: server.URL + "/v1/", Timeout: timeout})
}

const recentBody = `{
  "items": [
    {
      "track": {
        "id": "track1",
        "name": "First Song",
        "duration_ms": 200000,
        "popularity": 61,
        "artists": [{"id": "artist1", "name": "Artist A"}, {"id": "artist2", "name": "Artist B"}]
      },
      "played_at": "2024-03-01T12:05:00.123Z",
      "context": {"uri": "spotify:playlist:abc", "type": "playlist"}
    },
    {"played_at": "2024-03-01T12:00:00Z"},
    {"track": {"id": "", "name": "No ID"}, "played_at": "2024-03-01T11:55:00Z"},
    {"track": {"id": "track3", "name": "Bad Time"}, "played_at": "yesterday"},
    {
      "track": {"id": "track4", "name": "Solo", "duration_ms": 180000, "artists": [{"id": "artist4", "name": "Solo Artist"}]},
      "played_at": "2024-03-01T11:50:00Z",
      "context": null
    }
  ],
  "next": "https://api.spotify.com/v1/me/player/recently-played?before=1",
  "limit": 50
}`

func TestRecentPlays(t *testing.T) {
	var gotLimit, gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me/player/recently-played" {
			http.NotFound(w, r)
			return
		}
		gotLimit = r.URL.Query().Get("limit")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(recentBody))
	}), time.Second)

	window, err := client.RecentPlays(context.Background(), "access-1", 500)
	if err != nil {
		t.Fatalf("RecentPlays() error = %v", err)
	}

	if gotLimit != "50" {
		t.Errorf("limit query = %q, want ceiling 50", gotLimit)
	}
	if gotAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	if len(window.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(window.Events))
	}
	if len(window.Malformed) != 3 {
		t.Errorf("got %d malformed items, want 3", len(window.Malformed))
	}
	for _, err := range window.Malformed {
		if !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("malformed error %v does not match ErrMalformedEvent", err)
		}
	}

	first := window.Events[0]
	if first.Track.ID != "track1" || first.Track.DurationMs != 200000 || first.Track.Popularity != 61 {
		t.Errorf("first event track = %+v", first.Track)
	}
	if got := first.Track.ArtistNames(); got != "Artist A, Artist B" {
		t.Errorf("ArtistNames() = %q", got)
	}
	if got := first.Track.PrimaryArtistID(); got != "artist1" {
		t.Errorf("PrimaryArtistID() = %q", got)
	}
	if first.Context != "spotify:playlist:abc" {
		t.Errorf("Context = %q", first.Context)
	}
	wantTime := time.Date(2024, 3, 1, 12, 5, 0, 123000000, time.UTC)
	if !first.PlayedAt.Equal(wantTime) {
		t.Errorf("PlayedAt = %v, want %v", first.PlayedAt, wantTime)
	}

	if window.Events[1].Context != "" {
		t.Errorf("null context should be empty, got %q", window.Events[1].Context)
	}

	latest, ok := window.Latest()
	if !ok || !latest.Equal(wantTime) {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}
}

func TestRecentPlays_LimitClamp(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"zero means ceiling", 0, "50"},
		{"negative means ceiling", -3, "50"},
		{"within ceiling", 20, "20"},
		{"at ceiling", 50, "50"},
		{"above ceiling", 51, "50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.URL.Query().Get("limit")
				w.Write([]byte(`{"items": []}`))
			}), time.Second)

			window, err := client.RecentPlays(context.Background(), "tok", tt.limit)
			if err != nil {
				t.Fatalf("RecentPlays() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("limit = %q, want %q", got, tt.want)
			}
			if _, ok := window.Latest(); ok {
				t.Error("Latest() on empty window should report false")
			}
		})
	}
}

func TestRecentPlays_StatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"status": 503, "message": "unavailable"}}`))
	}), time.Second)

	_, err := client.RecentPlays(context.Background(), "tok", 50)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if IsTimeout(err) {
		t.Error("status error reported as timeout")
	}
	if got := StatusCode(err); got != http.StatusServiceUnavailable {
		t.Errorf("StatusCode() = %d, want 503", got)
	}
}

func TestRecentPlays_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}), 50*time.Millisecond)
	defer close(release)

	_, err := client.RecentPlays(context.Background(), "tok", 50)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if !IsTimeout(err) {
		t.Errorf("error = %v, want timeout kind", err)
	}
	if StatusCode(err) != 0 {
		t.Errorf("timeout should carry no status, got %d", StatusCode(err))
	}
}

func TestRecentPlays_InvalidBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}), time.Second)

	_, err := client.RecentPlays(context.Background(), "tok", 50)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTransport {
		t.Errorf("error = %v, want transport FetchError", err)
	}
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		wantID  string
	}{
		{
			name:   "valid item",
			raw:    `{"track": {"id": "t", "name": "n", "artists": []}, "played_at": "2024-01-15T10:30:00Z"}`,
			wantID: "t",
		},
		{
			name:    "missing played_at",
			raw:     `{"track": {"id": "t", "name": "n"}}`,
			wantErr: true,
		},
		{
			name:    "missing name",
			raw:     `{"track": {"id": "t"}, "played_at": "2024-01-15T10:30:00Z"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			raw:     `"string item"`,
			wantErr: true,
		},
		{
			name:   "no artists",
			raw:    `{"track": {"id": "t2", "name": "n"}, "played_at": "2024-01-15T10:30:00+02:00"}`,
			wantID: "t2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := parseItem([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Errorf("parseItem() error = %v, want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseItem() error = %v", err)
			}
			if event.Track.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", event.Track.ID, tt.wantID)
			}
			if event.PlayedAt.Location() != time.UTC {
				t.Errorf("PlayedAt should be normalised to UTC, got %v", event.PlayedAt.Location())
			}
		})
	}
}
