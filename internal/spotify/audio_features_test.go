package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zmb3/spotify/v2"
)

func TestConvertAudioFeatures(t *testing.T) {
	features := &spotify.AudioFeatures{
		ID:           "test123",
		Acousticness: 0.5,
		Danceability: 0.7,
		Energy:       0.8,
		Tempo:        120.0,
		Valence:      0.6,
	}

	got := convertAudioFeatures(features)

	tests := []struct {
		name     string
		got      float32
		expected float32
	}{
		{"Danceability", got.Danceability, 0.7},
		{"Energy", got.Energy, 0.8},
		{"Tempo", got.Tempo, 120.0},
		{"Valence", got.Valence, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if got.TrackID != "test123" {
		t.Errorf("TrackID = %q, want test123", got.TrackID)
	}
}

func TestAudioFeatures_BatchTooLarge(t *testing.T) {
	var requests atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"audio_features": []}`))
	}), time.Second)

	ids := make([]string, MaxAudioFeatureIDs+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}

	_, err := client.AudioFeatures(context.Background(), "tok", ids)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("error = %v, want ErrBatchTooLarge", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("made %d requests, want 0", n)
	}
}

func TestAudioFeatures(t *testing.T) {
	var gotIDs string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio-features" {
			http.NotFound(w, r)
			return
		}
		gotIDs = r.URL.Query().Get("ids")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"audio_features": [
			{"id": "a", "energy": 0.9, "danceability": 0.8, "valence": 0.7, "tempo": 128.0},
			null,
			{"id": "c", "energy": 0.1, "danceability": 0.2, "valence": 0.3, "tempo": 70.5}
		]}`))
	}), time.Second)

	features, err := client.AudioFeatures(context.Background(), "tok", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("AudioFeatures() error = %v", err)
	}
	if gotIDs != "a,b,c" {
		t.Errorf("ids query = %q", gotIDs)
	}
	if len(features) != 2 {
		t.Fatalf("got %d features, want 2 (null entry skipped)", len(features))
	}
	if features[0].TrackID != "a" || features[0].Tempo != 128.0 {
		t.Errorf("features[0] = %+v", features[0])
	}
	if features[1].TrackID != "c" || features[1].Valence != 0.3 {
		t.Errorf("features[1] = %+v", features[1])
	}
}

func TestAudioFeatures_Empty(t *testing.T) {
	var requests atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}), time.Second)

	features, err := client.AudioFeatures(context.Background(), "tok", nil)
	if err != nil || features != nil {
		t.Errorf("AudioFeatures(nil) = %v, %v", features, err)
	}
	if requests.Load() != 0 {
		t.Error("empty batch should not hit the API")
	}
}

func TestAudioFeatures_StatusError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"status": 500, "message": "boom"}}`))
	}), time.Second)

	_, err := client.AudioFeatures(context.Background(), "tok", []string{"a"})
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if got := StatusCode(err); got != http.StatusInternalServerError {
		t.Errorf("StatusCode() = %d, want 500", got)
	}
}

func TestArtist_PrimaryGenre(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"first genre wins", `{"id": "ar1", "name": "X", "genres": ["indie pop", "bedroom pop"]}`, "indie pop"},
		{"no genres", `{"id": "ar1", "name": "X", "genres": []}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/artists/ar1") {
					http.NotFound(w, r)
					return
				}
				w.Write([]byte(tt.body))
			}), time.Second)

			artist, err := client.Artist(context.Background(), "tok", "ar1")
			if err != nil {
				t.Fatalf("Artist() error = %v", err)
			}
			if artist.Name != "X" {
				t.Errorf("Artist().Name = %q, want X", artist.Name)
			}
			if got := artist.PrimaryGenre(); got != tt.want {
				t.Errorf("PrimaryGenre() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurrentUser(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/me" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"status": 401, "message": "no token"}}`))
			return
		}
		w.Write([]byte(`{"id": "user1", "display_name": "Listener", "email": "l@example.com"}`))
	}), time.Second)

	profile, err := client.CurrentUser(context.Background(), "tok")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if *profile != (Profile{ID: "user1", DisplayName: "Listener", Email: "l@example.com"}) {
		t.Errorf("CurrentUser() = %+v", *profile)
	}

	_, err = client.CurrentUser(context.Background(), "wrong")
	if StatusCode(err) != http.StatusUnauthorized {
		t.Errorf("CurrentUser() with bad token error = %v, want 401", err)
	}
}
