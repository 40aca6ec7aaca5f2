package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

// MaxAudioFeatureIDs is the per-request ceiling of the audio-features endpoint.
const MaxAudioFeatureIDs = 100

// AudioFeatures retrieves numeric attributes for up to MaxAudioFeatureIDs tracks.
// Returns ErrBatchTooLarge, before any request, for larger batches.
// Tracks the API has no data for are omitted from the result.
func (c *Client) AudioFeatures(ctx context.Context, accessToken string, trackIDs []string) ([]db.AudioFeatures, error) {
	if len(trackIDs) > MaxAudioFeatureIDs {
		return nil, fmt.Errorf("%w: %d ids, max %d", ErrBatchTooLarge, len(trackIDs), MaxAudioFeatureIDs)
	}
	if len(trackIDs) == 0 {
		return nil, nil
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	features, err := c.api(accessToken).GetAudioFeatures(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("fetching audio features: %w", classify(err))
	}

	result := make([]db.AudioFeatures, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue // Track has no audio features
		}
		result = append(result, convertAudioFeatures(f))
	}
	return result, nil
}

// convertAudioFeatures keeps the attributes stored on a track.
func convertAudioFeatures(f *spotify.AudioFeatures) db.AudioFeatures {
	return db.AudioFeatures{
		TrackID:      f.ID.String(),
		Energy:       f.Energy,
		Danceability: f.Danceability,
		Valence:      f.Valence,
		Tempo:        f.Tempo,
	}
}

// Artist looks up one artist by ID.
func (c *Client) Artist(ctx context.Context, accessToken, artistID string) (*Artist, error) {
	artist, err := c.api(accessToken).GetArtist(ctx, spotify.ID(artistID))
	if err != nil {
		return nil, fmt.Errorf("fetching artist %s: %w", artistID, classify(err))
	}
	return &Artist{
		ID:     artist.ID.String(),
		Name:   artist.Name,
		Genres: artist.Genres,
	}, nil
}
