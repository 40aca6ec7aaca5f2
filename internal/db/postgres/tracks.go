package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

const trackColumns = `track_id, track_name, artist, primary_artist_id, duration_ms, popularity,
	genre, energy, danceability, valence, tempo, timestamp, user_id`

// TrackRepository handles track database operations.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a track unless its ID already exists.
func (r *TrackRepository) Insert(ctx context.Context, track *db.Track) (bool, error) {
	query := `
		INSERT INTO tracks (track_id, track_name, artist, primary_artist_id, duration_ms, popularity, genre, timestamp, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		ON CONFLICT (track_id) DO NOTHING
		RETURNING timestamp
	`
	err := r.pool.QueryRow(ctx, query,
		track.ID,
		track.Name,
		track.Artist,
		track.PrimaryArtistID,
		track.DurationMs,
		track.Popularity,
		track.Genre,
		track.UserID,
	).Scan(&track.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting track: %w", err)
	}
	return true, nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE track_id = $1`
	track, err := scanTrack(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return track, nil
}

// ApplyAudioFeatures fills null numeric attributes for a batch of tracks.
func (r *TrackRepository) ApplyAudioFeatures(ctx context.Context, features []db.AudioFeatures) error {
	if len(features) == 0 {
		return nil
	}

	query := `
		UPDATE tracks t SET
			energy = COALESCE(t.energy, f.energy),
			danceability = COALESCE(t.danceability, f.danceability),
			valence = COALESCE(t.valence, f.valence),
			tempo = COALESCE(t.tempo, f.tempo)
		FROM unnest($1::text[], $2::real[], $3::real[], $4::real[], $5::real[])
			AS f(track_id, energy, danceability, valence, tempo)
		WHERE t.track_id = f.track_id
	`

	ids := make([]string, len(features))
	energy := make([]float32, len(features))
	danceability := make([]float32, len(features))
	valence := make([]float32, len(features))
	tempo := make([]float32, len(features))

	for i, f := range features {
		ids[i] = f.TrackID
		energy[i] = f.Energy
		danceability[i] = f.Danceability
		valence[i] = f.Valence
		tempo[i] = f.Tempo
	}

	_, err := r.pool.Exec(ctx, query, ids, energy, danceability, valence, tempo)
	if err != nil {
		return fmt.Errorf("applying audio features: %w", err)
	}
	return nil
}

// SetGenre sets the genre of a track that has none yet.
func (r *TrackRepository) SetGenre(ctx context.Context, id, genre string) error {
	query := `UPDATE tracks SET genre = $2 WHERE track_id = $1 AND genre IS NULL`
	if _, err := r.pool.Exec(ctx, query, id, genre); err != nil {
		return fmt.Errorf("setting genre: %w", err)
	}
	return nil
}

// MissingGenre returns tracks whose genre is still null.
func (r *TrackRepository) MissingGenre(ctx context.Context, limit int) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE genre IS NULL ORDER BY timestamp, track_id LIMIT $1`
	return r.query(ctx, query, limit)
}

// Recent returns the most recently stored tracks.
func (r *TrackRepository) Recent(ctx context.Context, limit int) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY timestamp DESC, track_id LIMIT $1`
	return r.query(ctx, query, limit)
}

// WithAudioFeatures returns tracks ready for mood grouping.
func (r *TrackRepository) WithAudioFeatures(ctx context.Context) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE energy IS NOT NULL AND valence IS NOT NULL AND danceability IS NOT NULL
		ORDER BY timestamp, track_id`
	return r.query(ctx, query)
}

func (r *TrackRepository) query(ctx context.Context, query string, args ...any) ([]db.Track, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	var tracks []db.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, *track)
	}
	return tracks, rows.Err()
}

func scanTrack(row pgx.Row) (*db.Track, error) {
	var track db.Track
	err := row.Scan(
		&track.ID,
		&track.Name,
		&track.Artist,
		&track.PrimaryArtistID,
		&track.DurationMs,
		&track.Popularity,
		&track.Genre,
		&track.Energy,
		&track.Danceability,
		&track.Valence,
		&track.Tempo,
		&track.Timestamp,
		&track.UserID,
	)
	if err != nil {
		return nil, err
	}
	return &track, nil
}
