package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

const trackColumns = `track_id, track_name, artist, primary_artist_id, duration_ms, popularity,
	genre, energy, danceability, valence, tempo, timestamp, user_id`

// TrackRepository handles track database operations.
type TrackRepository struct {
	conn *sql.DB
}

// Insert stores a track unless its ID already exists.
func (r *TrackRepository) Insert(ctx context.Context, track *db.Track) (bool, error) {
	query := `
		INSERT INTO tracks (track_id, track_name, artist, primary_artist_id, duration_ms, popularity, genre, timestamp, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (track_id) DO NOTHING
	`
	now := time.Now().UTC().Truncate(time.Microsecond)
	result, err := r.conn.ExecContext(ctx, query,
		track.ID,
		track.Name,
		track.Artist,
		track.PrimaryArtistID,
		track.DurationMs,
		track.Popularity,
		track.Genre,
		formatTime(now),
		track.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("inserting track: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting track: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	track.Timestamp = now
	return true, nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id string) (*db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE track_id = ?`
	track, err := scanTrack(r.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
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

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE tracks SET
			energy = COALESCE(energy, ?),
			danceability = COALESCE(danceability, ?),
			valence = COALESCE(valence, ?),
			tempo = COALESCE(tempo, ?)
		WHERE track_id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing audio features update: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		if _, err := stmt.ExecContext(ctx, f.Energy, f.Danceability, f.Valence, f.Tempo, f.TrackID); err != nil {
			return fmt.Errorf("applying audio features for %s: %w", f.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing audio features: %w", err)
	}
	return nil
}

// SetGenre sets the genre of a track that has none yet.
func (r *TrackRepository) SetGenre(ctx context.Context, id, genre string) error {
	query := `UPDATE tracks SET genre = ? WHERE track_id = ? AND genre IS NULL`
	if _, err := r.conn.ExecContext(ctx, query, genre, id); err != nil {
		return fmt.Errorf("setting genre: %w", err)
	}
	return nil
}

// MissingGenre returns tracks whose genre is still null.
func (r *TrackRepository) MissingGenre(ctx context.Context, limit int) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE genre IS NULL ORDER BY timestamp, rowid LIMIT ?`
	return r.query(ctx, query, limit)
}

// Recent returns the most recently stored tracks.
func (r *TrackRepository) Recent(ctx context.Context, limit int) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	return r.query(ctx, query, limit)
}

// WithAudioFeatures returns tracks ready for mood grouping.
func (r *TrackRepository) WithAudioFeatures(ctx context.Context) ([]db.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE energy IS NOT NULL AND valence IS NOT NULL AND danceability IS NOT NULL
		ORDER BY timestamp, rowid`
	return r.query(ctx, query)
}

func (r *TrackRepository) query(ctx context.Context, query string, args ...any) ([]db.Track, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(row scanner) (*db.Track, error) {
	var track db.Track
	var timestamp string
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
		&timestamp,
		&track.UserID,
	)
	if err != nil {
		return nil, err
	}
	if track.Timestamp, err = parseTime(timestamp); err != nil {
		return nil, err
	}
	return &track, nil
}
