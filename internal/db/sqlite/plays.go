package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

const playColumns = `id, track_id, played_at, context, mood_tag, mood_when_listening, theme_tag, is_skipped, tagged_at`

const untaggedFilter = `mood_tag IS NULL OR mood_when_listening IS NULL OR theme_tag IS NULL`

// PlayRepository handles play database operations.
type PlayRepository struct {
	conn *sql.DB
}

// Insert stores a play unless (track_id, played_at) already exists.
func (r *PlayRepository) Insert(ctx context.Context, play *db.Play) (bool, error) {
	query := `
		INSERT INTO plays (track_id, played_at, context)
		VALUES (?, ?, ?)
		ON CONFLICT (track_id, played_at) DO NOTHING
	`
	result, err := r.conn.ExecContext(ctx, query, play.TrackID, formatTime(play.PlayedAt), play.Context)
	if err != nil {
		return false, fmt.Errorf("inserting play: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting play: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading play id: %w", err)
	}
	play.ID = id
	return true, nil
}

// Get retrieves a play by ID.
func (r *PlayRepository) Get(ctx context.Context, id int64) (*db.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE id = ?`
	play, err := scanPlay(r.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying play: %w", err)
	}
	return play, nil
}

// Next returns the earliest play strictly after the given instant.
func (r *PlayRepository) Next(ctx context.Context, after time.Time) (*db.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE played_at > ? ORDER BY played_at, id LIMIT 1`
	play, err := scanPlay(r.conn.QueryRowContext(ctx, query, formatTime(after)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying next play: %w", err)
	}
	return play, nil
}

// Untagged returns plays missing at least one tag, newest first.
func (r *PlayRepository) Untagged(ctx context.Context, limit, offset int) ([]db.PlayDetail, int, error) {
	var total int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM plays WHERE `+untaggedFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting untagged plays: %w", err)
	}

	query := `
		SELECT p.id, p.track_id, p.played_at, p.context, p.mood_tag, p.mood_when_listening,
			p.theme_tag, p.is_skipped, p.tagged_at, t.track_name, t.artist, t.duration_ms
		FROM plays p
		JOIN tracks t ON t.track_id = p.track_id
		WHERE p.mood_tag IS NULL OR p.mood_when_listening IS NULL OR p.theme_tag IS NULL
		ORDER BY p.played_at DESC, p.id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.conn.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying untagged plays: %w", err)
	}
	defer rows.Close()

	var plays []db.PlayDetail
	for rows.Next() {
		var p db.PlayDetail
		var playedAt string
		var taggedAt sql.NullString
		if err := rows.Scan(
			&p.ID,
			&p.TrackID,
			&playedAt,
			&p.Context,
			&p.MoodTag,
			&p.MoodWhenListening,
			&p.ThemeTag,
			&p.IsSkipped,
			&taggedAt,
			&p.TrackName,
			&p.Artist,
			&p.DurationMs,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning play: %w", err)
		}
		if p.PlayedAt, err = parseTime(playedAt); err != nil {
			return nil, 0, err
		}
		if p.TaggedAt, err = parseNullTime(taggedAt); err != nil {
			return nil, 0, err
		}
		plays = append(plays, p)
	}
	return plays, total, rows.Err()
}

// SaveTags stores the tags and skip verdict of a play.
func (r *PlayRepository) SaveTags(ctx context.Context, id int64, tags db.Tags, skipped *bool, taggedAt time.Time) error {
	query := `
		UPDATE plays
		SET mood_tag = ?, mood_when_listening = ?, theme_tag = ?, is_skipped = ?, tagged_at = ?
		WHERE id = ?
	`
	result, err := r.conn.ExecContext(ctx, query, tags.Mood, tags.ListenerMood, tags.Theme, skipped, formatTime(taggedAt), id)
	if err != nil {
		return fmt.Errorf("saving tags: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("saving tags: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// Stats counts tagged and untagged plays.
func (r *PlayRepository) Stats(ctx context.Context) (*db.TagStats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN ` + untaggedFilter + ` THEN 1 ELSE 0 END), 0) FROM plays`
	var stats db.TagStats
	if err := r.conn.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Untagged); err != nil {
		return nil, fmt.Errorf("querying tag stats: %w", err)
	}
	stats.Tagged = stats.Total - stats.Untagged
	return &stats, nil
}

// Count returns the number of stored plays.
func (r *PlayRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting plays: %w", err)
	}
	return n, nil
}

func scanPlay(row scanner) (*db.Play, error) {
	var play db.Play
	var playedAt string
	var taggedAt sql.NullString
	err := row.Scan(
		&play.ID,
		&play.TrackID,
		&playedAt,
		&play.Context,
		&play.MoodTag,
		&play.MoodWhenListening,
		&play.ThemeTag,
		&play.IsSkipped,
		&taggedAt,
	)
	if err != nil {
		return nil, err
	}
	if play.PlayedAt, err = parseTime(playedAt); err != nil {
		return nil, err
	}
	if play.TaggedAt, err = parseNullTime(taggedAt); err != nil {
		return nil, err
	}
	return &play, nil
}
