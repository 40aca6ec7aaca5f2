package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/spotify-listen-sync/internal/db"
)

const playColumns = `id, track_id, played_at, context, mood_tag, mood_when_listening, theme_tag, is_skipped, tagged_at`

const untaggedFilter = `mood_tag IS NULL OR mood_when_listening IS NULL OR theme_tag IS NULL`

// PlayRepository handles play database operations.
type PlayRepository struct {
	pool *pgxpool.Pool
}

// Insert stores a play unless (track_id, played_at) already exists.
func (r *PlayRepository) Insert(ctx context.Context, play *db.Play) (bool, error) {
	query := `
		INSERT INTO plays (track_id, played_at, context)
		VALUES ($1, $2, $3)
		ON CONFLICT (track_id, played_at) DO NOTHING
		RETURNING id
	`
	err := r.pool.QueryRow(ctx, query, play.TrackID, play.PlayedAt.UTC(), play.Context).Scan(&play.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting play: %w", err)
	}
	return true, nil
}

// Get retrieves a play by ID.
func (r *PlayRepository) Get(ctx context.Context, id int64) (*db.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE id = $1`
	play, err := scanPlay(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying play: %w", err)
	}
	return play, nil
}

// Next returns the earliest play strictly after the given instant.
func (r *PlayRepository) Next(ctx context.Context, after time.Time) (*db.Play, error) {
	query := `SELECT ` + playColumns + ` FROM plays WHERE played_at > $1 ORDER BY played_at, id LIMIT 1`
	play, err := scanPlay(r.pool.QueryRow(ctx, query, after.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM plays WHERE `+untaggedFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting untagged plays: %w", err)
	}

	query := `
		SELECT p.id, p.track_id, p.played_at, p.context, p.mood_tag, p.mood_when_listening,
			p.theme_tag, p.is_skipped, p.tagged_at, t.track_name, t.artist, t.duration_ms
		FROM plays p
		JOIN tracks t ON t.track_id = p.track_id
		WHERE p.mood_tag IS NULL OR p.mood_when_listening IS NULL OR p.theme_tag IS NULL
		ORDER BY p.played_at DESC, p.id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying untagged plays: %w", err)
	}
	defer rows.Close()

	var plays []db.PlayDetail
	for rows.Next() {
		var p db.PlayDetail
		if err := rows.Scan(
			&p.ID,
			&p.TrackID,
			&p.PlayedAt,
			&p.Context,
			&p.MoodTag,
			&p.MoodWhenListening,
			&p.ThemeTag,
			&p.IsSkipped,
			&p.TaggedAt,
			&p.TrackName,
			&p.Artist,
			&p.DurationMs,
		); err != nil {
			return nil, 0, fmt.Errorf("scanning play: %w", err)
		}
		plays = append(plays, p)
	}
	return plays, total, rows.Err()
}

// SaveTags stores the tags and skip verdict of a play.
func (r *PlayRepository) SaveTags(ctx context.Context, id int64, tags db.Tags, skipped *bool, taggedAt time.Time) error {
	query := `
		UPDATE plays
		SET mood_tag = $2, mood_when_listening = $3, theme_tag = $4, is_skipped = $5, tagged_at = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, tags.Mood, tags.ListenerMood, tags.Theme, skipped, taggedAt.UTC())
	if err != nil {
		return fmt.Errorf("saving tags: %w", err)
	}
	if result.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// Stats counts tagged and untagged plays.
func (r *PlayRepository) Stats(ctx context.Context) (*db.TagStats, error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE ` + untaggedFilter + `) FROM plays`
	var stats db.TagStats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Untagged); err != nil {
		return nil, fmt.Errorf("querying tag stats: %w", err)
	}
	stats.Tagged = stats.Total - stats.Untagged
	return &stats, nil
}

// Count returns the number of stored plays.
func (r *PlayRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM plays`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting plays: %w", err)
	}
	return n, nil
}

func scanPlay(row pgx.Row) (*db.Play, error) {
	var play db.Play
	err := row.Scan(
		&play.ID,
		&play.TrackID,
		&play.PlayedAt,
		&play.Context,
		&play.MoodTag,
		&play.MoodWhenListening,
		&play.ThemeTag,
		&play.IsSkipped,
		&play.TaggedAt,
	)
	if err != nil {
		return nil, err
	}
	return &play, nil
}
