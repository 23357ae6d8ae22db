package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateEpisode inserts an episode discovered from a feed. The call is
// idempotent on the episode ID: re-ingesting a feed entry that already exists
// returns the stored row untouched.
func (s *Store) CreateEpisode(ctx context.Context, episode *Episode) (*Episode, error) {
	if episode == nil {
		return nil, errors.New("episode is nil")
	}
	if episode.ID == "" {
		return nil, errors.New("episode id is empty")
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	status := episode.Status
	if status == "" {
		status = StatusPending
	}
	language := episode.Language
	if language == "" {
		language = "ga"
	}

	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO episodes (
            episode_id, source, show, title, feed_url, enclosure_url,
            published_at, status, language, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(episode_id) DO NOTHING`,
		episode.ID,
		episode.Source,
		episode.Show,
		episode.Title,
		nullableString(episode.FeedURL),
		nullableString(episode.EnclosureURL),
		nullableTime(&episode.PublishedAt),
		status,
		language,
		timestamp,
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert episode: %w", err)
	}

	return s.GetByID(ctx, episode.ID)
}

// GetByID fetches an episode by identifier. Missing episodes return (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE episode_id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// List returns episodes filtered by the given statuses, oldest publication
// first. With no statuses it returns everything.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY published_at, episode_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// ListShow returns episodes for one show, newest publication first.
func (s *Store) ListShow(ctx context.Context, source, show string) ([]*Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE source = ? AND show = ? ORDER BY published_at DESC, episode_id DESC`,
		source,
		show,
	)
	if err != nil {
		return nil, fmt.Errorf("list show episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// Update persists changes to an existing episode.
func (s *Store) Update(ctx context.Context, episode *Episode) error {
	if episode == nil {
		return errors.New("episode is nil")
	}
	episode.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE episodes
         SET source = ?, show = ?, title = ?, feed_url = ?, enclosure_url = ?,
             published_at = ?, status = ?, error_message = ?, audio_checksum = ?,
             language = ?, detected_language = ?, updated_at = ?, last_heartbeat = ?
         WHERE episode_id = ?`,
		episode.Source,
		episode.Show,
		episode.Title,
		nullableString(episode.FeedURL),
		nullableString(episode.EnclosureURL),
		nullableTime(&episode.PublishedAt),
		episode.Status,
		nullableString(episode.ErrorMessage),
		nullableString(episode.AudioChecksum),
		episode.Language,
		nullableString(episode.DetectedLanguage),
		episode.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(episode.LastHeartbeat),
		episode.ID,
	); err != nil {
		return fmt.Errorf("update episode: %w", err)
	}
	return nil
}

// UpdateStatus transitions an episode and records an optional error message.
// Leaving processing clears the heartbeat.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var err error
	if status == StatusProcessing {
		err = s.execWithoutResultRetry(
			ctx,
			`UPDATE episodes SET status = ?, error_message = ?, last_heartbeat = ?, updated_at = ? WHERE episode_id = ?`,
			status, nullableString(errorMessage), now, now, id,
		)
	} else {
		err = s.execWithoutResultRetry(
			ctx,
			`UPDATE episodes SET status = ?, error_message = ?, last_heartbeat = NULL, updated_at = ? WHERE episode_id = ?`,
			status, nullableString(errorMessage), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// ClaimNextPending atomically moves the oldest pending episode to processing
// and returns it. Only one concurrent caller wins a given episode; the losers
// move on to the next candidate. Returns (nil, nil) when nothing is pending.
func (s *Store) ClaimNextPending(ctx context.Context) (*Episode, error) {
	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT episode_id FROM episodes WHERE status = ? ORDER BY published_at, episode_id LIMIT 1`,
			StatusPending,
		)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select pending episode: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE episodes SET status = ?, last_heartbeat = ?, updated_at = ? WHERE episode_id = ? AND status = ?`,
			StatusProcessing, now, now, id, StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim episode: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Another worker claimed it between select and update.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// SetAudioChecksum records the checksum of the downloaded source audio.
func (s *Store) SetAudioChecksum(ctx context.Context, id, checksum string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE episodes SET audio_checksum = ?, updated_at = ? WHERE episode_id = ?`,
		nullableString(checksum), now, id,
	); err != nil {
		return fmt.Errorf("set audio checksum: %w", err)
	}
	return nil
}

// SetDetectedLanguage records the language the transcriber reported, which
// may differ from the expected language.
func (s *Store) SetDetectedLanguage(ctx context.Context, id, language string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE episodes SET detected_language = ?, updated_at = ? WHERE episode_id = ?`,
		nullableString(language), now, id,
	); err != nil {
		return fmt.Errorf("set detected language: %w", err)
	}
	return nil
}

// Remove deletes an episode together with its history and artifact rows.
func (s *Store) Remove(ctx context.Context, id string) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM episodes WHERE episode_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("remove episode: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes completed episodes from the database.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM episodes WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed episodes from the database.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM episodes WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}
