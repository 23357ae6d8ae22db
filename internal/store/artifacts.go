package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// StageArtifact records a freshly written artifact file as staged. Re-staging
// an existing name replaces the row; the file on disk was already replaced by
// the atomic rename.
func (s *Store) StageArtifact(ctx context.Context, artifact *Artifact) error {
	if artifact == nil {
		return errors.New("artifact is nil")
	}
	if artifact.EpisodeID == "" || artifact.Name == "" {
		return errors.New("artifact episode id and name are required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO artifacts (
            episode_id, name, path, checksum, size_bytes, state, step_name, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(episode_id, name) DO UPDATE SET
            path = excluded.path,
            checksum = excluded.checksum,
            size_bytes = excluded.size_bytes,
            state = excluded.state,
            step_name = excluded.step_name,
            updated_at = excluded.updated_at`,
		artifact.EpisodeID,
		artifact.Name,
		artifact.Path,
		artifact.Checksum,
		artifact.SizeBytes,
		ArtifactStaged,
		artifact.StepName,
		now,
		now,
	); err != nil {
		return fmt.Errorf("stage artifact: %w", err)
	}
	artifact.State = ArtifactStaged
	return nil
}

// GetArtifact fetches an artifact row regardless of state. Missing rows
// return (nil, nil).
func (s *Store) GetArtifact(ctx context.Context, episodeID, name string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE episode_id = ? AND name = ?`,
		episodeID,
		name,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return artifact, nil
}

// PublishedArtifact fetches an artifact row only when its producing step has
// completed. Staged rows return (nil, nil), same as missing ones.
func (s *Store) PublishedArtifact(ctx context.Context, episodeID, name string) (*Artifact, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE episode_id = ? AND name = ? AND state = ?`,
		episodeID,
		name,
		ArtifactPublished,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get published artifact: %w", err)
	}
	return artifact, nil
}

// ListArtifacts returns every artifact row for an episode in name order.
func (s *Store) ListArtifacts(ctx context.Context, episodeID string) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE episode_id = ? ORDER BY name`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}
