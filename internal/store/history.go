package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AppendStepRecord appends one row to an episode's processing history.
// History is append-only; callers never update or delete recorded rows.
func (s *Store) AppendStepRecord(ctx context.Context, record *StepRecord) (int64, error) {
	if record == nil {
		return 0, errors.New("record is nil")
	}
	produced, err := marshalArtifactNames(record.ProducedArtifacts)
	if err != nil {
		return 0, fmt.Errorf("marshal produced artifacts: %w", err)
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processing_history (
            episode_id, step_name, attempt, status, error_kind, error_message,
            produced_artifacts, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.EpisodeID,
		record.StepName,
		record.Attempt,
		record.Status,
		nullableString(record.ErrorKind),
		nullableString(record.ErrorMessage),
		produced,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(record.FinishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("append step record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	record.ID = id
	return id, nil
}

// CompleteStep appends a success record and publishes the step's staged
// artifacts in one transaction. The shared commit is the durability boundary:
// either the history shows the step succeeded and its artifacts are readable,
// or neither is true.
func (s *Store) CompleteStep(ctx context.Context, record *StepRecord) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if record.Status != StepSucceeded {
		return fmt.Errorf("complete step: record status %q, want %q", record.Status, StepSucceeded)
	}
	produced, err := marshalArtifactNames(record.ProducedArtifacts)
	if err != nil {
		return fmt.Errorf("marshal produced artifacts: %w", err)
	}

	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin complete tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO processing_history (
                episode_id, step_name, attempt, status, error_kind, error_message,
                produced_artifacts, started_at, finished_at
            ) VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, ?)`,
			record.EpisodeID,
			record.StepName,
			record.Attempt,
			record.Status,
			produced,
			record.StartedAt.UTC().Format(time.RFC3339Nano),
			nullableTime(record.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("append success record: %w", err)
		}

		if len(record.ProducedArtifacts) > 0 {
			now := time.Now().UTC().Format(time.RFC3339Nano)
			args := make([]any, 0, len(record.ProducedArtifacts)+3)
			args = append(args, ArtifactPublished, now, record.EpisodeID)
			for _, name := range record.ProducedArtifacts {
				args = append(args, name)
			}
			query := `UPDATE artifacts SET state = ?, updated_at = ?
                WHERE episode_id = ? AND name IN (` + makePlaceholders(len(record.ProducedArtifacts)) + `)`
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("publish artifacts: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit complete tx: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			record.ID = id
		}
		return nil
	})
}

// FailStep appends a failure record and discards the step's staged artifact
// rows in one transaction. It returns the paths of the discarded rows so the
// caller can remove the files.
func (s *Store) FailStep(ctx context.Context, record *StepRecord) ([]string, error) {
	if record == nil {
		return nil, errors.New("record is nil")
	}
	if record.Status != StepFailed {
		return nil, fmt.Errorf("fail step: record status %q, want %q", record.Status, StepFailed)
	}

	ctx = ensureContext(ctx)
	var discarded []string
	err := retryOnBusy(ctx, func() error {
		discarded = discarded[:0]

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin fail tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO processing_history (
                episode_id, step_name, attempt, status, error_kind, error_message,
                produced_artifacts, started_at, finished_at
            ) VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			record.EpisodeID,
			record.StepName,
			record.Attempt,
			record.Status,
			nullableString(record.ErrorKind),
			nullableString(record.ErrorMessage),
			record.StartedAt.UTC().Format(time.RFC3339Nano),
			nullableTime(record.FinishedAt),
		)
		if err != nil {
			return fmt.Errorf("append failure record: %w", err)
		}

		rows, err := tx.QueryContext(
			ctx,
			`SELECT path FROM artifacts WHERE episode_id = ? AND step_name = ? AND state = ?`,
			record.EpisodeID, record.StepName, ArtifactStaged,
		)
		if err != nil {
			return fmt.Errorf("select staged artifacts: %w", err)
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return fmt.Errorf("scan staged artifact: %w", err)
			}
			discarded = append(discarded, path)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate staged artifacts: %w", err)
		}
		rows.Close()

		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM artifacts WHERE episode_id = ? AND step_name = ? AND state = ?`,
			record.EpisodeID, record.StepName, ArtifactStaged,
		); err != nil {
			return fmt.Errorf("discard staged artifacts: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit fail tx: %w", err)
		}
		if id, err := res.LastInsertId(); err == nil {
			record.ID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return discarded, nil
}

// History returns an episode's processing history in append order.
func (s *Store) History(ctx context.Context, episodeID string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM processing_history WHERE episode_id = ? ORDER BY id`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("episode history: %w", err)
	}
	defer rows.Close()

	var records []*StepRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// StepHistory returns the history rows for one step of one episode in append
// order.
func (s *Store) StepHistory(ctx context.Context, episodeID, stepName string) ([]*StepRecord, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+recordColumns+` FROM processing_history WHERE episode_id = ? AND step_name = ? ORDER BY id`,
		episodeID,
		stepName,
	)
	if err != nil {
		return nil, fmt.Errorf("step history: %w", err)
	}
	defer rows.Close()

	var records []*StepRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
