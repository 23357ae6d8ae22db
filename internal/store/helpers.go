package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const episodeColumns = "episode_id, source, show, title, feed_url, enclosure_url, published_at, status, error_message, audio_checksum, language, detected_language, created_at, updated_at, last_heartbeat"

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id               string
		source           sql.NullString
		show             sql.NullString
		title            sql.NullString
		feedURL          sql.NullString
		enclosureURL     sql.NullString
		publishedRaw     sql.NullString
		statusStr        string
		errorMessage     sql.NullString
		audioChecksum    sql.NullString
		language         sql.NullString
		detectedLanguage sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&source,
		&show,
		&title,
		&feedURL,
		&enclosureURL,
		&publishedRaw,
		&statusStr,
		&errorMessage,
		&audioChecksum,
		&language,
		&detectedLanguage,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	episode := &Episode{
		ID:               id,
		Source:           source.String,
		Show:             show.String,
		Title:            title.String,
		FeedURL:          feedURL.String,
		EnclosureURL:     enclosureURL.String,
		Status:           Status(statusStr),
		ErrorMessage:     errorMessage.String,
		AudioChecksum:    audioChecksum.String,
		Language:         language.String,
		DetectedLanguage: detectedLanguage.String,
	}

	if published, err := parseTimeString(publishedRaw.String); err == nil {
		episode.PublishedAt = published
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		episode.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		episode.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			episode.LastHeartbeat = &heartbeat
		}
	}
	return episode, nil
}

const recordColumns = "id, episode_id, step_name, attempt, status, error_kind, error_message, produced_artifacts, started_at, finished_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*StepRecord, error) {
	var (
		id           int64
		episodeID    string
		stepName     string
		attempt      int64
		statusStr    string
		errorKind    sql.NullString
		errorMessage sql.NullString
		producedRaw  sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&episodeID,
		&stepName,
		&attempt,
		&statusStr,
		&errorKind,
		&errorMessage,
		&producedRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	record := &StepRecord{
		ID:           id,
		EpisodeID:    episodeID,
		StepName:     stepName,
		Attempt:      int(attempt),
		Status:       StepStatus(statusStr),
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
	}
	if producedRaw.Valid && producedRaw.String != "" {
		if err := json.Unmarshal([]byte(producedRaw.String), &record.ProducedArtifacts); err != nil {
			return nil, err
		}
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		record.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			record.FinishedAt = &finished
		}
	}
	return record, nil
}

const artifactColumns = "id, episode_id, name, path, checksum, size_bytes, state, step_name, created_at, updated_at"

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*Artifact, error) {
	var (
		id         int64
		episodeID  string
		name       string
		path       string
		checksum   sql.NullString
		sizeBytes  sql.NullInt64
		stateStr   string
		stepName   sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&episodeID,
		&name,
		&path,
		&checksum,
		&sizeBytes,
		&stateStr,
		&stepName,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	artifact := &Artifact{
		ID:        id,
		EpisodeID: episodeID,
		Name:      name,
		Path:      path,
		Checksum:  checksum.String,
		SizeBytes: sizeBytes.Int64,
		State:     ArtifactState(stateStr),
		StepName:  stepName.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		artifact.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		artifact.UpdatedAt = updated
	}
	return artifact, nil
}

func marshalArtifactNames(names []string) (any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
