package api

import (
	"teanga/internal/store"
	"teanga/internal/workflow"
)

// FromEpisode converts a store record to its API representation.
func FromEpisode(episode *store.Episode) Episode {
	if episode == nil {
		return Episode{}
	}

	dto := Episode{
		ID:               episode.ID,
		Source:           episode.Source,
		Show:             episode.Show,
		Title:            episode.Title,
		Status:           string(episode.Status),
		ErrorMessage:     episode.ErrorMessage,
		FeedURL:          episode.FeedURL,
		EnclosureURL:     episode.EnclosureURL,
		Language:         episode.Language,
		DetectedLanguage: episode.DetectedLanguage,
		AudioChecksum:    episode.AudioChecksum,
	}
	if !episode.PublishedAt.IsZero() {
		dto.PublishedAt = episode.PublishedAt.UTC().Format(dateTimeFormat)
	}
	if !episode.CreatedAt.IsZero() {
		dto.CreatedAt = episode.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !episode.UpdatedAt.IsZero() {
		dto.UpdatedAt = episode.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if episode.LastHeartbeat != nil && !episode.LastHeartbeat.IsZero() {
		dto.LastHeartbeat = episode.LastHeartbeat.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromEpisodes converts a slice of store records into API DTOs.
func FromEpisodes(episodes []*store.Episode) []Episode {
	if len(episodes) == 0 {
		return nil
	}
	out := make([]Episode, 0, len(episodes))
	for _, episode := range episodes {
		out = append(out, FromEpisode(episode))
	}
	return out
}

// FromStepRecord converts a history row to its API representation.
func FromStepRecord(record *store.StepRecord) HistoryRecord {
	if record == nil {
		return HistoryRecord{}
	}

	dto := HistoryRecord{
		Step:              record.StepName,
		Attempt:           record.Attempt,
		Status:            string(record.Status),
		ErrorKind:         record.ErrorKind,
		ErrorMessage:      record.ErrorMessage,
		ProducedArtifacts: record.ProducedArtifacts,
	}
	if !record.StartedAt.IsZero() {
		dto.StartedAt = record.StartedAt.UTC().Format(dateTimeFormat)
	}
	if record.FinishedAt != nil && !record.FinishedAt.IsZero() {
		dto.FinishedAt = record.FinishedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromStepRecords converts a history slice into API DTOs.
func FromStepRecords(records []*store.StepRecord) []HistoryRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]HistoryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, FromStepRecord(record))
	}
	return out
}

// FromArtifact converts an artifact index row to its API representation.
func FromArtifact(artifact *store.Artifact) Artifact {
	if artifact == nil {
		return Artifact{}
	}

	dto := Artifact{
		Name:      artifact.Name,
		Path:      artifact.Path,
		Checksum:  artifact.Checksum,
		SizeBytes: artifact.SizeBytes,
		State:     string(artifact.State),
		Step:      artifact.StepName,
	}
	if !artifact.CreatedAt.IsZero() {
		dto.CreatedAt = artifact.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromArtifacts converts a slice of artifact rows into API DTOs.
func FromArtifacts(artifacts []*store.Artifact) []Artifact {
	if len(artifacts) == 0 {
		return nil
	}
	out := make([]Artifact, 0, len(artifacts))
	for _, artifact := range artifacts {
		out = append(out, FromArtifact(artifact))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		QueueStats: MergeEpisodeStats(summary.QueueStats),
		LastError:  summary.LastError,
		StepHealth: make([]StepHealth, 0, len(summary.StepHealth)),
	}
	for _, health := range summary.StepHealth {
		status.StepHealth = append(status.StepHealth, StepHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	if summary.LastEpisode != nil {
		episode := FromEpisode(summary.LastEpisode)
		status.LastEpisode = &episode
	}
	return status
}

// MergeEpisodeStats normalizes status counts so every known status is present.
func MergeEpisodeStats(stats map[store.Status]int) map[string]int {
	merged := make(map[string]int, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		merged[string(status)] = 0
	}
	for status, count := range stats {
		merged[string(status)] = count
	}
	return merged
}
