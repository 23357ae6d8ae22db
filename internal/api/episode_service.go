package api

import (
	"context"

	"teanga/internal/store"
)

// EpisodeStore abstracts episode persistence interactions needed by the API
// layer. *store.Store satisfies it.
type EpisodeStore interface {
	List(ctx context.Context, statuses ...store.Status) ([]*store.Episode, error)
	GetByID(ctx context.Context, id string) (*store.Episode, error)
	History(ctx context.Context, episodeID string) ([]*store.StepRecord, error)
	ListArtifacts(ctx context.Context, episodeID string) ([]*store.Artifact, error)
	Stats(ctx context.Context) (map[store.Status]int, error)
	RetryFailed(ctx context.Context, ids ...string) (int64, error)
	Remove(ctx context.Context, id string) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
}

// EpisodeService exposes episode operations returning API DTOs.
type EpisodeService struct {
	store EpisodeStore
}

// NewEpisodeService constructs an EpisodeService around the provided store.
func NewEpisodeService(store EpisodeStore) *EpisodeService {
	if store == nil {
		return nil
	}
	return &EpisodeService{store: store}
}

// List returns episodes filtered by status.
func (s *EpisodeService) List(ctx context.Context, statuses ...store.Status) ([]Episode, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	episodes, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromEpisodes(episodes), nil
}

// Stats returns episode summary counts keyed by status string.
func (s *EpisodeService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeEpisodeStats(stats), nil
}

// Describe fetches a single episode. Returns nil when the ID is unknown.
func (s *EpisodeService) Describe(ctx context.Context, id string) (*Episode, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	episode, err := s.store.GetByID(ctx, id)
	if err != nil || episode == nil {
		return nil, err
	}
	dto := FromEpisode(episode)
	return &dto, nil
}

// History returns an episode's full per-attempt processing log.
func (s *EpisodeService) History(ctx context.Context, episodeID string) ([]HistoryRecord, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	records, err := s.store.History(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return FromStepRecords(records), nil
}

// Artifacts lists an episode's staged and published outputs.
func (s *EpisodeService) Artifacts(ctx context.Context, episodeID string) ([]Artifact, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	artifacts, err := s.store.ListArtifacts(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return FromArtifacts(artifacts), nil
}

// ClearCompleted removes completed episodes and returns how many were cleared.
func (s *EpisodeService) ClearCompleted(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.ClearCompleted(ctx)
}

// ClearFailed removes failed episodes and returns how many were cleared.
func (s *EpisodeService) ClearFailed(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.ClearFailed(ctx)
}
