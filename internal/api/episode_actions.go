package api

import "context"

type RetryOutcome string

const (
	RetryUpdated   RetryOutcome = "retried"
	RetryNotFound  RetryOutcome = "not_found"
	RetryNotFailed RetryOutcome = "not_failed"
)

type RetryResult struct {
	ID      string       `json:"id"`
	Outcome RetryOutcome `json:"outcome"`
}

type RetryEpisodesResult struct {
	UpdatedCount int64         `json:"updatedCount"`
	Episodes     []RetryResult `json:"episodes"`
}

type RemoveOutcome string

const (
	RemoveUpdated    RemoveOutcome = "removed"
	RemoveNotFound   RemoveOutcome = "not_found"
	RemoveProcessing RemoveOutcome = "processing"
)

type RemoveResult struct {
	ID          string        `json:"id"`
	Outcome     RemoveOutcome `json:"outcome"`
	PriorStatus string        `json:"priorStatus,omitempty"`
}

type RemoveEpisodesResult struct {
	RemovedCount int64          `json:"removedCount"`
	Episodes     []RemoveResult `json:"episodes"`
}

// RetryFailedEpisodes validates IDs and retries only failed episodes. A retry
// flips the episode back to pending with its history intact, so the next run
// resumes from the first unmet step.
func RetryFailedEpisodes(ctx context.Context, service *EpisodeService, ids []string) (RetryEpisodesResult, error) {
	result := RetryEpisodesResult{Episodes: make([]RetryResult, 0, len(ids))}
	for _, id := range ids {
		episode, err := service.Describe(ctx, id)
		if err != nil {
			return RetryEpisodesResult{}, err
		}
		if episode == nil {
			result.Episodes = append(result.Episodes, RetryResult{ID: id, Outcome: RetryNotFound})
			continue
		}
		updated, err := service.store.RetryFailed(ctx, id)
		if err != nil {
			return RetryEpisodesResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Episodes = append(result.Episodes, RetryResult{ID: id, Outcome: RetryUpdated})
			continue
		}
		result.Episodes = append(result.Episodes, RetryResult{ID: id, Outcome: RetryNotFailed})
	}
	return result, nil
}

// RemoveEpisodes deletes episodes unless a worker currently holds them.
func RemoveEpisodes(ctx context.Context, service *EpisodeService, ids []string) (RemoveEpisodesResult, error) {
	result := RemoveEpisodesResult{Episodes: make([]RemoveResult, 0, len(ids))}
	for _, id := range ids {
		episode, err := service.Describe(ctx, id)
		if err != nil {
			return RemoveEpisodesResult{}, err
		}
		if episode == nil {
			result.Episodes = append(result.Episodes, RemoveResult{ID: id, Outcome: RemoveNotFound})
			continue
		}
		if episode.Status == "processing" {
			result.Episodes = append(result.Episodes, RemoveResult{ID: id, Outcome: RemoveProcessing, PriorStatus: episode.Status})
			continue
		}
		removed, err := service.store.Remove(ctx, id)
		if err != nil {
			return RemoveEpisodesResult{}, err
		}
		if removed > 0 {
			result.RemovedCount += removed
			result.Episodes = append(result.Episodes, RemoveResult{ID: id, Outcome: RemoveUpdated, PriorStatus: episode.Status})
			continue
		}
		result.Episodes = append(result.Episodes, RemoveResult{ID: id, Outcome: RemoveNotFound})
	}
	return result, nil
}
