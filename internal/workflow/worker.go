package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"teanga/internal/logging"
	"teanga/internal/pipeline"
	"teanga/internal/services"
	"teanga/internal/store"
)

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()

	workerCtx := services.WithWorker(ctx, worker)
	logger := logging.WithContext(workerCtx, m.logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// The first worker doubles as the janitor for episodes whose
		// previous owner died without releasing them.
		if worker == 0 {
			if err := m.heartbeat.ReclaimStale(workerCtx, logger); err != nil {
				logger.Warn("reclaim stale processing failed; stuck episodes may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"))
			}
		}

		episode, err := m.store.ClaimNextPending(workerCtx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to claim next pending episode",
				logging.Error(err),
				logging.String(logging.FieldEventType, "claim_failed"),
				logging.String(logging.FieldErrorHint, "check episode database access"))
			m.waitOrShutdown(ctx, m.errorInterval)
			continue
		}
		if episode == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		if err := m.processEpisode(workerCtx, logger, episode); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

// processEpisode runs one claimed episode through the full pipeline and
// settles its queue status from the result.
func (m *Manager) processEpisode(ctx context.Context, logger *slog.Logger, episode *store.Episode) error {
	episodeCtx := services.WithEpisodeID(ctx, episode.ID)
	episodeLogger := logging.WithContext(episodeCtx, logger)
	m.setLastEpisode(episode)

	heartbeatCtx, stopHeartbeat := context.WithCancel(episodeCtx)
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go m.heartbeat.StartLoop(heartbeatCtx, &heartbeatWG, episode.ID)

	startedAt := time.Now()
	episodeLogger.Info("episode processing started",
		logging.String(logging.FieldEventType, "episode_start"),
		logging.Int("steps", len(m.steps)))

	result := m.runner.RunEpisode(episodeCtx, episode, m.steps, pipeline.RunOptions{})

	stopHeartbeat()
	heartbeatWG.Wait()

	m.setLastEpisode(episode)

	if result.Failed() {
		return m.settleFailure(episodeCtx, episodeLogger, episode, result)
	}
	return m.settleSuccess(episodeCtx, episodeLogger, episode, result, time.Since(startedAt))
}

func (m *Manager) settleSuccess(ctx context.Context, logger *slog.Logger, episode *store.Episode, result *pipeline.Result, elapsed time.Duration) error {
	if err := m.store.UpdateStatus(context.WithoutCancel(ctx), episode.ID, store.StatusCompleted, ""); err != nil {
		m.setLastError(err)
		logger.Error("marking episode completed failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_update_failed"))
		return err
	}
	episode.Status = store.StatusCompleted

	skipped := 0
	for _, step := range result.Steps {
		if step.Outcome == pipeline.OutcomeSkipped {
			skipped++
		}
	}
	logger.Info("episode processing completed",
		logging.String(logging.FieldEventType, "episode_complete"),
		logging.Int("steps_run", len(result.Steps)-skipped),
		logging.Int("steps_skipped", skipped),
		logging.Duration("elapsed", elapsed))

	if err := m.notifier.NotifyEpisodeCompleted(ctx, episode.ID, episode.Title, elapsed); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
	return nil
}

func (m *Manager) settleFailure(ctx context.Context, logger *slog.Logger, episode *store.Episode, result *pipeline.Result) error {
	failedStep := ""
	for _, step := range result.Steps {
		if step.Outcome == pipeline.OutcomeFailed {
			failedStep = step.Step
		}
	}

	// Cancellation is not a verdict on the episode. Release it so the next
	// run resumes from the first unmet step.
	if errors.Is(result.Err, context.Canceled) {
		if err := m.store.UpdateStatus(context.WithoutCancel(ctx), episode.ID, store.StatusPending, store.DaemonStopReason); err != nil {
			logger.Warn("releasing cancelled episode failed", logging.Error(err))
		}
		return result.Err
	}

	m.setLastError(result.Err)
	if err := m.store.UpdateStatus(context.WithoutCancel(ctx), episode.ID, store.StatusFailed, result.Err.Error()); err != nil {
		logger.Error("marking episode failed failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_update_failed"))
		return err
	}
	episode.Status = store.StatusFailed

	logger.Error("episode processing failed",
		logging.String(logging.FieldEventType, "episode_failure"),
		logging.String(logging.FieldStep, failedStep),
		logging.String("error_kind", string(services.Kind(result.Err))),
		logging.Error(result.Err))

	if err := m.notifier.NotifyEpisodeFailed(ctx, episode.ID, failedStep, result.Err); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
	return nil
}

func (m *Manager) waitOrShutdown(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
