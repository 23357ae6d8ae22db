package workflow

import (
	"context"

	"teanga/internal/logging"
	"teanga/internal/pipeline"
	"teanga/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastEpisode *store.Episode
	QueueStats  map[store.Status]int
	StepHealth  []pipeline.Health
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastEpisode := m.lastEpisode
	steps := m.steps
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read episode stats", logging.Error(err))
	}

	health := make([]pipeline.Health, 0, len(steps))
	for _, step := range steps {
		if checker, ok := step.(pipeline.HealthChecker); ok {
			health = append(health, checker.HealthCheck(ctx))
			continue
		}
		health = append(health, pipeline.Healthy(step.Name()))
	}

	summary := StatusSummary{Running: running, QueueStats: stats, StepHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastEpisode != nil {
		cp := *lastEpisode
		summary.LastEpisode = &cp
	}
	return summary
}
