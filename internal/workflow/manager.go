package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/notifications"
	"teanga/internal/pipeline"
	"teanga/internal/store"
)

// Manager coordinates episode discovery and processing.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	arts     *artifacts.Store
	steps    []pipeline.Step
	runner   *pipeline.Runner
	logger   *slog.Logger
	notifier notifications.Service

	pollInterval  time.Duration
	scanInterval  time.Duration
	errorInterval time.Duration
	workers       int

	heartbeat *HeartbeatMonitor

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastEpisode *store.Episode
}

// NewManager constructs a workflow manager with the default notifier.
func NewManager(cfg *config.Config, st *store.Store, arts *artifacts.Store, steps []pipeline.Step, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, st, arts, steps, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, st *store.Store, arts *artifacts.Store, steps []pipeline.Step, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	workers := cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		cfg:           cfg,
		store:         st,
		arts:          arts,
		steps:         steps,
		runner:        pipeline.NewRunner(cfg, st, arts, logger),
		logger:        logging.NewComponentLogger(logger, "workflow"),
		notifier:      notifier,
		pollInterval:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		scanInterval:  time.Duration(cfg.Workflow.FeedScanInterval) * time.Second,
		errorInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workers:       workers,
		heartbeat: NewHeartbeatMonitor(
			st,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// Start begins background processing: one discovery loop plus the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return errors.New("workflow steps not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	// Temp files left by a crashed writer are swept before workers start.
	// Anything younger than the heartbeat timeout may belong to another
	// live process and is left alone.
	maxAge := time.Duration(m.cfg.Workflow.HeartbeatTimeout) * time.Second
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if cleaned := artifacts.CleanStalePartials(m.cfg.EpisodesDir(), maxAge, m.logger); len(cleaned.Errors) > 0 {
		m.logger.Warn("stale partial cleanup finished with errors",
			logging.Int("removed", len(cleaned.Removed)),
			logging.Int("errors", len(cleaned.Errors)))
	}

	go m.runDiscovery(runCtx)
	for worker := 0; worker < m.workers; worker++ {
		go m.runWorker(runCtx, worker)
	}
	return nil
}

// Stop terminates background processing and waits for workers to unwind.
// Episodes interrupted mid-run are released back to pending so the next
// start resumes them from their first unmet step.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	released, err := m.store.ResetStuckProcessing(context.Background())
	if err != nil {
		m.logger.Warn("releasing interrupted episodes failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "shutdown_release_failed"))
		return
	}
	if released > 0 {
		m.logger.Info("released interrupted episodes for resume",
			logging.Int64("count", released))
	}
}

// Steps returns the configured pipeline steps in execution order.
func (m *Manager) Steps() []pipeline.Step {
	out := make([]pipeline.Step, len(m.steps))
	copy(out, m.steps)
	return out
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastEpisode(episode *store.Episode) {
	m.mu.Lock()
	if episode != nil {
		cp := *episode
		m.lastEpisode = &cp
	} else {
		m.lastEpisode = nil
	}
	m.mu.Unlock()
}
