package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/store"
)

// Outcome is the final disposition of one step within a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// StepResult reports how one step ended.
type StepResult struct {
	Step     string
	Outcome  Outcome
	Attempts int
	Err      error
}

// Result aggregates a whole episode run. Err carries the halting error when a
// required step failed; optional step failures appear only in their
// StepResult.
type Result struct {
	EpisodeID string
	Steps     []StepResult
	Err       error
}

// Failed reports whether the run halted on a required step.
func (r *Result) Failed() bool {
	return r != nil && r.Err != nil
}

// RunOptions adjusts a single run.
type RunOptions struct {
	// Force re-runs every step even when its outputs are already valid.
	Force bool
	// ForceSteps re-runs only the named steps.
	ForceSteps []string
}

func (o RunOptions) forced(name string) bool {
	if o.Force {
		return true
	}
	for _, step := range o.ForceSteps {
		if step == name {
			return true
		}
	}
	return false
}

// Runner drives one episode through its steps sequentially, recording every
// attempt in processing history.
type Runner struct {
	store    *store.Store
	arts     *artifacts.Store
	logger   *slog.Logger
	attempts int
	initial  time.Duration
	max      time.Duration

	// sleep is replaced in tests to observe retry delays without waiting.
	sleep func(context.Context, time.Duration) error
}

// NewRunner builds a runner from the workflow retry configuration.
func NewRunner(cfg *config.Config, st *store.Store, arts *artifacts.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := cfg.Workflow.StepAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Runner{
		store:    st,
		arts:     arts,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		attempts: attempts,
		initial:  time.Duration(cfg.Workflow.RetryInitialMillis) * time.Millisecond,
		max:      time.Duration(cfg.Workflow.RetryMaxMillis) * time.Millisecond,
		sleep:    sleepContext,
	}
}

// RunEpisode executes steps in order for one episode. It stops at the first
// halting failure and returns a result describing every step it touched. The
// caller owns the episode's queue status; the runner owns history and
// artifacts.
func (r *Runner) RunEpisode(ctx context.Context, episode *store.Episode, steps []Step, opts RunOptions) *Result {
	result := &Result{EpisodeID: episode.ID}
	runCtx := services.WithEpisodeID(ctx, episode.ID)

	for _, step := range steps {
		if err := runCtx.Err(); err != nil {
			result.Err = err
			return result
		}

		stepResult := r.runStep(runCtx, episode, step, opts)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.Outcome == OutcomeFailed && !IsOptional(step) {
			result.Err = stepResult.Err
			return result
		}
	}
	return result
}

func (r *Runner) runStep(ctx context.Context, episode *store.Episode, step Step, opts RunOptions) StepResult {
	name := step.Name()
	stepCtx := services.WithStep(ctx, name)
	logger := logging.WithContext(stepCtx, r.logger)

	// Inputs are verified before the skip check: a step whose outputs look
	// valid must still refuse when an upstream artifact has gone missing or
	// corrupt, otherwise the damage surfaces steps later.
	if missing, err := r.missingInputs(stepCtx, episode.ID, step); err != nil {
		return r.failBeforeRun(stepCtx, logger, episode, step, err)
	} else if len(missing) > 0 {
		err := services.Wrap(services.ErrMissingInput, name, "preflight",
			"required inputs never produced: "+strings.Join(missing, ", "), nil)
		return r.failBeforeRun(stepCtx, logger, episode, step, err)
	}

	forced := opts.forced(name)
	if !forced {
		done, err := r.outputsValid(stepCtx, episode.ID, step)
		if err != nil {
			return r.failBeforeRun(stepCtx, logger, episode, step, err)
		}
		if done {
			logger.Info("step skipped, outputs already valid",
				logging.String(logging.FieldEventType, "step_skip"))
			now := time.Now().UTC()
			if _, err := r.store.AppendStepRecord(stepCtx, &store.StepRecord{
				EpisodeID:  episode.ID,
				StepName:   name,
				Attempt:    0,
				Status:     store.StepSkipped,
				StartedAt:  now,
				FinishedAt: &now,
			}); err != nil {
				return StepResult{Step: name, Outcome: OutcomeFailed, Err: err}
			}
			return StepResult{Step: name, Outcome: OutcomeSkipped}
		}
	}

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = r.initial
	schedule.MaxInterval = r.max
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0
	schedule.MaxElapsedTime = 0
	schedule.Reset()

	var lastErr error
	attemptsMade := 0
	for attempt := 1; attempt <= r.attempts; attempt++ {
		attemptsMade = attempt
		startedAt := time.Now().UTC()
		if _, err := r.store.AppendStepRecord(stepCtx, &store.StepRecord{
			EpisodeID: episode.ID,
			StepName:  name,
			Attempt:   attempt,
			Status:    store.StepRunning,
			StartedAt: startedAt,
		}); err != nil {
			return StepResult{Step: name, Outcome: OutcomeFailed, Attempts: attempt, Err: err}
		}

		logger.Info("step started",
			logging.String(logging.FieldEventType, "step_start"),
			logging.Int("attempt", attempt),
			logging.Int("attempt_budget", r.attempts))

		runErr := step.Run(stepCtx, episode)
		if runErr == nil {
			runErr = r.verifyOutputs(stepCtx, episode.ID, step)
		}

		if runErr == nil {
			finishedAt := time.Now().UTC()
			record := &store.StepRecord{
				EpisodeID:         episode.ID,
				StepName:          name,
				Attempt:           attempt,
				Status:            store.StepSucceeded,
				ProducedArtifacts: step.DeclaredOutputs(),
				StartedAt:         startedAt,
				FinishedAt:        &finishedAt,
			}
			if err := r.store.CompleteStep(stepCtx, record); err != nil {
				return StepResult{Step: name, Outcome: OutcomeFailed, Attempts: attempt, Err: err}
			}
			logger.Info("step completed",
				logging.String(logging.FieldEventType, "step_complete"),
				logging.Int("attempt", attempt),
				logging.Duration("elapsed", finishedAt.Sub(startedAt)))
			return StepResult{Step: name, Outcome: OutcomeSucceeded, Attempts: attempt}
		}

		lastErr = runErr
		kind := services.Kind(runErr)
		if err := r.recordFailure(stepCtx, episode, step, attempt, startedAt, runErr); err != nil {
			return StepResult{Step: name, Outcome: OutcomeFailed, Attempts: attempt, Err: err}
		}

		logger.Error("step failed",
			logging.String(logging.FieldEventType, "step_failure"),
			logging.Int("attempt", attempt),
			logging.String("error_kind", string(kind)),
			logging.Error(runErr))

		if stepCtx.Err() != nil || kind != services.KindTransient || attempt == r.attempts {
			break
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			delay = r.max
		}
		logger.Warn("retrying step after transient failure",
			logging.String(logging.FieldEventType, "step_retry"),
			logging.Int("next_attempt", attempt+1),
			logging.Duration("delay", delay))
		if err := r.sleep(stepCtx, delay); err != nil {
			// Canceled while waiting; the attempt's failure row already exists.
			return StepResult{Step: name, Outcome: OutcomeFailed, Attempts: attempt, Err: lastErr}
		}
	}

	return StepResult{Step: name, Outcome: OutcomeFailed, Attempts: attemptsMade, Err: lastErr}
}

// failBeforeRun records a failure for a step that never started running: a
// missing required input or an artifact index error during the skip check.
func (r *Runner) failBeforeRun(ctx context.Context, logger *slog.Logger, episode *store.Episode, step Step, err error) StepResult {
	logger.Error("step refused",
		logging.String(logging.FieldEventType, "step_failure"),
		logging.String("error_kind", string(services.Kind(err))),
		logging.Error(err))
	if recErr := r.recordFailure(ctx, episode, step, 1, time.Now().UTC(), err); recErr != nil {
		return StepResult{Step: step.Name(), Outcome: OutcomeFailed, Err: recErr}
	}
	return StepResult{Step: step.Name(), Outcome: OutcomeFailed, Err: err}
}

func (r *Runner) recordFailure(ctx context.Context, episode *store.Episode, step Step, attempt int, startedAt time.Time, runErr error) error {
	finishedAt := time.Now().UTC()
	record := &store.StepRecord{
		EpisodeID:    episode.ID,
		StepName:     step.Name(),
		Attempt:      attempt,
		Status:       store.StepFailed,
		ErrorKind:    string(services.Kind(runErr)),
		ErrorMessage: runErr.Error(),
		StartedAt:    startedAt,
		FinishedAt:   &finishedAt,
	}
	// The failure row must land even when the step died of cancellation.
	discarded, err := r.store.FailStep(context.WithoutCancel(ctx), record)
	if err != nil {
		return err
	}
	r.arts.RemoveFiles(episode.ID, discarded)
	return nil
}

// outputsValid reports whether every declared output is published and
// verifies, meaning the step has nothing left to do.
func (r *Runner) outputsValid(ctx context.Context, episodeID string, step Step) (bool, error) {
	outputs := step.DeclaredOutputs()
	if len(outputs) == 0 {
		return false, nil
	}
	for _, name := range outputs {
		ok, err := r.arts.Exists(ctx, episodeID, name)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Runner) missingInputs(ctx context.Context, episodeID string, step Step) ([]string, error) {
	var missing []string
	for _, name := range step.RequiredInputs() {
		ok, err := r.arts.Exists(ctx, episodeID, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// verifyOutputs enforces the step contract after a successful Run: every
// declared output must have been written and must hash clean. A violation is
// permanent because re-running the same step would break the same way.
func (r *Runner) verifyOutputs(ctx context.Context, episodeID string, step Step) error {
	var missing []string
	for _, name := range step.DeclaredOutputs() {
		ok, err := r.arts.Written(ctx, episodeID, name)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrPermanent, step.Name(), "contract",
			"step reported success without producing: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
