package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/services"
	"teanga/internal/store"
	"teanga/internal/testsupport"
)

const episodeID = "rnag_barrscealta_20251017_1100"

type fakeStep struct {
	name     string
	inputs   []string
	outputs  []string
	optional bool
	calls    int
	run      func(ctx context.Context, call int) error
}

func (s *fakeStep) Name() string              { return s.name }
func (s *fakeStep) RequiredInputs() []string  { return s.inputs }
func (s *fakeStep) DeclaredOutputs() []string { return s.outputs }
func (s *fakeStep) Optional() bool            { return s.optional }

func (s *fakeStep) Run(ctx context.Context, _ *store.Episode) error {
	s.calls++
	if s.run == nil {
		return nil
	}
	return s.run(ctx, s.calls)
}

type harness struct {
	cfg    *config.Config
	store  *store.Store
	arts   *artifacts.Store
	runner *Runner
	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StepAttempts = 3
	cfg.Workflow.RetryInitialMillis = 10
	cfg.Workflow.RetryMaxMillis = 100

	st := testsupport.MustOpenStore(t, cfg)
	arts := artifacts.NewStore(cfg, st, nil)
	h := &harness{cfg: cfg, store: st, arts: arts}
	h.runner = NewRunner(cfg, st, arts, nil)
	h.runner.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	testsupport.NewEpisode(t, st, episodeID)
	return h
}

// writer returns a run func that writes every declared output of the step.
func (h *harness) writer(step *fakeStep, content string) func(context.Context, int) error {
	return func(ctx context.Context, _ int) error {
		for _, name := range step.outputs {
			if _, err := h.arts.Write(ctx, episodeID, name, step.name, func(w io.Writer) error {
				_, err := w.Write([]byte(content + ":" + name))
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	}
}

func (h *harness) standardSteps() []*fakeStep {
	fetch := &fakeStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	fetch.run = h.writer(fetch, "feed")
	download := &fakeStep{name: "download", inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.OriginalAudio}}
	download.run = h.writer(download, "audio")
	convert := &fakeStep{name: "convert", inputs: []string{artifacts.OriginalAudio}, outputs: []string{artifacts.NormalizedAudio}}
	convert.run = h.writer(convert, "wav")
	transcribe := &fakeStep{name: "transcribe", inputs: []string{artifacts.NormalizedAudio}, outputs: []string{artifacts.RawTranscript, artifacts.Subtitles}}
	transcribe.run = h.writer(transcribe, "text")
	return []*fakeStep{fetch, download, convert, transcribe}
}

func asSteps(fakes []*fakeStep) []Step {
	steps := make([]Step, len(fakes))
	for i, f := range fakes {
		steps[i] = f
	}
	return steps
}

func finishedRecords(t *testing.T, st *store.Store, step string) []*store.StepRecord {
	t.Helper()
	history, err := st.StepHistory(context.Background(), episodeID, step)
	if err != nil {
		t.Fatalf("StepHistory failed: %v", err)
	}
	var finished []*store.StepRecord
	for _, record := range history {
		if record.Status != store.StepRunning {
			finished = append(finished, record)
		}
	}
	return finished
}

func mustGetEpisode(t *testing.T, st *store.Store) *store.Episode {
	t.Helper()
	episode, err := st.GetByID(context.Background(), episodeID)
	if err != nil || episode == nil {
		t.Fatalf("GetByID failed: %v (%#v)", err, episode)
	}
	return episode
}

func TestRunEpisodeHappyPath(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	if len(result.Steps) != 4 {
		t.Fatalf("expected 4 step results, got %d", len(result.Steps))
	}
	for _, sr := range result.Steps {
		if sr.Outcome != OutcomeSucceeded || sr.Attempts != 1 {
			t.Fatalf("unexpected step result: %#v", sr)
		}
	}

	for _, name := range []string{artifacts.FeedEntry, artifacts.OriginalAudio, artifacts.NormalizedAudio, artifacts.RawTranscript, artifacts.Subtitles} {
		ok, err := h.arts.Exists(context.Background(), episodeID, name)
		if err != nil {
			t.Fatalf("Exists(%s) failed: %v", name, err)
		}
		if !ok {
			t.Fatalf("expected %s published", name)
		}
	}

	records := finishedRecords(t, h.store, "transcribe")
	if len(records) != 1 || records[0].Status != store.StepSucceeded {
		t.Fatalf("unexpected transcribe records: %#v", records)
	}
	if len(records[0].ProducedArtifacts) != 2 {
		t.Fatalf("expected both outputs recorded, got %#v", records[0].ProducedArtifacts)
	}
}

func TestSecondRunSkipsEverything(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()
	ctx := context.Background()

	if result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{}); result.Failed() {
		t.Fatalf("first run failed: %v", result.Err)
	}

	before := map[string]string{}
	for _, name := range []string{artifacts.FeedEntry, artifacts.OriginalAudio, artifacts.NormalizedAudio, artifacts.RawTranscript, artifacts.Subtitles} {
		artifact, err := h.store.PublishedArtifact(ctx, episodeID, name)
		if err != nil || artifact == nil {
			t.Fatalf("PublishedArtifact(%s): %v (%#v)", name, err, artifact)
		}
		before[name] = artifact.Checksum
	}
	callsBefore := map[string]int{}
	for _, f := range fakes {
		callsBefore[f.name] = f.calls
	}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if result.Failed() {
		t.Fatalf("second run failed: %v", result.Err)
	}
	for _, sr := range result.Steps {
		if sr.Outcome != OutcomeSkipped {
			t.Fatalf("expected skip on second run, got %#v", sr)
		}
	}
	for _, f := range fakes {
		if f.calls != callsBefore[f.name] {
			t.Fatalf("step %s re-ran on second pass", f.name)
		}
	}
	for name, checksum := range before {
		artifact, err := h.store.PublishedArtifact(ctx, episodeID, name)
		if err != nil || artifact == nil {
			t.Fatalf("PublishedArtifact(%s): %v", name, err)
		}
		if artifact.Checksum != checksum {
			t.Fatalf("checksum of %s changed across idempotent runs", name)
		}
	}

	records := finishedRecords(t, h.store, "download")
	if len(records) != 2 {
		t.Fatalf("expected success then skip for download, got %#v", records)
	}
	if records[1].Status != store.StepSkipped || records[1].Attempt != 0 {
		t.Fatalf("unexpected skip record: %#v", records[1])
	}
}

func TestMissingInputFailsWithoutInvokingStep(t *testing.T) {
	h := newHarness(t)

	download := &fakeStep{name: "download", inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.OriginalAudio}}
	download.run = h.writer(download, "audio")

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), []Step{download}, RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(result.Err, services.ErrMissingInput) {
		t.Fatalf("expected missing input error, got %v", result.Err)
	}
	if download.calls != 0 {
		t.Fatalf("step must not run with missing inputs, ran %d times", download.calls)
	}

	records := finishedRecords(t, h.store, "download")
	if len(records) != 1 || records[0].Status != store.StepFailed {
		t.Fatalf("expected one failure record, got %#v", records)
	}
	if records[0].ErrorKind != string(services.KindMissingInput) {
		t.Fatalf("expected missing_input kind, got %q", records[0].ErrorKind)
	}
}

func TestMissingInputDetectedBeforeSkip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fetch := &fakeStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	fetch.run = h.writer(fetch, "feed")
	download := &fakeStep{name: "download", inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.OriginalAudio}}
	download.run = h.writer(download, "audio")

	if result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), []Step{fetch, download}, RunOptions{}); result.Failed() {
		t.Fatalf("first run failed: %v", result.Err)
	}
	callsBefore := download.calls

	// The feed entry disappears from disk while download's outputs stay
	// valid. A re-run must refuse, not silently skip.
	feedPath, err := h.arts.Path(episodeID, artifacts.FeedEntry)
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if err := os.Remove(feedPath); err != nil {
		t.Fatalf("remove feed entry: %v", err)
	}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), []Step{download}, RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(result.Err, services.ErrMissingInput) {
		t.Fatalf("expected missing input error, got %v", result.Err)
	}
	if download.calls != callsBefore {
		t.Fatalf("download must not re-run, ran %d extra times", download.calls-callsBefore)
	}
	if result.Steps[0].Outcome != OutcomeFailed {
		t.Fatalf("expected failure, got %#v", result.Steps[0])
	}
}

func TestTransientRetryUntilThirdAttempt(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()

	download := fakes[1]
	write := download.run
	download.run = func(ctx context.Context, call int) error {
		if call <= 2 {
			return services.Wrap(services.ErrTransient, "download", "fetch enclosure", "connection reset", nil)
		}
		return write(ctx, call)
	}

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	if download.calls != 3 {
		t.Fatalf("expected 3 download attempts, got %d", download.calls)
	}
	if result.Steps[1].Attempts != 3 || result.Steps[1].Outcome != OutcomeSucceeded {
		t.Fatalf("unexpected download result: %#v", result.Steps[1])
	}

	records := finishedRecords(t, h.store, "download")
	if len(records) != 3 {
		t.Fatalf("expected 3 finished records, got %d", len(records))
	}
	for i := 0; i < 2; i++ {
		if records[i].Status != store.StepFailed || records[i].ErrorKind != string(services.KindTransient) {
			t.Fatalf("expected transient failure record %d, got %#v", i, records[i])
		}
		if records[i].Attempt != i+1 {
			t.Fatalf("expected attempt %d, got %d", i+1, records[i].Attempt)
		}
	}
	if records[2].Status != store.StepSucceeded || records[2].Attempt != 3 {
		t.Fatalf("expected success on attempt 3, got %#v", records[2])
	}

	// Backoff doubles from the configured initial delay.
	if len(h.sleeps) != 2 {
		t.Fatalf("expected 2 retry delays, got %v", h.sleeps)
	}
	if h.sleeps[0] != 10*time.Millisecond || h.sleeps[1] != 20*time.Millisecond {
		t.Fatalf("unexpected retry delays: %v", h.sleeps)
	}

	// Later steps ran exactly once.
	if fakes[2].calls != 1 || fakes[3].calls != 1 {
		t.Fatalf("expected convert and transcribe to run once, got %d and %d", fakes[2].calls, fakes[3].calls)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()

	download := fakes[1]
	download.run = func(context.Context, int) error {
		return services.Wrap(services.ErrTransient, "download", "fetch enclosure", "connection reset", nil)
	}

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(result.Err, services.ErrTransient) {
		t.Fatalf("expected transient error surfaced, got %v", result.Err)
	}
	if download.calls != 3 {
		t.Fatalf("expected attempt budget of 3, got %d", download.calls)
	}
	if fakes[2].calls != 0 || fakes[3].calls != 0 {
		t.Fatal("steps after the failed step must not run")
	}

	records := finishedRecords(t, h.store, "download")
	if len(records) != 3 {
		t.Fatalf("expected 3 failure records, got %d", len(records))
	}
	for _, record := range records {
		if record.Status != store.StepFailed {
			t.Fatalf("expected failure record, got %#v", record)
		}
	}
}

func TestPermanentFailureHaltsImmediately(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()

	convert := fakes[2]
	convert.run = func(context.Context, int) error {
		return services.Wrap(services.ErrPermanent, "convert", "probe", "unsupported codec", nil)
	}

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if convert.calls != 1 {
		t.Fatalf("permanent failures must not retry, got %d attempts", convert.calls)
	}
	if len(h.sleeps) != 0 {
		t.Fatalf("expected no retry delays, got %v", h.sleeps)
	}
	if fakes[3].calls != 0 {
		t.Fatal("transcribe must not run after convert halts")
	}
}

func TestUntypedErrorTreatedAsPermanent(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()

	download := fakes[1]
	download.run = func(context.Context, int) error {
		return errors.New("disk exploded")
	}

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if download.calls != 1 {
		t.Fatalf("untyped errors must not retry, got %d attempts", download.calls)
	}
	records := finishedRecords(t, h.store, "download")
	if len(records) != 1 || records[0].ErrorKind != string(services.KindPermanent) {
		t.Fatalf("expected one permanent failure record, got %#v", records)
	}
}

func TestMissingDeclaredOutputIsPermanent(t *testing.T) {
	h := newHarness(t)

	fetch := &fakeStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	fetch.run = func(context.Context, int) error {
		return nil // claims success, writes nothing
	}

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), []Step{fetch}, RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if !errors.Is(result.Err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", result.Err)
	}
	if fetch.calls != 1 {
		t.Fatalf("contract violations must not retry, got %d attempts", fetch.calls)
	}

	records := finishedRecords(t, h.store, "fetch")
	if len(records) != 1 || records[0].Status != store.StepFailed {
		t.Fatalf("expected one failure record, got %#v", records)
	}
	if records[0].ErrorKind != string(services.KindPermanent) {
		t.Fatalf("expected permanent kind, got %q", records[0].ErrorKind)
	}
}

func TestOptionalStepFailureContinues(t *testing.T) {
	h := newHarness(t)

	fetch := &fakeStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	fetch.run = h.writer(fetch, "feed")
	dialect := &fakeStep{name: "dialect_card", optional: true, inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.DialectCard}}
	dialect.run = func(context.Context, int) error {
		return services.Wrap(services.ErrPermanent, "dialect_card", "llm", "model rejected prompt", nil)
	}
	download := &fakeStep{name: "download", inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.OriginalAudio}}
	download.run = h.writer(download, "audio")

	result := h.runner.RunEpisode(context.Background(), mustGetEpisode(t, h.store), []Step{fetch, dialect, download}, RunOptions{})
	if result.Failed() {
		t.Fatalf("optional failure must not halt the run: %v", result.Err)
	}
	if result.Steps[1].Outcome != OutcomeFailed {
		t.Fatalf("expected optional step recorded as failed, got %#v", result.Steps[1])
	}
	if download.calls != 1 {
		t.Fatal("expected pipeline to continue past optional failure")
	}
}

func TestForcedRunReexecutes(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()
	ctx := context.Background()

	if result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{}); result.Failed() {
		t.Fatalf("first run failed: %v", result.Err)
	}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{Force: true})
	if result.Failed() {
		t.Fatalf("forced run failed: %v", result.Err)
	}
	for i, sr := range result.Steps {
		if sr.Outcome != OutcomeSucceeded {
			t.Fatalf("expected forced re-run of step %d, got %#v", i, sr)
		}
	}
	for _, f := range fakes {
		if f.calls != 2 {
			t.Fatalf("expected %s to run twice, ran %d times", f.name, f.calls)
		}
	}
}

func TestForceSingleStep(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()
	ctx := context.Background()

	if result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{}); result.Failed() {
		t.Fatalf("first run failed: %v", result.Err)
	}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{ForceSteps: []string{"convert"}})
	if result.Failed() {
		t.Fatalf("selective run failed: %v", result.Err)
	}
	if fakes[0].calls != 1 || fakes[1].calls != 1 || fakes[3].calls != 1 {
		t.Fatal("unforced steps must skip")
	}
	if fakes[2].calls != 2 {
		t.Fatalf("expected convert re-run, ran %d times", fakes[2].calls)
	}
}

func TestCancellationRecordsFailureAndHalts(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	fetch := &fakeStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	fetch.run = h.writer(fetch, "feed")
	download := &fakeStep{name: "download", inputs: []string{artifacts.FeedEntry}, outputs: []string{artifacts.OriginalAudio}}
	download.run = func(runCtx context.Context, _ int) error {
		cancel()
		return runCtx.Err()
	}
	convert := &fakeStep{name: "convert", inputs: []string{artifacts.OriginalAudio}, outputs: []string{artifacts.NormalizedAudio}}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), []Step{fetch, download, convert}, RunOptions{})
	if !result.Failed() {
		t.Fatal("expected run to fail on cancellation")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", result.Err)
	}
	if download.calls != 1 {
		t.Fatalf("canceled step must not retry, got %d attempts", download.calls)
	}
	if convert.calls != 0 {
		t.Fatal("steps after cancellation must not run")
	}

	// The failure record lands despite the canceled context.
	records := finishedRecords(t, h.store, "download")
	if len(records) != 1 || records[0].Status != store.StepFailed {
		t.Fatalf("expected one failure record, got %#v", records)
	}
	if records[0].ErrorKind != string(services.KindTransient) {
		t.Fatalf("expected transient kind for cancellation, got %q", records[0].ErrorKind)
	}

	// No artifact row or file was left behind.
	row, err := h.store.GetArtifact(context.Background(), episodeID, artifacts.OriginalAudio)
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expected no artifact after cancellation, got %#v", row)
	}
}

func TestResumeAfterFailure(t *testing.T) {
	h := newHarness(t)
	fakes := h.standardSteps()
	ctx := context.Background()

	download := fakes[1]
	write := download.run
	broken := true
	download.run = func(runCtx context.Context, call int) error {
		if broken {
			return services.Wrap(services.ErrPermanent, "download", "fetch enclosure", "404 gone", nil)
		}
		return write(runCtx, call)
	}

	result := h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if !result.Failed() {
		t.Fatal("expected first run to fail")
	}
	if fakes[0].calls != 1 {
		t.Fatal("fetch should have run once")
	}

	broken = false
	result = h.runner.RunEpisode(ctx, mustGetEpisode(t, h.store), asSteps(fakes), RunOptions{})
	if result.Failed() {
		t.Fatalf("resumed run failed: %v", result.Err)
	}
	if result.Steps[0].Outcome != OutcomeSkipped {
		t.Fatalf("expected fetch skipped on resume, got %#v", result.Steps[0])
	}
	if fakes[0].calls != 1 {
		t.Fatalf("fetch must not re-run on resume, ran %d times", fakes[0].calls)
	}
	for _, sr := range result.Steps[1:] {
		if sr.Outcome != OutcomeSucceeded {
			t.Fatalf("expected remaining steps to succeed, got %#v", sr)
		}
	}
}
