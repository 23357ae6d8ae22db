package workflow

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/pipeline"
	"teanga/internal/services"
	"teanga/internal/store"
	"teanga/internal/testsupport"
)

const episodeID = "rnag_barrscealta_20251017_1100"

type stubStep struct {
	name    string
	outputs []string

	mu    sync.Mutex
	calls int
	run   func(ctx context.Context) error
}

func (s *stubStep) Name() string              { return s.name }
func (s *stubStep) RequiredInputs() []string  { return nil }
func (s *stubStep) DeclaredOutputs() []string { return s.outputs }

func (s *stubStep) Run(ctx context.Context, _ *store.Episode) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run(ctx)
}

func (s *stubStep) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	failedAt  []string
	scans     []int
}

func (n *recordingNotifier) NotifyEpisodeDiscovered(context.Context, string, string) error {
	return nil
}

func (n *recordingNotifier) NotifyEpisodeCompleted(_ context.Context, episodeID, _ string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, episodeID)
	return nil
}

func (n *recordingNotifier) NotifyEpisodeFailed(_ context.Context, episodeID, step string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, episodeID)
	n.failedAt = append(n.failedAt, step)
	return nil
}

func (n *recordingNotifier) NotifyScanCompleted(_ context.Context, discovered int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scans = append(n.scans, discovered)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func (n *recordingNotifier) snapshot() (completed, failed, failedAt []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.completed...),
		append([]string(nil), n.failed...),
		append([]string(nil), n.failedAt...)
}

type managerHarness struct {
	cfg      *config.Config
	store    *store.Store
	arts     *artifacts.Store
	notifier *recordingNotifier
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.FeedScanInterval = 3600
	cfg.Workflow.HeartbeatInterval = 0
	cfg.Workflow.StepAttempts = 1

	st := testsupport.MustOpenStore(t, cfg)
	return &managerHarness{
		cfg:      cfg,
		store:    st,
		arts:     artifacts.NewStore(cfg, st, nil),
		notifier: &recordingNotifier{},
	}
}

func (h *managerHarness) manager(t *testing.T, steps ...pipeline.Step) *Manager {
	t.Helper()
	m := NewManagerWithNotifier(h.cfg, h.store, h.arts, steps, nil, h.notifier)
	t.Cleanup(m.Stop)
	return m
}

// fetchStub returns a step that writes the feed entry artifact.
func (h *managerHarness) fetchStub() *stubStep {
	step := &stubStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	step.run = func(ctx context.Context) error {
		_, err := h.arts.Write(ctx, episodeID, artifacts.FeedEntry, step.name, func(w io.Writer) error {
			_, err := w.Write([]byte(`{"title":"Barrscéalta"}`))
			return err
		})
		return err
	}
	return step
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func episodeStatus(t *testing.T, st *store.Store, id string) store.Status {
	t.Helper()
	episode, err := st.GetByID(context.Background(), id)
	if err != nil || episode == nil {
		t.Fatalf("GetByID: %v (%#v)", err, episode)
	}
	return episode.Status
}

func TestManagerProcessesPendingEpisode(t *testing.T) {
	h := newManagerHarness(t)
	testsupport.NewEpisode(t, h.store, episodeID)

	m := h.manager(t, h.fetchStub())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return episodeStatus(t, h.store, episodeID) == store.StatusCompleted
	})
	m.Stop()

	completed, failed, _ := h.notifier.snapshot()
	if len(completed) != 1 || completed[0] != episodeID {
		t.Fatalf("expected completion notification for %s, got %v", episodeID, completed)
	}
	if len(failed) != 0 {
		t.Fatalf("unexpected failure notifications: %v", failed)
	}

	ok, err := h.arts.Exists(context.Background(), episodeID, artifacts.FeedEntry)
	if err != nil || !ok {
		t.Fatalf("expected published feed entry, got ok=%v err=%v", ok, err)
	}
}

func TestManagerMarksFailureAndNotifies(t *testing.T) {
	h := newManagerHarness(t)
	testsupport.NewEpisode(t, h.store, episodeID)

	broken := &stubStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	broken.run = func(context.Context) error {
		return services.Wrap(services.ErrPermanent, "fetch", "parse feed", "episode missing from feed", nil)
	}

	m := h.manager(t, broken)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		return episodeStatus(t, h.store, episodeID) == store.StatusFailed
	})
	m.Stop()

	_, failed, failedAt := h.notifier.snapshot()
	if len(failed) != 1 || failed[0] != episodeID {
		t.Fatalf("expected failure notification for %s, got %v", episodeID, failed)
	}
	if failedAt[0] != "fetch" {
		t.Fatalf("expected failing step fetch, got %q", failedAt[0])
	}

	episode, err := h.store.GetByID(context.Background(), episodeID)
	if err != nil || episode == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if episode.ErrorMessage == "" {
		t.Fatal("expected error message recorded on episode")
	}
}

func TestStopReleasesInterruptedEpisode(t *testing.T) {
	h := newManagerHarness(t)
	testsupport.NewEpisode(t, h.store, episodeID)

	started := make(chan struct{})
	var once sync.Once
	blocking := &stubStep{name: "fetch", outputs: []string{artifacts.FeedEntry}}
	blocking.run = func(ctx context.Context) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}

	m := h.manager(t, blocking)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	m.Stop()

	episode, err := h.store.GetByID(context.Background(), episodeID)
	if err != nil || episode == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if episode.Status != store.StatusPending {
		t.Fatalf("expected interrupted episode released to pending, got %s", episode.Status)
	}
	if episode.ErrorMessage != store.DaemonStopReason {
		t.Fatalf("expected daemon stop reason, got %q", episode.ErrorMessage)
	}

	completed, failed, _ := h.notifier.snapshot()
	if len(completed) != 0 || len(failed) != 0 {
		t.Fatalf("cancellation must not notify, got completed=%v failed=%v", completed, failed)
	}
}

func TestStartSweepsStalePartials(t *testing.T) {
	h := newManagerHarness(t)
	testsupport.NewEpisode(t, h.store, episodeID)

	mediaDir := filepath.Join(h.arts.EpisodeDir(episodeID), "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stale := filepath.Join(mediaDir, "original_audio.mp3.partial.abc123")
	if err := os.WriteFile(stale, []byte("half-written"), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	m := h.manager(t, h.fetchStub())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	waitFor(t, 5*time.Second, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	})
}

func TestManagerStatus(t *testing.T) {
	h := newManagerHarness(t)
	testsupport.NewEpisode(t, h.store, episodeID)

	m := h.manager(t, h.fetchStub())
	summary := m.Status(context.Background())
	if summary.Running {
		t.Fatal("manager must report not running before Start")
	}
	if summary.QueueStats[store.StatusPending] != 1 {
		t.Fatalf("expected one pending episode, got %#v", summary.QueueStats)
	}
	if len(summary.StepHealth) != 1 || summary.StepHealth[0].Name != "fetch" {
		t.Fatalf("unexpected step health: %#v", summary.StepHealth)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Status(context.Background()).Running {
		t.Fatal("manager must report running after Start")
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	m.Stop()
	if m.Status(context.Background()).Running {
		t.Fatal("manager must report not running after Stop")
	}
}
