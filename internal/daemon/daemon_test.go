package daemon

import (
	"context"
	"testing"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/pipeline"
	"teanga/internal/store"
	"teanga/internal/testsupport"
	"teanga/internal/workflow"
)

type idleStep struct{}

func (idleStep) Name() string                              { return "fetch" }
func (idleStep) RequiredInputs() []string                  { return nil }
func (idleStep) DeclaredOutputs() []string                 { return nil }
func (idleStep) Run(context.Context, *store.Episode) error { return nil }

func newDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	arts := artifacts.NewStore(cfg, st, nil)
	manager := workflow.NewManager(cfg, st, arts, []pipeline.Step{idleStep{}}, nil)
	d, err := New(cfg, st, logging.NewNop(), manager)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second instance to be refused while lock is held")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("expected start after lock release, got %v", err)
	}
}

func TestDaemonStatusReportsPaths(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon must report not running before Start")
	}
	if status.DatabasePath == "" || status.LockFilePath == "" {
		t.Fatalf("expected paths populated, got %#v", status)
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status = d.Status(context.Background())
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running status, got %#v", status)
	}
	if status.PID <= 0 {
		t.Fatalf("expected PID populated, got %d", status.PID)
	}
}
