package whisper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/testsupport"
)

const transcriptJSON = `{
  "segments": [
    {"text": " Dia dhaoibh ar maidin.", "start": 0.031, "end": 2.5,
     "words": [{"word": "Dia", "start": 0.031, "end": 0.4}]},
    {"text": "Seo iad barrscéalta na maidine.", "start": 2.9, "end": 6.12}
  ],
  "language": "ga"
}`

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(testsupport.NewConfig(t), logging.NewNop())
}

func writeTranscript(t *testing.T, outputDir, source, payload string) func(ctx context.Context, name string, args ...string) error {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) error {
		base := filepath.Base(source)
		jsonPath := filepath.Join(outputDir, base[:len(base)-len(filepath.Ext(base))]+".json")
		return os.WriteFile(jsonPath, []byte(payload), 0o644)
	}
}

func TestTranscribeParsesOutput(t *testing.T) {
	service := newService(t)
	outputDir := t.TempDir()
	source := filepath.Join(t.TempDir(), "rnag_barrscealta_20251017_1100.wav")

	var gotName string
	var gotArgs []string
	writer := writeTranscript(t, outputDir, source, transcriptJSON)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = append([]string(nil), args...)
		return writer(ctx, name, args...)
	})

	result, err := service.Transcribe(context.Background(), source, outputDir, "gle")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if gotName != UVXCommand {
		t.Errorf("command = %q, want %q", gotName, UVXCommand)
	}
	assertArgValue(t, gotArgs, "--model", "large-v3")
	assertArgValue(t, gotArgs, "--language", "ga")
	assertArgValue(t, gotArgs, "--device", CPUDevice)
	assertArgValue(t, gotArgs, "--compute_type", CPUComputeType)
	assertArgValue(t, gotArgs, "--output_format", OutputFormat)
	if findArg(gotArgs, source) == -1 {
		t.Errorf("expected args to include source path, got %v", gotArgs)
	}

	if result.Language != "ga" {
		t.Errorf("Language = %q, want %q", result.Language, "ga")
	}
	if len(result.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(result.Segments))
	}
	if want := "Dia dhaoibh ar maidin. Seo iad barrscéalta na maidine."; result.Text() != want {
		t.Errorf("Text() = %q, want %q", result.Text(), want)
	}
	if result.JSONPath == "" {
		t.Error("JSONPath is empty, want path to whisperx output")
	}
}

func TestTranscribeCUDAArgs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Whisper.CUDAEnabled = true
	service := NewService(cfg, logging.NewNop())

	outputDir := t.TempDir()
	source := filepath.Join(outputDir, "episode.wav")

	var gotArgs []string
	writer := writeTranscript(t, outputDir, source, transcriptJSON)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = append([]string(nil), args...)
		return writer(ctx, name, args...)
	})

	if _, err := service.Transcribe(context.Background(), source, outputDir, "ga"); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	assertArgValue(t, gotArgs, "--device", CUDADevice)
	assertArgValue(t, gotArgs, "--index-url", CUDAIndexURL)
	if findArg(gotArgs, "--compute_type") != -1 {
		t.Errorf("CUDA run should not force a compute type, got %v", gotArgs)
	}
}

func TestTranscribeRunFailureIsTransient(t *testing.T) {
	service := newService(t)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("uvx: failed to resolve whisperx")
	})

	_, err := service.Transcribe(context.Background(), "/audio/episode.wav", t.TempDir(), "ga")
	if err == nil {
		t.Fatal("expected transcription failure")
	}
	if kind := services.Kind(err); kind != services.KindTransient {
		t.Fatalf("Kind() = %q, want %q", kind, services.KindTransient)
	}
}

func TestTranscribeMissingJSONIsPermanent(t *testing.T) {
	service := newService(t)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return nil
	})

	_, err := service.Transcribe(context.Background(), "/audio/episode.wav", t.TempDir(), "ga")
	if err == nil {
		t.Fatal("expected error when whisperx writes no JSON")
	}
	if kind := services.Kind(err); kind != services.KindPermanent {
		t.Fatalf("Kind() = %q, want %q", kind, services.KindPermanent)
	}
}

func TestTranscribeEmptySegmentsIsPermanent(t *testing.T) {
	service := newService(t)
	outputDir := t.TempDir()
	source := filepath.Join(outputDir, "episode.wav")
	service.WithCommandRunner(writeTranscript(t, outputDir, source, `{"segments": [], "language": "ga"}`))

	_, err := service.Transcribe(context.Background(), source, outputDir, "ga")
	if err == nil {
		t.Fatal("expected error for empty segment list")
	}
	if kind := services.Kind(err); kind != services.KindPermanent {
		t.Fatalf("Kind() = %q, want %q", kind, services.KindPermanent)
	}
}

func TestTranscribeRequiresSource(t *testing.T) {
	service := newService(t)
	if _, err := service.Transcribe(context.Background(), "  ", t.TempDir(), "ga"); err == nil {
		t.Fatal("expected error for blank source")
	}
}

func TestTranscribeCancelledContextPassesThrough(t *testing.T) {
	service := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		cancel()
		return ctx.Err()
	})

	_, err := service.Transcribe(ctx, "/audio/episode.wav", t.TempDir(), "ga")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func assertArgValue(t *testing.T, args []string, flag, want string) {
	t.Helper()
	idx := findArg(args, flag)
	if idx == -1 {
		t.Fatalf("expected args to include %s, got %v", flag, args)
	}
	if idx+1 >= len(args) || args[idx+1] != want {
		t.Fatalf("expected %s %s in args %v", flag, want, args)
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
