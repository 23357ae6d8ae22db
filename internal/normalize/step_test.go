package normalize_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"teanga/internal/artifacts"
	"teanga/internal/normalize"
	"teanga/internal/pipeline"
	"teanga/internal/services"
	"teanga/internal/services/whisper"
	"teanga/internal/store"
	"teanga/internal/testsupport"
)

const episodeID = "rnag_barrscealta_20251017_1100"

type stubCompleter struct {
	calls     int
	rewrite   func(texts []string) []string
	err       error
	lastUser  string
	responses []string
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	s.lastUser = userPrompt
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) > 0 {
		resp := s.responses[0]
		s.responses = s.responses[1:]
		return resp, nil
	}
	var texts []string
	if err := json.Unmarshal([]byte(userPrompt), &texts); err != nil {
		return "", fmt.Errorf("stub: decode prompt: %w", err)
	}
	if s.rewrite != nil {
		texts = s.rewrite(texts)
	}
	payload, err := json.Marshal(map[string]any{"segments": texts})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

type seedTranscript struct {
	arts   *artifacts.Store
	result *whisper.Result
}

func (s seedTranscript) Name() string              { return "transcribe" }
func (s seedTranscript) RequiredInputs() []string  { return nil }
func (s seedTranscript) DeclaredOutputs() []string { return []string{artifacts.RawTranscript} }

func (s seedTranscript) Run(ctx context.Context, episode *store.Episode) error {
	_, err := s.arts.Write(ctx, episode.ID, artifacts.RawTranscript, "transcribe", func(w io.Writer) error {
		return json.NewEncoder(w).Encode(s.result)
	})
	return err
}

func run(t *testing.T, completer *stubCompleter, result *whisper.Result) (*pipeline.Result, *artifacts.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStepAttempts(1))
	st := testsupport.MustOpenStore(t, cfg)
	arts := artifacts.NewStore(cfg, st, nil)
	runner := pipeline.NewRunner(cfg, st, arts, nil)

	episode := testsupport.NewEpisode(t, st, episodeID)
	steps := []pipeline.Step{
		seedTranscript{arts: arts, result: result},
		normalize.New(completer, arts, nil),
	}
	return runner.RunEpisode(context.Background(), episode, steps, pipeline.RunOptions{}), arts
}

func rawResult() *whisper.Result {
	return &whisper.Result{
		Language: "ga",
		Segments: []whisper.Segment{
			{Text: " dia dhaoibh ar maidin ", Start: 0.031, End: 2.5},
			{Text: "seo iad barrscealta na maidine", Start: 2.9, End: 6.12},
		},
	}
}

func TestRunWritesNormalizedDocument(t *testing.T) {
	completer := &stubCompleter{rewrite: func(texts []string) []string {
		out := make([]string, len(texts))
		for i, text := range texts {
			out[i] = strings.ReplaceAll(text, "barrscealta", "barrscéalta")
		}
		return out
	}}

	result, arts := run(t, completer, rawResult())
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	if completer.calls != 1 {
		t.Fatalf("expected one LLM call for two segments, got %d", completer.calls)
	}

	doc, err := normalize.ReadDocument(context.Background(), arts, episodeID)
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if doc.Language != "ga" || len(doc.Segments) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if !strings.Contains(doc.Text, "barrscéalta") {
		t.Errorf("document text = %q", doc.Text)
	}
	if doc.Segments[1].Start != 2.9 || doc.Segments[1].End != 6.12 {
		t.Errorf("segment timing lost: %+v", doc.Segments[1])
	}
}

func TestRunBlankModelSegmentFallsBackToRaw(t *testing.T) {
	completer := &stubCompleter{rewrite: func(texts []string) []string {
		out := make([]string, len(texts))
		copy(out, texts)
		out[0] = "  "
		return out
	}}

	result, arts := run(t, completer, rawResult())
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	doc, err := normalize.ReadDocument(context.Background(), arts, episodeID)
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if doc.Segments[0].Text != "dia dhaoibh ar maidin" {
		t.Errorf("segment 0 = %q, want raw fallback", doc.Segments[0].Text)
	}
}

func TestRunSegmentCountMismatchIsTransient(t *testing.T) {
	completer := &stubCompleter{responses: []string{`{"segments":["only one"]}`}}

	result, arts := run(t, completer, rawResult())
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if kind := services.Kind(result.Err); kind != services.KindTransient {
		t.Fatalf("Kind() = %q, want %q", kind, services.KindTransient)
	}
	ok, err := arts.Exists(context.Background(), episodeID, artifacts.NormalizedTranscript)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("failed normalization must not publish normalized_transcript")
	}
}

func TestRunClassifiesCompleterErrors(t *testing.T) {
	completer := &stubCompleter{err: errors.New("connection reset")}

	result, _ := run(t, completer, rawResult())
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	// Untyped client errors travel through llm.ClassifyError; a bare error
	// without an HTTP status classifies as transient via url semantics or
	// permanent otherwise. Either way it must carry a services kind.
	if kind := services.Kind(result.Err); kind == services.KindNone {
		t.Fatalf("error has no kind: %v", result.Err)
	}
}

func TestStepDeclaresNonDeterminism(t *testing.T) {
	step := normalize.New(&stubCompleter{}, nil, nil)
	if !pipeline.IsNonDeterministic(step) {
		t.Fatal("normalize step must report non-deterministic output")
	}
}
