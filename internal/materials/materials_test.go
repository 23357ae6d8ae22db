package materials_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"teanga/internal/artifacts"
	"teanga/internal/materials"
	"teanga/internal/normalize"
	"teanga/internal/pipeline"
	"teanga/internal/services"
	"teanga/internal/store"
	"teanga/internal/testsupport"
)

const episodeID = "rnag_barrscealta_20251017_1100"

type stubCompleter struct {
	calls    int
	response string
	err      error
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

type seedDocument struct {
	arts *artifacts.Store
}

func (s seedDocument) Name() string              { return "normalize" }
func (s seedDocument) RequiredInputs() []string  { return nil }
func (s seedDocument) DeclaredOutputs() []string { return []string{artifacts.NormalizedTranscript} }

func (s seedDocument) Run(ctx context.Context, episode *store.Episode) error {
	doc := normalize.Document{
		Language: "ga",
		Text:     "Tháinig an t-uachtarán abhaile inné agus labhair sé leis na meáin.",
		Segments: []normalize.Segment{
			{Start: 0, End: 4.2, Text: "Tháinig an t-uachtarán abhaile inné"},
			{Start: 4.4, End: 7.1, Text: "agus labhair sé leis na meáin."},
		},
	}
	_, err := s.arts.Write(ctx, episode.ID, artifacts.NormalizedTranscript, "normalize", func(w io.Writer) error {
		return json.NewEncoder(w).Encode(doc)
	})
	return err
}

type harness struct {
	store  *store.Store
	arts   *artifacts.Store
	runner *pipeline.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStepAttempts(1))
	st := testsupport.MustOpenStore(t, cfg)
	arts := artifacts.NewStore(cfg, st, nil)
	return &harness{store: st, arts: arts, runner: pipeline.NewRunner(cfg, st, arts, nil)}
}

func (h *harness) run(t *testing.T, step pipeline.Step) *pipeline.Result {
	t.Helper()
	episode := testsupport.NewEpisode(t, h.store, episodeID)
	steps := []pipeline.Step{seedDocument{arts: h.arts}, step}
	return h.runner.RunEpisode(context.Background(), episode, steps, pipeline.RunOptions{})
}

func TestGlossaryStepWritesGlosses(t *testing.T) {
	h := newHarness(t)
	completer := &stubCompleter{response: `{"glosses":[
		{"term":"na meáin","lemma":"meán","translation":"the media","note":"plural with article"},
		{"term":"t-uachtarán","lemma":"uachtarán","translation":"president","note":""}
	]}`}

	result := h.run(t, materials.NewGlossary(completer, h.arts, nil))
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	data, _, err := h.arts.ReadFile(context.Background(), episodeID, artifacts.Glosses)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var doc materials.GlossaryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode glosses: %v", err)
	}
	if doc.EpisodeID != episodeID || len(doc.Glosses) != 2 {
		t.Fatalf("unexpected glossary: %+v", doc)
	}
	if doc.Glosses[0].Lemma != "meán" {
		t.Errorf("lemma = %q", doc.Glosses[0].Lemma)
	}
}

func TestGlossaryEmptyResponseIsTransient(t *testing.T) {
	h := newHarness(t)
	completer := &stubCompleter{response: `{"glosses":[]}`}

	result := h.run(t, materials.NewGlossary(completer, h.arts, nil))
	if !result.Failed() {
		t.Fatal("expected run to fail")
	}
	if kind := services.Kind(result.Err); kind != services.KindTransient {
		t.Fatalf("Kind() = %q, want %q", kind, services.KindTransient)
	}
}

func TestExercisesStepWritesDocument(t *testing.T) {
	h := newHarness(t)
	completer := &stubCompleter{response: `{
		"cloze":[{"sentence":"Tháinig an ___ abhaile inné","answer":"t-uachtarán","hint":"head of state"}],
		"comprehension":[{"question":"Cathain a tháinig sé abhaile?","answer":"Inné."}]
	}`}

	result := h.run(t, materials.NewExercises(completer, h.arts, nil))
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	data, _, err := h.arts.ReadFile(context.Background(), episodeID, artifacts.Exercises)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var doc materials.ExerciseDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode exercises: %v", err)
	}
	if len(doc.Cloze) != 1 || len(doc.Comprehension) != 1 {
		t.Fatalf("unexpected exercises: %+v", doc)
	}
}

func TestDialectStepIsOptionalAndDoesNotHaltRun(t *testing.T) {
	h := newHarness(t)
	failing := materials.NewDialect(&stubCompleter{
		err: services.Wrap(services.ErrPermanent, materials.DialectStepName, "llm request", "content rejected", nil),
	}, h.arts, nil)
	if !pipeline.IsOptional(failing) {
		t.Fatal("dialect step must be optional")
	}
	if !pipeline.IsNonDeterministic(failing) {
		t.Fatal("dialect step must be non-deterministic")
	}

	result := h.run(t, failing)
	if result.Failed() {
		t.Fatalf("optional step failure must not halt the run: %v", result.Err)
	}
	last := result.Steps[len(result.Steps)-1]
	if last.Outcome != pipeline.OutcomeFailed {
		t.Fatalf("dialect outcome = %q, want failed", last.Outcome)
	}
}

func TestDialectStepWritesCard(t *testing.T) {
	h := newHarness(t)
	completer := &stubCompleter{response: `{
		"dialect":"Connacht","confidence":"medium",
		"features":[{"feature":"cha- negation absent","example":"ní raibh","standard_form":"ní raibh"}],
		"summary":"Forms are consistent with Connacht Irish."
	}`}

	result := h.run(t, materials.NewDialect(completer, h.arts, nil))
	if result.Failed() {
		t.Fatalf("run failed: %v", result.Err)
	}
	data, _, err := h.arts.ReadFile(context.Background(), episodeID, artifacts.DialectCard)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var card materials.DialectCard
	if err := json.Unmarshal(data, &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Dialect != "Connacht" || card.EpisodeID != episodeID {
		t.Fatalf("unexpected card: %+v", card)
	}
}
