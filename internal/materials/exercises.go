package materials

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"teanga/internal/artifacts"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/services/llm"
	"teanga/internal/store"
)

// ExercisesStepName identifies the exercises step in history and logs.
const ExercisesStepName = "exercises"

const exercisesSystemPrompt = `You are an Irish (Gaeilge) language teacher writing practice exercises for intermediate learners from a radio transcript.
Produce 6-10 cloze exercises (one word blanked from a transcript sentence) and 4-6 comprehension questions answerable from the transcript.
Respond with JSON only:
{"cloze": [{"sentence": "... ___ ...", "answer": "...", "hint": "..."}], "comprehension": [{"question": "...", "answer": "..."}]}
Questions and answers are in Irish; hint is a short English nudge (empty string when none).`

// Cloze is one fill-in-the-blank exercise.
type Cloze struct {
	Sentence string `json:"sentence"`
	Answer   string `json:"answer"`
	Hint     string `json:"hint,omitempty"`
}

// Comprehension is one question answerable from the transcript.
type Comprehension struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExerciseDocument is the exercises artifact payload.
type ExerciseDocument struct {
	EpisodeID     string          `json:"episode_id"`
	Cloze         []Cloze         `json:"cloze"`
	Comprehension []Comprehension `json:"comprehension"`
}

// ExercisesStep produces the exercises artifact from normalized_transcript.
type ExercisesStep struct {
	completer Completer
	arts      *artifacts.Store
	logger    *slog.Logger
}

// NewExercises builds the exercises step.
func NewExercises(completer Completer, arts *artifacts.Store, logger *slog.Logger) *ExercisesStep {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExercisesStep{
		completer: completer,
		arts:      arts,
		logger:    logging.NewComponentLogger(logger, ExercisesStepName),
	}
}

func (s *ExercisesStep) Name() string { return ExercisesStepName }

func (s *ExercisesStep) RequiredInputs() []string {
	return []string{artifacts.NormalizedTranscript}
}

func (s *ExercisesStep) DeclaredOutputs() []string { return []string{artifacts.Exercises} }

func (s *ExercisesStep) NonDeterministic() bool { return true }

func (s *ExercisesStep) Run(ctx context.Context, episode *store.Episode) error {
	prompt, err := transcriptPrompt(ctx, s.arts, episode.ID, ExercisesStepName)
	if err != nil {
		return err
	}

	content, err := s.completer.CompleteJSON(ctx, exercisesSystemPrompt, prompt)
	if err != nil {
		return llm.ClassifyError(ExercisesStepName, err)
	}

	var doc ExerciseDocument
	if err := llm.DecodeLLMJSON(content, &doc); err != nil {
		return services.Wrap(services.ErrTransient, ExercisesStepName, "decode response", "", err)
	}
	if len(doc.Cloze) == 0 && len(doc.Comprehension) == 0 {
		return services.Wrap(services.ErrTransient, ExercisesStepName, "decode response",
			"model returned no exercises", nil)
	}
	doc.EpisodeID = episode.ID

	s.logger.Info("exercises generated",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.Int("cloze", len(doc.Cloze)),
		logging.Int("comprehension", len(doc.Comprehension)))

	_, err = s.arts.Write(ctx, episode.ID, artifacts.Exercises, ExercisesStepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	})
	return err
}
