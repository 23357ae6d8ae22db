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

// DialectStepName identifies the dialect analysis step in history and logs.
const DialectStepName = "dialect"

const dialectSystemPrompt = `You are a scholar of Irish (Gaeilge) dialectology analyzing a radio transcript.
Identify which dialect the speakers most likely use (Ulster, Connacht, or Munster Irish) and the transcript features supporting that call: vocabulary choices, verb forms, prepositional pronouns, and pronunciation artifacts visible in the text.
Respond with JSON only: {"dialect": "...", "confidence": "high|medium|low", "features": [{"feature": "...", "example": "...", "standard_form": "..."}], "summary": "..."}.
summary is 2-3 English sentences. When the transcript shows no clear dialect markers, use dialect "unclear" with confidence "low".`

// DialectFeature is one observed dialect marker.
type DialectFeature struct {
	Feature      string `json:"feature"`
	Example      string `json:"example"`
	StandardForm string `json:"standard_form,omitempty"`
}

// DialectCard is the dialect_card artifact payload.
type DialectCard struct {
	EpisodeID  string           `json:"episode_id"`
	Dialect    string           `json:"dialect"`
	Confidence string           `json:"confidence"`
	Features   []DialectFeature `json:"features"`
	Summary    string           `json:"summary"`
}

// DialectStep produces the dialect_card artifact. It is optional: a failure
// records history but never blocks an episode from completing.
type DialectStep struct {
	completer Completer
	arts      *artifacts.Store
	logger    *slog.Logger
}

// NewDialect builds the dialect analysis step.
func NewDialect(completer Completer, arts *artifacts.Store, logger *slog.Logger) *DialectStep {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DialectStep{
		completer: completer,
		arts:      arts,
		logger:    logging.NewComponentLogger(logger, DialectStepName),
	}
}

func (s *DialectStep) Name() string { return DialectStepName }

func (s *DialectStep) RequiredInputs() []string {
	return []string{artifacts.NormalizedTranscript}
}

func (s *DialectStep) DeclaredOutputs() []string { return []string{artifacts.DialectCard} }

func (s *DialectStep) NonDeterministic() bool { return true }

func (s *DialectStep) Optional() bool { return true }

func (s *DialectStep) Run(ctx context.Context, episode *store.Episode) error {
	prompt, err := transcriptPrompt(ctx, s.arts, episode.ID, DialectStepName)
	if err != nil {
		return err
	}

	content, err := s.completer.CompleteJSON(ctx, dialectSystemPrompt, prompt)
	if err != nil {
		return llm.ClassifyError(DialectStepName, err)
	}

	var card DialectCard
	if err := llm.DecodeLLMJSON(content, &card); err != nil {
		return services.Wrap(services.ErrTransient, DialectStepName, "decode response", "", err)
	}
	if card.Dialect == "" {
		return services.Wrap(services.ErrTransient, DialectStepName, "decode response",
			"model returned no dialect call", nil)
	}
	card.EpisodeID = episode.ID

	s.logger.Info("dialect card generated",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.String("dialect", card.Dialect),
		logging.String("confidence", card.Confidence))

	_, err = s.arts.Write(ctx, episode.ID, artifacts.DialectCard, DialectStepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(card)
	})
	return err
}
