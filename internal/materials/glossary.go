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

// GlossaryStepName identifies the glossary step in history and logs.
const GlossaryStepName = "glossary"

const glossarySystemPrompt = `You are an Irish (Gaeilge) language teacher preparing vocabulary notes for intermediate learners from a radio transcript.
Select the 20-40 words and idioms a learner is least likely to know, favoring dialect forms and broadcast vocabulary over basic words.
Respond with JSON only: {"glosses": [{"term": "...", "lemma": "...", "translation": "...", "note": "..."}]}.
term is the form as it appears, lemma the dictionary headword, translation a concise English gloss, note an optional usage or mutation remark (empty string when none).`

// Gloss is one vocabulary entry.
type Gloss struct {
	Term        string `json:"term"`
	Lemma       string `json:"lemma"`
	Translation string `json:"translation"`
	Note        string `json:"note,omitempty"`
}

// GlossaryDocument is the glosses artifact payload.
type GlossaryDocument struct {
	EpisodeID string  `json:"episode_id"`
	Glosses   []Gloss `json:"glosses"`
}

// GlossaryStep produces the glosses artifact from normalized_transcript.
type GlossaryStep struct {
	completer Completer
	arts      *artifacts.Store
	logger    *slog.Logger
}

// NewGlossary builds the glossary step.
func NewGlossary(completer Completer, arts *artifacts.Store, logger *slog.Logger) *GlossaryStep {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GlossaryStep{
		completer: completer,
		arts:      arts,
		logger:    logging.NewComponentLogger(logger, GlossaryStepName),
	}
}

func (s *GlossaryStep) Name() string { return GlossaryStepName }

func (s *GlossaryStep) RequiredInputs() []string {
	return []string{artifacts.NormalizedTranscript}
}

func (s *GlossaryStep) DeclaredOutputs() []string { return []string{artifacts.Glosses} }

func (s *GlossaryStep) NonDeterministic() bool { return true }

func (s *GlossaryStep) Run(ctx context.Context, episode *store.Episode) error {
	prompt, err := transcriptPrompt(ctx, s.arts, episode.ID, GlossaryStepName)
	if err != nil {
		return err
	}

	content, err := s.completer.CompleteJSON(ctx, glossarySystemPrompt, prompt)
	if err != nil {
		return llm.ClassifyError(GlossaryStepName, err)
	}

	var doc GlossaryDocument
	if err := llm.DecodeLLMJSON(content, &doc); err != nil {
		return services.Wrap(services.ErrTransient, GlossaryStepName, "decode response", "", err)
	}
	if len(doc.Glosses) == 0 {
		return services.Wrap(services.ErrTransient, GlossaryStepName, "decode response",
			"model returned no glosses", nil)
	}
	doc.EpisodeID = episode.ID

	s.logger.Info("glossary generated",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.Int("glosses", len(doc.Glosses)))

	_, err = s.arts.Write(ctx, episode.ID, artifacts.Glosses, GlossaryStepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	})
	return err
}
