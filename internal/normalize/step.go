package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"teanga/internal/artifacts"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/services/llm"
	"teanga/internal/services/whisper"
	"teanga/internal/store"
	"teanga/internal/transcribe"
)

// StepName identifies this step in history records and log lines.
const StepName = "normalize"

// chunkSegments bounds how many segments travel in one LLM request. Whisper
// segments average a sentence each; 40 keeps prompts well under context
// limits for an hour-long episode.
const chunkSegments = 40

const systemPrompt = `You are an expert editor of Irish (Gaeilge) transcripts produced by automatic speech recognition.
Correct obvious ASR errors: misheard words, broken séimhiú/urú mutations, missing fadas, run-on fragments, and stray English artifacts.
Preserve the speaker's dialect and wording. Never translate, summarize, or reorder.
You receive a JSON array of segment strings. Respond with JSON only: {"segments": ["...", ...]} containing exactly the same number of entries, each the corrected text of the segment at the same position.`

// Completer is the LLM capability the step needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Segment is one normalized utterance with its original timing.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Document is the normalized_transcript artifact payload.
type Document struct {
	Language string    `json:"language"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// Step rewrites raw_transcript into normalized_transcript.
type Step struct {
	completer Completer
	arts      *artifacts.Store
	logger    *slog.Logger
}

// New builds the normalize step.
func New(completer Completer, arts *artifacts.Store, logger *slog.Logger) *Step {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Step{
		completer: completer,
		arts:      arts,
		logger:    logging.NewComponentLogger(logger, StepName),
	}
}

func (s *Step) Name() string { return StepName }

func (s *Step) RequiredInputs() []string { return []string{artifacts.RawTranscript} }

func (s *Step) DeclaredOutputs() []string { return []string{artifacts.NormalizedTranscript} }

// NonDeterministic reports that model output varies between runs, so the
// runner never expects byte-identical artifacts from a forced re-run.
func (s *Step) NonDeterministic() bool { return true }

func (s *Step) Run(ctx context.Context, episode *store.Episode) error {
	raw, err := transcribe.ReadTranscript(ctx, s.arts, episode.ID)
	if err != nil {
		return err
	}
	if len(raw.Segments) == 0 {
		return services.Wrap(services.ErrPermanent, StepName, "load transcript",
			"raw transcript has no segments", nil)
	}

	doc := Document{Language: raw.Language, Segments: make([]Segment, 0, len(raw.Segments))}
	for start := 0; start < len(raw.Segments); start += chunkSegments {
		end := min(start+chunkSegments, len(raw.Segments))
		chunk := raw.Segments[start:end]

		corrected, err := s.normalizeChunk(ctx, chunk)
		if err != nil {
			return err
		}
		for i, seg := range chunk {
			doc.Segments = append(doc.Segments, Segment{
				Start: seg.Start,
				End:   seg.End,
				Text:  corrected[i],
			})
		}
	}

	parts := make([]string, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		if seg.Text != "" {
			parts = append(parts, seg.Text)
		}
	}
	doc.Text = strings.Join(parts, " ")

	_, err = s.arts.Write(ctx, episode.ID, artifacts.NormalizedTranscript, StepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	})
	return err
}

func (s *Step) normalizeChunk(ctx context.Context, chunk []whisper.Segment) ([]string, error) {
	texts := make([]string, 0, len(chunk))
	for _, seg := range chunk {
		texts = append(texts, strings.TrimSpace(seg.Text))
	}
	payload, err := json.Marshal(texts)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, StepName, "encode prompt", "", err)
	}

	content, err := s.completer.CompleteJSON(ctx, systemPrompt, string(payload))
	if err != nil {
		return nil, llm.ClassifyError(StepName, err)
	}

	var parsed struct {
		Segments []string `json:"segments"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrTransient, StepName, "decode response", "", err)
	}
	if len(parsed.Segments) != len(texts) {
		return nil, services.Wrap(services.ErrTransient, StepName, "decode response",
			fmt.Sprintf("model returned %d segments for %d inputs", len(parsed.Segments), len(texts)), nil)
	}

	out := make([]string, len(parsed.Segments))
	for i, text := range parsed.Segments {
		text = strings.TrimSpace(text)
		if text == "" {
			// The model dropping a segment is not a license to lose audio
			// coverage; fall back to the raw text.
			text = texts[i]
		}
		out[i] = text
	}
	return out, nil
}

// ReadDocument loads the normalized transcript artifact for downstream steps.
func ReadDocument(ctx context.Context, arts *artifacts.Store, episodeID string) (*Document, error) {
	data, _, err := arts.ReadFile(ctx, episodeID, artifacts.NormalizedTranscript)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrPermanent, StepName, "decode document",
			"normalized_transcript artifact is malformed", err)
	}
	return &doc, nil
}
