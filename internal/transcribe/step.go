package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"teanga/internal/artifacts"
	"teanga/internal/language"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/services/whisper"
	"teanga/internal/store"
	"teanga/internal/subtitles"
)

// StepName identifies this step in history records and log lines.
const StepName = "transcribe"

// Transcriber runs speech recognition over a prepared WAV file.
type Transcriber interface {
	Transcribe(ctx context.Context, source, outputDir, language string) (*whisper.Result, error)
}

// Step produces raw_transcript and subtitles from normalized_audio.
type Step struct {
	transcriber Transcriber
	store       *store.Store
	arts        *artifacts.Store
	logger      *slog.Logger
}

// New builds the transcribe step.
func New(transcriber Transcriber, st *store.Store, arts *artifacts.Store, logger *slog.Logger) *Step {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Step{
		transcriber: transcriber,
		store:       st,
		arts:        arts,
		logger:      logging.NewComponentLogger(logger, StepName),
	}
}

func (s *Step) Name() string { return StepName }

func (s *Step) RequiredInputs() []string { return []string{artifacts.NormalizedAudio} }

func (s *Step) DeclaredOutputs() []string {
	return []string{artifacts.RawTranscript, artifacts.Subtitles}
}

func (s *Step) Run(ctx context.Context, episode *store.Episode) error {
	source, err := s.arts.Path(episode.ID, artifacts.NormalizedAudio)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "teanga-transcribe-*")
	if err != nil {
		return services.Wrap(services.ErrTransient, StepName, "workdir", "", err)
	}
	defer os.RemoveAll(workDir)

	result, err := s.transcriber.Transcribe(ctx, source, workDir, episode.Language)
	if err != nil {
		return err
	}

	s.recordDetectedLanguage(ctx, episode, result.Language)

	if _, err := s.arts.Write(ctx, episode.ID, artifacts.RawTranscript, StepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}); err != nil {
		return err
	}

	cues := make([]subtitles.Cue, 0, len(result.Segments))
	for _, segment := range result.Segments {
		cues = append(cues, subtitles.Cue{Start: segment.Start, End: segment.End, Text: segment.Text})
	}
	artifact, err := s.arts.Write(ctx, episode.ID, artifacts.Subtitles, StepName, func(w io.Writer) error {
		return subtitles.WriteVTT(w, cues)
	})
	if err != nil {
		return err
	}

	s.checkSubtitles(episode, artifact, result)
	return nil
}

// checkSubtitles inspects the rendered document against the transcript's
// span. Issues are logged, never failed on; the artifact already published
// and a mangled document is still better than none.
func (s *Step) checkSubtitles(episode *store.Episode, artifact *store.Artifact, result *whisper.Result) {
	audioSeconds := 0.0
	if n := len(result.Segments); n > 0 {
		audioSeconds = result.Segments[n-1].End
	}

	f, err := os.Open(filepath.Join(s.arts.EpisodeDir(episode.ID), artifact.Path))
	if err != nil {
		s.logger.Warn("subtitle check could not open document",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.Error(err))
		return
	}
	defer f.Close()

	stats, err := subtitles.ReadStats(f)
	if err != nil {
		s.logger.Warn("subtitle check could not read document",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.Error(err))
		return
	}
	for _, issue := range subtitles.Validate(stats, audioSeconds) {
		s.logger.Warn("subtitle document issue",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.String("issue", issue))
	}
}

// recordDetectedLanguage persists what the model heard. A mismatch against
// the feed's declared language is informational.
func (s *Step) recordDetectedLanguage(ctx context.Context, episode *store.Episode, detected string) {
	if detected == "" {
		return
	}
	if err := s.store.SetDetectedLanguage(ctx, episode.ID, detected); err != nil {
		s.logger.Warn("recording detected language failed",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.Error(err))
		return
	}
	episode.DetectedLanguage = detected

	expected := language.ToISO2(episode.Language)
	if expected != "" && language.ToISO2(detected) != expected {
		s.logger.Warn("detected language differs from feed",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.String("expected", expected),
			logging.String("detected", detected))
	}
}

// ReadTranscript loads the raw transcript artifact for downstream steps.
func ReadTranscript(ctx context.Context, arts *artifacts.Store, episodeID string) (*whisper.Result, error) {
	data, _, err := arts.ReadFile(ctx, episodeID, artifacts.RawTranscript)
	if err != nil {
		return nil, err
	}
	var result whisper.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, services.Wrap(services.ErrPermanent, StepName, "decode transcript", "raw_transcript artifact is malformed", err)
	}
	return &result, nil
}
