package convert

import (
	"context"
	"io"
	"log/slog"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/media/audio"
	"teanga/internal/media/ffprobe"
	"teanga/internal/services"
	"teanga/internal/store"
)

// StepName identifies this step in history records and log lines.
const StepName = "convert"

// AudioConverter streams transcoded WAV into a writer.
type AudioConverter interface {
	Convert(ctx context.Context, sourcePath string, w io.Writer) (int64, error)
}

// Step turns original_audio into normalized_audio.
type Step struct {
	converter AudioConverter
	arts      *artifacts.Store
	logger    *slog.Logger
	probe     func(ctx context.Context, path string) (ffprobe.Result, error)
}

// New builds the convert step. Probing uses the configured ffprobe binary.
func New(cfg *config.Config, converter AudioConverter, arts *artifacts.Store, logger *slog.Logger) *Step {
	if logger == nil {
		logger = logging.NewNop()
	}
	binary := cfg.FFprobeBinary()
	return &Step{
		converter: converter,
		arts:      arts,
		logger:    logging.NewComponentLogger(logger, StepName),
		probe: func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, binary, path)
		},
	}
}

// WithProber overrides the ffprobe invocation (for testing).
func (s *Step) WithProber(probe func(ctx context.Context, path string) (ffprobe.Result, error)) {
	s.probe = probe
}

func (s *Step) Name() string { return StepName }

func (s *Step) RequiredInputs() []string { return []string{artifacts.OriginalAudio} }

func (s *Step) DeclaredOutputs() []string { return []string{artifacts.NormalizedAudio} }

// Run probes the source, validates it holds playable speech audio, and
// streams the ffmpeg output into the normalized_audio artifact. Probe and
// validation failures are permanent; the downloaded file will not improve.
func (s *Step) Run(ctx context.Context, episode *store.Episode) error {
	source, err := s.arts.PublishedPath(ctx, episode.ID, artifacts.OriginalAudio)
	if err != nil {
		return err
	}

	result, err := s.probe(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrPermanent, StepName, "probe", "", err)
	}
	if err := audio.Check(result); err != nil {
		return err
	}

	s.logger.Info("source audio probed",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.String("audio", audio.Summarize(result).String()))

	_, err = s.arts.Write(ctx, episode.ID, artifacts.NormalizedAudio, StepName, func(w io.Writer) error {
		_, convErr := s.converter.Convert(ctx, source, w)
		return convErr
	})
	return err
}
