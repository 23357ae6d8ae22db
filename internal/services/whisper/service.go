package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"teanga/internal/config"
	langpkg "teanga/internal/language"
	"teanga/internal/logging"
	"teanga/internal/services"
)

// WhisperX invocation constants.
const (
	DefaultModel      = "large-v3"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	OutputFormat      = "json"
	SegmentResolution = "sentence"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
)

// UVXCommand launches WhisperX without a managed Python environment.
const UVXCommand = "uvx"

// Service runs WhisperX transcriptions.
type Service struct {
	model         string
	cudaEnabled   bool
	cacheDir      string
	timeout       time.Duration
	logger        *slog.Logger
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService builds a transcription service from the whisper section of the
// config.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		model:       cfg.Whisper.Model,
		cudaEnabled: cfg.Whisper.CUDAEnabled,
		cacheDir:    cfg.Whisper.CacheDir,
		timeout:     time.Duration(cfg.Whisper.TimeoutSeconds) * time.Second,
		logger:      logging.NewComponentLogger(logger, "whisper"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.model != "" {
		return s.model
	}
	return DefaultModel
}

// CUDAEnabled reports whether GPU acceleration is configured.
func (s *Service) CUDAEnabled() bool {
	return s.cudaEnabled
}

// Word is a single word with timing from WhisperX output.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one transcribed utterance.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

// Result carries the parsed transcription plus the path of the JSON file
// WhisperX wrote, so callers can persist the raw output as an artifact.
type Result struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
	JSONPath string    `json:"-"`
}

// Text concatenates the trimmed segment texts into a single transcript.
func (r *Result) Text() string {
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Transcribe runs WhisperX on the WAV at source, writing output files to
// outputDir. language hints the expected language; WhisperX still reports
// what it actually detected in the result.
func (s *Service) Transcribe(ctx context.Context, source, outputDir, language string) (*Result, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("transcribe: source path required")
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.run(runCtx, UVXCommand, s.buildArgs(source, outputDir, language)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTransient, "whisper", "transcribe", "transcription timed out", err)
		}
		return nil, services.Wrap(services.ErrTransient, "whisper", "transcribe", "", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	result, err := LoadResult(jsonPath)
	if err != nil {
		return nil, err
	}
	if result.Language == "" {
		result.Language = langpkg.ToISO2(language)
	}

	s.logger.Debug("transcription complete",
		logging.String("source", filepath.Base(source)),
		logging.String("language", result.Language),
		logging.Int("segments", len(result.Segments)),
		logging.Duration("elapsed", time.Since(start)))
	return result, nil
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	env := os.Environ()
	// Torch 2.6 changed torch.load default to weights_only=true, breaking
	// WhisperX checkpoint loading. Force the legacy behavior.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if s.cacheDir != "" {
		env = append(env, "HF_HOME="+s.cacheDir)
	}
	cmd.Env = env

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir, language string) []string {
	args := make([]string, 0, 24)

	if s.cudaEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
	)

	if lang := langpkg.ToISO2(language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cudaEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// whisperXPayload is the JSON structure WhisperX writes.
type whisperXPayload struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// LoadResult parses a WhisperX JSON file. A file that is missing, malformed,
// or holds no segments classifies as permanent: WhisperX already ran, so the
// output will not change on retry.
func LoadResult(jsonPath string) (*Result, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "whisper", "load output", "whisperx wrote no JSON output", err)
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "whisper", "load output", "malformed whisperx JSON", err)
	}
	if len(payload.Segments) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "whisper", "load output", "transcription produced no segments", nil)
	}
	return &Result{
		Language: strings.ToLower(strings.TrimSpace(payload.Language)),
		Segments: payload.Segments,
		JSONPath: jsonPath,
	}, nil
}
