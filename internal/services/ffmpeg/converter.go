package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/services"
)

var commandContext = exec.CommandContext

// maxStderrBytes bounds how much ffmpeg stderr ends up inside error messages.
const maxStderrBytes = 2048

// Converter shells out to ffmpeg to re-encode episode audio as PCM WAV.
type Converter struct {
	binary     string
	sampleRate int
	channels   int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewConverter builds a converter from the audio section of the config.
func NewConverter(cfg *config.Config, logger *slog.Logger) *Converter {
	return &Converter{
		binary:     cfg.FFmpegBinary(),
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.Channels,
		timeout:    time.Duration(cfg.Audio.ConvertTimeoutSeconds) * time.Second,
		logger:     logging.NewComponentLogger(logger, "ffmpeg"),
	}
}

// Convert transcodes the audio at sourcePath into WAV and streams the result
// to w, returning the number of bytes written. ffmpeg writes to stdout
// (pipe:1) so the caller controls where the artifact lands.
func (c *Converter) Convert(ctx context.Context, sourcePath string, w io.Writer) (int64, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return 0, services.Wrap(services.ErrPermanent, "ffmpeg", "convert", "source path required", nil)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	counter := &countingWriter{w: w}
	cmd := commandContext(runCtx, c.binary, c.buildArgs(sourcePath)...) //nolint:gosec
	cmd.Stdout = counter
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return counter.n, c.classifyRunError(ctx, runCtx, err, &stderr)
	}
	if counter.n == 0 {
		return 0, services.Wrap(services.ErrPermanent, "ffmpeg", "convert", "ffmpeg produced no audio data", nil)
	}

	c.logger.Debug("converted audio",
		logging.String("source", filepath.Base(sourcePath)),
		logging.Int64("bytes", counter.n),
		logging.Duration("elapsed", time.Since(start)))
	return counter.n, nil
}

func (c *Converter) buildArgs(sourcePath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", sourcePath,
		"-vn", "-sn", "-dn",
		"-ac", strconv.Itoa(c.channels),
		"-ar", strconv.Itoa(c.sampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

func (c *Converter) classifyRunError(parent, run context.Context, err error, stderr *bytes.Buffer) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "ffmpeg", "convert", "conversion timed out", err)
	}
	return services.Wrap(services.ErrPermanent, "ffmpeg", "convert", stderrDetail(stderr), err)
}

func stderrDetail(stderr *bytes.Buffer) string {
	detail := strings.TrimSpace(stderr.String())
	if len(detail) > maxStderrBytes {
		detail = detail[len(detail)-maxStderrBytes:]
	}
	return detail
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
