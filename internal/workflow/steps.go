package workflow

import (
	"log/slog"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/convert"
	"teanga/internal/fetch"
	"teanga/internal/ingest"
	"teanga/internal/materials"
	"teanga/internal/normalize"
	"teanga/internal/pipeline"
	"teanga/internal/services/download"
	"teanga/internal/services/ffmpeg"
	"teanga/internal/services/llm"
	"teanga/internal/services/rss"
	"teanga/internal/services/whisper"
	"teanga/internal/store"
	"teanga/internal/transcribe"
)

// DefaultSteps wires the full processing pipeline against the real
// collaborators. Both binaries use this; tests assemble their own step lists
// with stubbed collaborators instead.
func DefaultSteps(cfg *config.Config, st *store.Store, arts *artifacts.Store, logger *slog.Logger) []pipeline.Step {
	feeds := rss.NewFetcher(cfg, logger)
	downloader := download.NewDownloader(cfg, logger)
	converter := ffmpeg.NewConverter(cfg, logger)
	transcriber := whisper.NewService(cfg, logger)
	llmCfg := cfg.GetLLM()
	completer := llm.NewClient(llm.Config{
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
	})

	return []pipeline.Step{
		fetch.New(cfg, feeds, st, arts, logger),
		ingest.New(downloader, st, arts, logger),
		convert.New(cfg, converter, arts, logger),
		transcribe.New(transcriber, st, arts, logger),
		normalize.New(completer, arts, logger),
		materials.NewGlossary(completer, arts, logger),
		materials.NewExercises(completer, arts, logger),
		materials.NewDialect(completer, arts, logger),
	}
}
