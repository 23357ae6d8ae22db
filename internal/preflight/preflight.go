package preflight

import (
	"context"

	"teanga/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is configured.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	results = append(results, CheckFreeSpace("Data disk space", cfg.Paths.DataDir))

	if cfg.GetLLM().APIKey != "" {
		results = append(results, CheckLLM(ctx, "LLM API", cfg.GetLLM()))
	}

	for _, feed := range cfg.Feeds {
		results = append(results, CheckFeed(ctx, feed))
	}

	return results
}
