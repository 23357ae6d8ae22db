package artifacts

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"teanga/internal/logging"
)

// CleanStaleResult contains the outcome of a stale temp-file cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStalePartials removes leftover .partial temp files older than maxAge.
// Crashed writers leave these behind; anything fresh enough may still belong
// to an in-flight write and is skipped.
func CleanStalePartials(root string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if !strings.Contains(entry.Name(), ".partial.") {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed stale partial artifact", logging.String("path", path))
		return nil
	})
	if walkErr != nil && !os.IsNotExist(walkErr) {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: walkErr})
	}

	return result
}
