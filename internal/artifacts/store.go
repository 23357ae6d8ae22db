package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"teanga/internal/config"
	"teanga/internal/fileutil"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/store"
)

// Store publishes and resolves artifact files for episodes. File payloads
// live under the episodes directory; their index rows live in the episode
// database and gate visibility.
type Store struct {
	root   string
	index  *store.Store
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

// NewStore builds an artifact store rooted at the configured episodes
// directory.
func NewStore(cfg *config.Config, index *store.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		root:   cfg.EpisodesDir(),
		index:  index,
		logger: logging.NewComponentLogger(logger, "artifacts"),
		held:   make(map[string]struct{}),
	}
}

// EpisodeDir returns the directory holding one episode's artifact files.
func (s *Store) EpisodeDir(episodeID string) string {
	return filepath.Join(s.root, episodeID)
}

// Path returns the absolute location an artifact occupies once written. It
// does not check that the artifact exists or verifies; use Exists for that.
func (s *Store) Path(episodeID, name string) (string, error) {
	relPath, ok := RolePath(name)
	if !ok {
		return "", fmt.Errorf("unknown artifact %q", name)
	}
	return filepath.Join(s.EpisodeDir(episodeID), relPath), nil
}

// PublishedPath resolves the absolute location of a published artifact from
// its index row. Unlike Path it honors per-row paths, so roles written with
// WriteAt resolve to the file actually on disk.
func (s *Store) PublishedPath(ctx context.Context, episodeID, name string) (string, error) {
	artifact, err := s.index.PublishedArtifact(ctx, episodeID, name)
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", services.Wrap(services.ErrNotFound, "", "resolve artifact", name+" is not published", nil)
	}
	return filepath.Join(s.EpisodeDir(episodeID), artifact.Path), nil
}

// Exists reports whether an artifact is published and its file still matches
// the recorded checksum. A missing or corrupted file reads as absent, which
// makes the producing step run again.
func (s *Store) Exists(ctx context.Context, episodeID, name string) (bool, error) {
	artifact, err := s.index.PublishedArtifact(ctx, episodeID, name)
	if err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	checksum, err := fileutil.HashFile(filepath.Join(s.EpisodeDir(episodeID), artifact.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("verify artifact %s: %w", name, err)
	}
	if checksum != artifact.Checksum {
		s.logger.Warn("artifact failed checksum verification",
			logging.String(logging.FieldEpisodeID, episodeID),
			logging.String(logging.FieldArtifact, name))
		return false, nil
	}
	return true, nil
}

// Written reports whether an artifact has an index row in any state and a
// file matching the recorded checksum. The runner uses it to verify a step
// produced its declared outputs before the success record publishes them.
func (s *Store) Written(ctx context.Context, episodeID, name string) (bool, error) {
	artifact, err := s.index.GetArtifact(ctx, episodeID, name)
	if err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	checksum, err := fileutil.HashFile(filepath.Join(s.EpisodeDir(episodeID), artifact.Path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("verify artifact %s: %w", name, err)
	}
	return checksum == artifact.Checksum, nil
}

// Write publishes an artifact atomically. The producer streams content into a
// temp file beside the final path; after it returns the file is fsynced,
// hashed, renamed into place, and staged in the index. Any producer error or
// cancellation removes the temp file and leaves prior state untouched.
//
// At most one Write per (episode, artifact) may be in flight. A second caller
// fails immediately with a conflict error instead of waiting.
func (s *Store) Write(ctx context.Context, episodeID, name, stepName string, producer func(io.Writer) error) (*store.Artifact, error) {
	relPath, ok := RolePath(name)
	if !ok {
		return nil, fmt.Errorf("unknown artifact %q", name)
	}
	return s.WriteAt(ctx, episodeID, name, stepName, relPath, producer)
}

// WriteAt publishes an artifact at a caller-chosen path relative to the
// episode directory. Roles whose file extension depends on the source, like
// the original audio, use this instead of Write; downstream readers resolve
// the recorded path from the index row.
func (s *Store) WriteAt(ctx context.Context, episodeID, name, stepName, relPath string, producer func(io.Writer) error) (*store.Artifact, error) {
	if !KnownRole(name) {
		return nil, fmt.Errorf("unknown artifact %q", name)
	}
	if !filepath.IsLocal(relPath) {
		return nil, fmt.Errorf("artifact path %q escapes the episode directory", relPath)
	}

	release, err := s.acquire(episodeID, name)
	if err != nil {
		return nil, err
	}
	defer release()

	finalPath := filepath.Join(s.EpisodeDir(episodeID), relPath)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	tempPath := finalPath + ".partial." + uuid.NewString()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}

	discard := func() {
		_ = f.Close()
		_ = os.Remove(tempPath)
	}

	if err := producer(f); err != nil {
		discard()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		discard()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		discard()
		return nil, fmt.Errorf("sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("close artifact: %w", err)
	}

	checksum, err := fileutil.HashFile(tempPath)
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("hash artifact: %w", err)
	}
	info, err := os.Stat(tempPath)
	if err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("publish artifact: %w", err)
	}

	artifact := &store.Artifact{
		EpisodeID: episodeID,
		Name:      name,
		Path:      relPath,
		Checksum:  checksum,
		SizeBytes: info.Size(),
		StepName:  stepName,
	}
	if err := s.index.StageArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("index artifact: %w", err)
	}
	return artifact, nil
}

// Reader opens a published artifact for streaming after re-verifying its
// checksum. Unpublished, missing, or corrupted artifacts yield a not-found
// error.
func (s *Store) Reader(ctx context.Context, episodeID, name string) (io.ReadCloser, *store.Artifact, error) {
	artifact, err := s.index.PublishedArtifact(ctx, episodeID, name)
	if err != nil {
		return nil, nil, err
	}
	if artifact == nil {
		return nil, nil, services.Wrap(services.ErrNotFound, "", "read artifact", name+" is not published", nil)
	}

	path := filepath.Join(s.EpisodeDir(episodeID), artifact.Path)
	checksum, err := fileutil.HashFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, services.Wrap(services.ErrNotFound, "", "read artifact", name+" file is missing", nil)
		}
		return nil, nil, fmt.Errorf("verify artifact %s: %w", name, err)
	}
	if checksum != artifact.Checksum {
		return nil, nil, services.Wrap(services.ErrNotFound, "", "read artifact", name+" failed checksum verification", nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact %s: %w", name, err)
	}
	return f, artifact, nil
}

// ReadFile returns a published artifact's full content.
func (s *Store) ReadFile(ctx context.Context, episodeID, name string) ([]byte, *store.Artifact, error) {
	reader, artifact, err := s.Reader(ctx, episodeID, name)
	if err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, artifact, nil
}

// RemoveFiles deletes artifact files by their index-relative paths. Used to
// clear files whose staged rows were discarded after a failed step; errors
// are logged, not returned, because the rows are already gone.
func (s *Store) RemoveFiles(episodeID string, relPaths []string) {
	for _, rel := range relPaths {
		path := filepath.Join(s.EpisodeDir(episodeID), rel)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove discarded artifact file",
				logging.String(logging.FieldEpisodeID, episodeID),
				logging.String("path", rel),
				logging.Error(err))
		}
	}
}

func (s *Store) acquire(episodeID, name string) (func(), error) {
	key := episodeID + "/" + name

	s.mu.Lock()
	if _, exists := s.held[key]; exists {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrConcurrentWrite, "", "write artifact", "another publish of "+key+" is in flight", nil)
	}
	s.held[key] = struct{}{}
	s.mu.Unlock()

	releaseLocal := func() {
		s.mu.Lock()
		delete(s.held, key)
		s.mu.Unlock()
	}

	lockDir := filepath.Join(s.EpisodeDir(episodeID), ".locks")
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		releaseLocal()
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(lockDir, name+".lock"))
	ok, err := fileLock.TryLock()
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("acquire artifact lock: %w", err)
	}
	if !ok {
		releaseLocal()
		return nil, services.Wrap(services.ErrConcurrentWrite, "", "write artifact", "another process is publishing "+key, nil)
	}

	return func() {
		_ = fileLock.Unlock()
		releaseLocal()
	}, nil
}
