package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"teanga/internal/artifacts"
	"teanga/internal/fetch"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/services/download"
	"teanga/internal/store"
)

// StepName identifies this step in history records and log lines.
const StepName = "download"

// AudioFetcher streams a remote enclosure into a writer.
type AudioFetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Step downloads the original episode audio.
type Step struct {
	fetcher AudioFetcher
	store   *store.Store
	arts    *artifacts.Store
	logger  *slog.Logger
}

// New builds the download step.
func New(fetcher AudioFetcher, st *store.Store, arts *artifacts.Store, logger *slog.Logger) *Step {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Step{
		fetcher: fetcher,
		store:   st,
		arts:    arts,
		logger:  logging.NewComponentLogger(logger, StepName),
	}
}

func (s *Step) Name() string { return StepName }

func (s *Step) RequiredInputs() []string { return []string{artifacts.FeedEntry} }

func (s *Step) DeclaredOutputs() []string { return []string{artifacts.OriginalAudio} }

// Run streams the enclosure into the original_audio artifact. The artifact
// store guarantees nothing becomes visible on a failed or cancelled download,
// so a retry starts clean.
func (s *Step) Run(ctx context.Context, episode *store.Episode) error {
	entry, err := fetch.ReadEntry(ctx, s.arts, episode.ID)
	if err != nil {
		return err
	}
	if entry.EnclosureURL == "" {
		return services.Wrap(services.ErrPermanent, StepName, "resolve enclosure",
			"feed entry carries no enclosure URL", nil)
	}

	var written int64
	relPath := artifacts.OriginalAudioPath(entry.EnclosureURL)
	artifact, err := s.arts.WriteAt(ctx, episode.ID, artifacts.OriginalAudio, StepName, relPath, func(w io.Writer) error {
		n, fetchErr := s.fetcher.Fetch(ctx, entry.EnclosureURL, w)
		written = n
		return fetchErr
	})
	if err != nil {
		return err
	}

	if err := s.store.SetAudioChecksum(ctx, episode.ID, artifact.Checksum); err != nil {
		return err
	}
	episode.AudioChecksum = artifact.Checksum

	s.logger.Info("episode audio downloaded",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.Int64("bytes", written),
		logging.String("checksum", artifact.Checksum))

	s.probeTags(ctx, episode, artifact)
	return nil
}

// probeTags reads ID3 metadata from the downloaded file. Tags are a bonus on
// top of feed metadata: a missing or unreadable tag block never fails the
// download. Only MP3 files carry ID3; other containers are left alone.
func (s *Step) probeTags(ctx context.Context, episode *store.Episode, artifact *store.Artifact) {
	if strings.ToLower(filepath.Ext(artifact.Path)) != ".mp3" {
		return
	}
	path := filepath.Join(s.arts.EpisodeDir(episode.ID), artifact.Path)
	tags, err := download.ReadTags(path)
	if err != nil {
		s.logger.Debug("id3 probe failed",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.Error(err))
		return
	}
	if tags.Empty() {
		return
	}

	s.logger.Info("id3 tags found",
		logging.String(logging.FieldEpisodeID, episode.ID),
		logging.String("title", tags.Title),
		logging.String("artist", tags.Artist))

	// Feed titles win; the tag only fills a blank.
	if episode.Title == "" && tags.Title != "" {
		episode.Title = tags.Title
		if err := s.store.Update(ctx, episode); err != nil {
			s.logger.Warn("episode title enrichment failed",
				logging.String(logging.FieldEpisodeID, episode.ID),
				logging.Error(err))
		}
	}
}
