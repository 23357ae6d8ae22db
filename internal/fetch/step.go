package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"teanga/internal/artifacts"
	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/services"
	"teanga/internal/services/rss"
	"teanga/internal/store"
)

// StepName identifies this step in history records and log lines.
const StepName = "fetch"

// FeedResolver re-resolves one episode's entry within its feed.
type FeedResolver interface {
	EntryForEpisode(ctx context.Context, feed config.Feed, episodeID string) (*rss.Entry, error)
}

// Step resolves the episode's feed entry and produces feed_entry.
type Step struct {
	cfg    *config.Config
	feeds  FeedResolver
	store  *store.Store
	arts   *artifacts.Store
	logger *slog.Logger
}

// New builds the fetch step.
func New(cfg *config.Config, feeds FeedResolver, st *store.Store, arts *artifacts.Store, logger *slog.Logger) *Step {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Step{
		cfg:    cfg,
		feeds:  feeds,
		store:  st,
		arts:   arts,
		logger: logging.NewComponentLogger(logger, StepName),
	}
}

func (s *Step) Name() string { return StepName }

func (s *Step) RequiredInputs() []string { return nil }

func (s *Step) DeclaredOutputs() []string { return []string{artifacts.FeedEntry} }

// Run resolves the entry, refreshes the episode's descriptive fields from it,
// and writes the entry as canonical JSON.
func (s *Step) Run(ctx context.Context, episode *store.Episode) error {
	entry, err := s.resolve(ctx, episode)
	if err != nil {
		return err
	}

	if err := s.refreshEpisode(ctx, episode, entry); err != nil {
		return err
	}

	_, err = s.arts.Write(ctx, episode.ID, artifacts.FeedEntry, StepName, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entry)
	})
	return err
}

// resolve prefers the live feed; when the episode has rolled out of the feed
// window (or was added by URL without a configured feed) it falls back to the
// metadata captured at discovery.
func (s *Step) resolve(ctx context.Context, episode *store.Episode) (*rss.Entry, error) {
	feed, configured := s.cfg.FeedBySourceShow(episode.Source, episode.Show)
	if configured {
		entry, err := s.feeds.EntryForEpisode(ctx, feed, episode.ID)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		s.logger.Info("entry rolled out of feed, using stored metadata",
			logging.String(logging.FieldEpisodeID, episode.ID))
	}

	if episode.EnclosureURL == "" {
		return nil, services.Wrap(services.ErrPermanent, StepName, "resolve entry",
			episode.ID+" has no enclosure URL and is absent from its feed", nil)
	}
	return &rss.Entry{
		EpisodeID:    episode.ID,
		Source:       episode.Source,
		Show:         episode.Show,
		Title:        episode.Title,
		FeedURL:      episode.FeedURL,
		EnclosureURL: episode.EnclosureURL,
		PublishedAt:  episode.PublishedAt,
		Language:     episode.Language,
	}, nil
}

// refreshEpisode copies descriptive fields from the resolved entry onto the
// episode row. Identity fields never change here; only things feeds are
// allowed to amend, like a corrected title or a moved enclosure.
func (s *Step) refreshEpisode(ctx context.Context, episode *store.Episode, entry *rss.Entry) error {
	changed := false
	if entry.Title != "" && entry.Title != episode.Title {
		episode.Title = entry.Title
		changed = true
	}
	if entry.EnclosureURL != "" && entry.EnclosureURL != episode.EnclosureURL {
		episode.EnclosureURL = entry.EnclosureURL
		changed = true
	}
	if entry.FeedURL != "" && entry.FeedURL != episode.FeedURL {
		episode.FeedURL = entry.FeedURL
		changed = true
	}
	if !changed {
		return nil
	}
	return s.store.Update(ctx, episode)
}

// ReadEntry loads the frozen feed entry for an episode. Steps downstream of
// fetch use it rather than touching the network.
func ReadEntry(ctx context.Context, arts *artifacts.Store, episodeID string) (*rss.Entry, error) {
	data, _, err := arts.ReadFile(ctx, episodeID, artifacts.FeedEntry)
	if err != nil {
		return nil, err
	}
	var entry rss.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, services.Wrap(services.ErrPermanent, StepName, "decode entry", "feed_entry artifact is malformed", err)
	}
	return &entry, nil
}
