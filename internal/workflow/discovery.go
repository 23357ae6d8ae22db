package workflow

import (
	"context"
	"log/slog"
	"time"

	"teanga/internal/config"
	"teanga/internal/episodeid"
	"teanga/internal/logging"
	"teanga/internal/notifications"
	"teanga/internal/services/rss"
	"teanga/internal/store"
)

// FeedSource lists the playable entries of one configured feed.
type FeedSource interface {
	Fetch(ctx context.Context, feed config.Feed) ([]rss.Entry, error)
}

// Discoverer scans configured feeds and enqueues unseen episodes.
type Discoverer struct {
	cfg      *config.Config
	feeds    FeedSource
	store    *store.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewDiscoverer builds a feed discoverer.
func NewDiscoverer(cfg *config.Config, feeds FeedSource, st *store.Store, notifier notifications.Service, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Discoverer{
		cfg:      cfg,
		feeds:    feeds,
		store:    st,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "discovery"),
	}
}

// ScanOnce walks every configured feed and creates pending episodes for
// entries not seen before. Feed failures are logged and skipped; one broken
// feed never blocks the others. Returns how many episodes were enqueued.
func (d *Discoverer) ScanOnce(ctx context.Context) (int, error) {
	discovered := 0
	for _, feed := range d.cfg.Feeds {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}
		count, err := d.scanFeed(ctx, feed)
		discovered += count
		if err != nil {
			d.logger.Warn("feed scan failed",
				logging.String("source", feed.Source),
				logging.String("show", feed.Show),
				logging.Error(err),
				logging.String(logging.FieldEventType, "feed_scan_failed"))
		}
	}

	if discovered > 0 {
		if err := d.notifier.NotifyScanCompleted(ctx, discovered); err != nil {
			d.logger.Warn("scan notification failed", logging.Error(err))
		}
	}
	return discovered, nil
}

func (d *Discoverer) scanFeed(ctx context.Context, feed config.Feed) (int, error) {
	entries, err := d.feeds.Fetch(ctx, feed)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, entry := range entries {
		existing, err := d.store.GetByID(ctx, entry.EpisodeID)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		episode, err := d.store.CreateEpisode(ctx, &store.Episode{
			ID:           entry.EpisodeID,
			Source:       entry.Source,
			Show:         entry.Show,
			Title:        entry.Title,
			FeedURL:      entry.FeedURL,
			EnclosureURL: entry.EnclosureURL,
			PublishedAt:  entry.PublishedAt,
			Language:     entry.Language,
		})
		if err != nil {
			return created, err
		}
		created++

		d.logger.Info("episode discovered",
			logging.String(logging.FieldEpisodeID, episode.ID),
			logging.String("title", episode.Title),
			logging.String(logging.FieldEventType, "episode_discovered"))
		if err := d.notifier.NotifyEpisodeDiscovered(ctx, episode.ID, episode.Title); err != nil {
			d.logger.Warn("discovery notification failed", logging.Error(err))
		}
	}
	return created, nil
}

// AddManual enqueues one episode directly from an enclosure URL, outside any
// configured feed. The identity fields follow the same derivation as feed
// discovery so a later feed scan of the same episode is a no-op.
func (d *Discoverer) AddManual(ctx context.Context, source, show, title, enclosureURL string, publishedAt time.Time) (*store.Episode, error) {
	id := episodeid.MakeID(source, show, publishedAt)
	return d.store.CreateEpisode(ctx, &store.Episode{
		ID:           id,
		Source:       source,
		Show:         show,
		Title:        title,
		EnclosureURL: enclosureURL,
		PublishedAt:  publishedAt,
	})
}

// runDiscovery is the manager's background loop: an immediate scan at start,
// then one per configured interval.
func (m *Manager) runDiscovery(ctx context.Context) {
	defer m.wg.Done()

	discoverer := NewDiscoverer(m.cfg, rss.NewFetcher(m.cfg, m.logger), m.store, m.notifier, m.logger)

	for {
		if _, err := discoverer.ScanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
		}

		timer := time.NewTimer(m.scanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
