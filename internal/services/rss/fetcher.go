package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"teanga/internal/config"
	"teanga/internal/episodeid"
	"teanga/internal/logging"
	"teanga/internal/services"
)

// Entry is one playable feed item, normalized for the pipeline.
type Entry struct {
	EpisodeID       string        `json:"episode_id"`
	Source          string        `json:"source"`
	Show            string        `json:"show"`
	Title           string        `json:"title"`
	GUID            string        `json:"guid,omitempty"`
	Description     string        `json:"description,omitempty"`
	FeedURL         string        `json:"feed_url"`
	EnclosureURL    string        `json:"enclosure_url"`
	EnclosureType   string        `json:"enclosure_type,omitempty"`
	EnclosureLength int64         `json:"enclosure_length,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	PublishedAt     time.Time     `json:"published_at"`
	Language        string        `json:"language,omitempty"`
}

// Fetcher downloads and parses configured podcast feeds.
type Fetcher struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFetcher builds a fetcher with the configured feed timeout.
func NewFetcher(cfg *config.Config, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	parser := gofeed.NewParser()
	parser.Client = &http.Client{
		Timeout: time.Duration(cfg.Workflow.FeedFetchTimeout) * time.Second,
	}
	return &Fetcher{
		parser: parser,
		logger: logging.NewComponentLogger(logger, "rss"),
	}
}

// Fetch downloads feed.URL and returns its playable entries, newest first.
// Network failures and server errors are transient; unparseable feeds are
// permanent.
func (f *Fetcher) Fetch(ctx context.Context, feed config.Feed) ([]Entry, error) {
	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, classifyFeedError(feed, err)
	}
	if parsed == nil || len(parsed.Items) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "", "parse feed", feed.URL+" contains no items", nil)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, ok := entryFromItem(feed, item)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, services.Wrap(services.ErrPermanent, "", "parse feed", feed.URL+" has no playable entries", nil)
	}

	f.logger.Debug("feed fetched",
		logging.String("source", feed.Source),
		logging.String("show", feed.Show),
		logging.Int("entries", len(entries)))
	return entries, nil
}

// Latest returns the most recent playable entry in a feed.
func (f *Fetcher) Latest(ctx context.Context, feed config.Feed) (*Entry, error) {
	entries, err := f.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	latest := entries[0]
	for _, entry := range entries[1:] {
		if entry.PublishedAt.After(latest.PublishedAt) {
			latest = entry
		}
	}
	return &latest, nil
}

// EntryForEpisode re-resolves a specific episode within a feed by its derived
// identifier. Episodes that have rolled out of the feed window return a
// not-found error.
func (f *Fetcher) EntryForEpisode(ctx context.Context, feed config.Feed, episodeID string) (*Entry, error) {
	entries, err := f.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].EpisodeID == episodeID {
			return &entries[i], nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "", "resolve entry", episodeID+" is no longer in the feed", nil)
}

func entryFromItem(feed config.Feed, item *gofeed.Item) (Entry, bool) {
	if item == nil || item.PublishedParsed == nil {
		return Entry{}, false
	}

	var enclosure *gofeed.Enclosure
	for _, candidate := range item.Enclosures {
		if candidate == nil || candidate.URL == "" {
			continue
		}
		if candidate.Type == "" || strings.HasPrefix(candidate.Type, "audio/") {
			enclosure = candidate
			break
		}
	}
	if enclosure == nil {
		return Entry{}, false
	}

	published := item.PublishedParsed.UTC()
	entry := Entry{
		EpisodeID:     episodeid.MakeID(feed.Source, feed.Show, published),
		Source:        feed.Source,
		Show:          feed.Show,
		Title:         strings.TrimSpace(item.Title),
		GUID:          strings.TrimSpace(item.GUID),
		Description:   stripHTML(item.Description),
		FeedURL:       feed.URL,
		EnclosureURL:  enclosure.URL,
		EnclosureType: enclosure.Type,
		PublishedAt:   published,
		Language:      feed.Language,
	}
	if enclosure.Length != "" {
		if length, err := strconv.ParseInt(enclosure.Length, 10, 64); err == nil {
			entry.EnclosureLength = length
		}
	}
	if item.ITunesExt != nil && item.ITunesExt.Duration != "" {
		if duration, err := ParseDuration(item.ITunesExt.Duration); err == nil {
			entry.Duration = duration
		}
	}
	return entry, true
}

// ParseDuration understands the duration spellings that appear in podcast
// feeds: plain seconds, MM:SS, and HH:MM:SS.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("empty duration")
	}

	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("malformed duration %q", value)
	}

	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("malformed duration %q", value)
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, nil
}

// stripHTML reduces a feed item description to plain text.
func stripHTML(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func classifyFeedError(feed config.Feed, err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500 {
			return services.Wrap(services.ErrTransient, "", "fetch feed", feed.URL, err)
		}
		return services.Wrap(services.ErrPermanent, "", "fetch feed", feed.URL, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return services.Wrap(services.ErrPermanent, "", "parse feed", feed.URL, err)
	}
	// Anything else is a transport failure and worth retrying.
	return services.Wrap(services.ErrTransient, "", "fetch feed", feed.URL, err)
}
