// Package download streams episode audio from podcast CDNs.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"teanga/internal/config"
	"teanga/internal/logging"
	"teanga/internal/services"
)

const userAgent = "teanga/0.1.0"

// Downloader fetches enclosure audio over HTTP. Retry policy is the caller's
// concern; the downloader only classifies failures as transient or permanent.
type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

// NewDownloader builds a downloader with the configured per-request timeout.
func NewDownloader(cfg *config.Config, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		client: &http.Client{
			Timeout: time.Duration(cfg.Audio.DownloadTimeoutSeconds) * time.Second,
		},
		logger: logging.NewComponentLogger(logger, "download"),
	}
}

// Fetch streams the audio at url into w and returns the byte count. Transport
// failures, rate limits, and server errors are transient; other HTTP errors
// are permanent. A body shorter than the advertised Content-Length counts as
// transient since a retry may complete.
func (d *Downloader) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrPermanent, "", "download audio", url, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "audio/*")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, services.Wrap(services.ErrTransient, "", "download audio", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		marker := services.ErrPermanent
		if retryableStatus(resp.StatusCode) {
			marker = services.ErrTransient
		}
		detail := fmt.Sprintf("%s returned %s", url, resp.Status)
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			detail += ": " + trimmed
		}
		return 0, services.Wrap(marker, "", "download audio", detail, nil)
	}

	copied, err := io.Copy(w, resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return copied, err
		}
		return copied, services.Wrap(services.ErrTransient, "", "download audio", url+" stream interrupted", err)
	}
	if resp.ContentLength > 0 && copied != resp.ContentLength {
		detail := fmt.Sprintf("%s truncated: got %d of %d bytes", url, copied, resp.ContentLength)
		return copied, services.Wrap(services.ErrTransient, "", "download audio", detail, nil)
	}

	d.logger.Debug("audio downloaded",
		logging.String("url", url),
		logging.Int64("bytes", copied))
	return copied, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
