package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teanga/internal/config"
)

const userAgent = "Teanga-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyEpisodeDiscovered(ctx context.Context, episodeID, title string) error
	NotifyEpisodeCompleted(ctx context.Context, episodeID, title string, duration time.Duration) error
	NotifyEpisodeFailed(ctx context.Context, episodeID, step string, err error) error
	NotifyScanCompleted(ctx context.Context, discovered int) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		sendCompleted:  cfg.Notifications.Completed,
		sendFailed:     cfg.Notifications.Failed,
		sendDiscovered: cfg.Notifications.Queue,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	sendCompleted  bool
	sendFailed     bool
	sendDiscovered bool
}

func (n *ntfyService) NotifyEpisodeDiscovered(ctx context.Context, episodeID, title string) error {
	if !n.sendDiscovered {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = episodeID
	}
	data := payload{
		title:   "Teanga - Episode Queued",
		message: fmt.Sprintf("New episode queued: %s", title),
		tags:    []string{"teanga", "episode", "discovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEpisodeCompleted(ctx context.Context, episodeID, title string, duration time.Duration) error {
	if !n.sendCompleted {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = episodeID
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:    "Teanga - Episode Ready",
		message:  fmt.Sprintf("Learning materials ready: %s (processed in %s)", title, duration),
		tags:     []string{"teanga", "episode", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEpisodeFailed(ctx context.Context, episodeID, step string, err error) error {
	if !n.sendFailed {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Episode ")
	builder.WriteString(episodeID)
	builder.WriteString(" failed")
	if step = strings.TrimSpace(step); step != "" {
		builder.WriteString(" at step ")
		builder.WriteString(step)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	data := payload{
		title:    "Teanga - Episode Failed",
		message:  builder.String(),
		tags:     []string{"teanga", "episode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanCompleted(ctx context.Context, discovered int) error {
	if !n.sendDiscovered || discovered == 0 {
		return nil
	}
	data := payload{
		title:   "Teanga - Feed Scan",
		message: fmt.Sprintf("Feed scan queued %d new episode(s)", discovered),
		tags:    []string{"teanga", "scan", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Teanga - Test",
		message:  "Notification system test",
		tags:     []string{"teanga", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyEpisodeDiscovered(context.Context, string, string) error { return nil }
func (noopService) NotifyEpisodeCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyEpisodeFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyScanCompleted(context.Context, int) error                   { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
