package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateFeeds(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateFeeds() error {
	seen := make(map[string]struct{}, len(c.Feeds))
	for i, feed := range c.Feeds {
		if feed.Source == "" {
			return fmt.Errorf("feeds[%d].source must be set", i)
		}
		if feed.Show == "" {
			return fmt.Errorf("feeds[%d].show must be set", i)
		}
		if feed.URL == "" {
			return fmt.Errorf("feeds[%d].url must be set", i)
		}
		parsed, err := url.Parse(feed.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("feeds[%d].url %q is not an absolute URL", i, feed.URL)
		}
		key := feed.Source + "/" + feed.Show
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate feed %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 48000 {
		return errors.New("audio.sample_rate must be between 8000 and 48000")
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":   c.Workflow.QueuePollInterval,
		"workflow.feed_scan_interval":    c.Workflow.FeedScanInterval,
		"workflow.error_retry_interval":  c.Workflow.ErrorRetryInterval,
		"workflow.workers":               c.Workflow.Workers,
		"workflow.step_attempts":         c.Workflow.StepAttempts,
		"workflow.retry_initial_ms":      c.Workflow.RetryInitialMillis,
		"workflow.feed_fetch_timeout":    c.Workflow.FeedFetchTimeout,
		"audio.download_timeout_seconds": c.Audio.DownloadTimeoutSeconds,
		"audio.convert_timeout_seconds":  c.Audio.ConvertTimeoutSeconds,
		"whisper.timeout_seconds":        c.Whisper.TimeoutSeconds,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.RetryMaxMillis < c.Workflow.RetryInitialMillis {
		return errors.New("workflow.retry_max_ms must be >= workflow.retry_initial_ms")
	}
	return nil
}

// validateLLM checks connection shape only. The API key stays optional at
// load time: fetch/download/convert/transcribe run without it, and preflight
// reports the missing key before any AI-backed step is attempted.
func (c *Config) validateLLM() error {
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
