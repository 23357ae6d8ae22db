package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeFeeds()
	c.normalizeAudio()
	if err := c.normalizeWhisper(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TEANGA_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeFeeds() {
	for i := range c.Feeds {
		feed := &c.Feeds[i]
		feed.Source = strings.ToLower(strings.TrimSpace(feed.Source))
		feed.Show = strings.ToLower(strings.TrimSpace(feed.Show))
		feed.URL = strings.TrimSpace(feed.URL)
		feed.Language = strings.ToLower(strings.TrimSpace(feed.Language))
		if feed.Language == "" {
			feed.Language = defaultFeedLanguage
		}
	}
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = defaultChannels
	}
	if c.Audio.DownloadTimeoutSeconds <= 0 {
		c.Audio.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	if c.Audio.ConvertTimeoutSeconds <= 0 {
		c.Audio.ConvertTimeoutSeconds = defaultConvertTimeoutSeconds
	}
}

func (c *Config) normalizeWhisper() error {
	c.Whisper.Model = strings.TrimSpace(c.Whisper.Model)
	if c.Whisper.Model == "" {
		c.Whisper.Model = defaultWhisperModel
	}
	if strings.TrimSpace(c.Whisper.CacheDir) == "" {
		c.Whisper.CacheDir = defaultWhisperCacheDir
	}
	var err error
	if c.Whisper.CacheDir, err = expandPath(c.Whisper.CacheDir); err != nil {
		return fmt.Errorf("whisper.cache_dir: %w", err)
	}
	if c.Whisper.TimeoutSeconds <= 0 {
		c.Whisper.TimeoutSeconds = defaultWhisperTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("TEANGA_LLM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	w := &c.Workflow
	if w.QueuePollInterval <= 0 {
		w.QueuePollInterval = defaultQueuePollInterval
	}
	if w.FeedScanInterval <= 0 {
		w.FeedScanInterval = defaultFeedScanInterval
	}
	if w.ErrorRetryInterval <= 0 {
		w.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if w.HeartbeatInterval <= 0 {
		w.HeartbeatInterval = defaultHeartbeatInterval
	}
	if w.HeartbeatTimeout <= 0 {
		w.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if w.Workers <= 0 {
		w.Workers = defaultWorkers
	}
	if w.StepAttempts <= 0 {
		w.StepAttempts = defaultStepAttempts
	}
	if w.RetryInitialMillis <= 0 {
		w.RetryInitialMillis = defaultRetryInitialMillis
	}
	if w.RetryMaxMillis <= 0 {
		w.RetryMaxMillis = defaultRetryMaxMillis
	}
	if w.FeedFetchTimeout <= 0 {
		w.FeedFetchTimeout = defaultFeedFetchTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TEANGA_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
