package config

const (
	defaultDataDir                 = "~/.local/share/teanga"
	defaultLogDir                  = "~/.local/share/teanga/logs"
	defaultWhisperCacheDir         = "~/.cache/teanga/whisper"
	defaultAPIBind                 = "127.0.0.1:7915"
	defaultLogFormat               = "auto"
	defaultLogLevel                = "info"
	defaultSampleRate              = 16000
	defaultChannels                = 1
	defaultDownloadTimeoutSeconds  = 300
	defaultConvertTimeoutSeconds   = 600
	defaultWhisperModel            = "large-v3"
	defaultWhisperTimeoutSeconds   = 1800
	defaultLLMBaseURL              = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel                = "google/gemini-3-flash-preview"
	defaultLLMReferer              = "https://github.com/teanga-dev/teanga"
	defaultLLMTitle                = "Teanga Pipeline"
	defaultLLMTimeoutSeconds       = 120
	defaultQueuePollInterval       = 5
	defaultFeedScanInterval        = 1800
	defaultErrorRetryInterval      = 10
	defaultHeartbeatInterval       = 15
	defaultHeartbeatTimeout        = 120
	defaultWorkers                 = 2
	defaultStepAttempts            = 3
	defaultRetryInitialMillis      = 500
	defaultRetryMaxMillis          = 30000
	defaultFeedFetchTimeoutSeconds = 30
	defaultNotifyRequestTimeout    = 10
	defaultFeedLanguage            = "ga"
)

// Default returns a Config populated with repository defaults, including the
// Raidió na Gaeltachta feed table the project ships with.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Feeds: []Feed{
			{Source: "rnag", Show: "adhmhaidin", URL: "https://www.rte.ie/radio1/podcast/podcast_adhmhaidin.xml", Language: defaultFeedLanguage},
			{Source: "rnag", Show: "barrscealta", URL: "https://www.rte.ie/radio1/podcast/podcast_barrscealta.xml", Language: defaultFeedLanguage},
			{Source: "rnag", Show: "bladhaire", URL: "https://www.rte.ie/radio1/podcast/podcast_bladhairernag.xml", Language: defaultFeedLanguage},
			{Source: "rnag", Show: "ardtrathnona", URL: "https://www.rte.ie/radio1/podcast/podcast_ardtrathnona.xml", Language: defaultFeedLanguage},
		},
		Audio: Audio{
			SampleRate:             defaultSampleRate,
			Channels:               defaultChannels,
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
			ConvertTimeoutSeconds:  defaultConvertTimeoutSeconds,
		},
		Whisper: Whisper{
			Model:          defaultWhisperModel,
			CacheDir:       defaultWhisperCacheDir,
			TimeoutSeconds: defaultWhisperTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			FeedScanInterval:   defaultFeedScanInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			Workers:            defaultWorkers,
			StepAttempts:       defaultStepAttempts,
			RetryInitialMillis: defaultRetryInitialMillis,
			RetryMaxMillis:     defaultRetryMaxMillis,
			FeedFetchTimeout:   defaultFeedFetchTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
			Queue:          true,
		},
	}
}
