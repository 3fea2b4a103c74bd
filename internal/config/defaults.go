package config

const (
	defaultDataDir = "~/.local/share/earmark"
	defaultLogDir  = "~/.local/share/earmark/logs"
	defaultAPIBind = "127.0.0.1:8743"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultTranscriptionBackend = "whisper"
	defaultTranscriptionBaseURL = "http://127.0.0.1:8178/inference"
	defaultTranscriptionLang    = "en"

	defaultChatBackend    = "openai"
	defaultShallowBaseURL = "http://127.0.0.1:8080/v1/chat/completions"
	defaultDeepBaseURL    = "https://api.openai.com/v1/chat/completions"
	defaultSemanticURL    = "http://127.0.0.1:8081/v1/embeddings"

	defaultModelTimeoutSeconds = 60

	defaultShallowContextWindow = 6
	defaultShallowMaxTokens     = 128
	defaultShallowTemperature   = 0.2

	defaultDeepContextWindow  = 10
	defaultDeepTemperature    = 0.3
	defaultRecentFlagLimit    = 10
	defaultDeepMaxInFlight    = 1

	defaultSimilarityThreshold = 0.82
	defaultContextMinutes      = 10
	defaultContextLimit        = 200

	defaultEmitIntervalMS         = 50
	defaultQueuePollTimeoutMS     = 250
	defaultQueueCapacity          = 1024
	defaultOverflowPolicy         = "block"
	defaultShutdownTimeoutSeconds = 5
	defaultNearDuplicateThreshold = 0.85
	defaultHeartbeatSeconds       = 5
	defaultSubscriberMailbox      = 100
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Transcription: Transcription{
			Backend:        defaultTranscriptionBackend,
			BaseURL:        defaultTranscriptionBaseURL,
			TimeoutSeconds: defaultModelTimeoutSeconds,
			Language:       defaultTranscriptionLang,
		},
		Shallow: Shallow{
			Backend:        defaultChatBackend,
			BaseURL:        defaultShallowBaseURL,
			TimeoutSeconds: defaultModelTimeoutSeconds,
			Temperature:    defaultShallowTemperature,
			MaxTokens:      defaultShallowMaxTokens,
			ContextWindow:  defaultShallowContextWindow,
		},
		Deep: Deep{
			Backend:         defaultChatBackend,
			BaseURL:         defaultDeepBaseURL,
			TimeoutSeconds:  defaultModelTimeoutSeconds,
			Temperature:     defaultDeepTemperature,
			ContextWindow:   defaultDeepContextWindow,
			RecentFlagLimit: defaultRecentFlagLimit,
			MaxInFlight:     defaultDeepMaxInFlight,
		},
		Semantic: Semantic{
			Backend:             defaultChatBackend,
			BaseURL:             defaultSemanticURL,
			TimeoutSeconds:      defaultModelTimeoutSeconds,
			SimilarityThreshold: defaultSimilarityThreshold,
			ContextMinutes:      defaultContextMinutes,
			ContextLimit:        defaultContextLimit,
		},
		Pipeline: Pipeline{
			EmitIntervalMS:         defaultEmitIntervalMS,
			QueuePollTimeoutMS:     defaultQueuePollTimeoutMS,
			QueueCapacity:          defaultQueueCapacity,
			OverflowPolicy:         defaultOverflowPolicy,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
			NearDuplicateThreshold: defaultNearDuplicateThreshold,
			HeartbeatSeconds:       defaultHeartbeatSeconds,
			SubscriberMailbox:      defaultSubscriberMailbox,
		},
	}
}
