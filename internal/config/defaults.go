package config

const (
	defaultWorkspaceDir = "~/.local/share/vellum/workspace"
	defaultOutputDir    = "~/vellum-output"
	defaultLogDir       = "~/.local/share/vellum/logs"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/vellum-press/vellum"
	defaultLLMTitle          = "Vellum Illustration Pipeline"
	defaultLLMTimeoutSeconds = 120

	defaultImagesBaseURL        = "https://openrouter.ai/api/v1/images/generations"
	defaultImagesModel          = "google/gemini-3-flash-image"
	defaultImagesSize           = "1024x1024"
	defaultImagesTimeoutSeconds = 300

	defaultPollInterval        = 5
	defaultCatalogPollInterval = 2
	defaultCatalogWaitTimeout  = 1800
	defaultLockTimeout         = 30
	defaultStuckTimeoutMinutes = 30
	defaultBatchSize           = 1

	defaultRetryMaxAttempts   = 5
	defaultRateLimitWait      = 65
	defaultRetryBaseDelay     = 2
	defaultRetryMaxDelay      = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			OutputDir:    defaultOutputDir,
			LogDir:       defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Images: Images{
			BaseURL:        defaultImagesBaseURL,
			Model:          defaultImagesModel,
			Size:           defaultImagesSize,
			TimeoutSeconds: defaultImagesTimeoutSeconds,
		},
		Workflow: Workflow{
			PollInterval:        defaultPollInterval,
			CatalogPollInterval: defaultCatalogPollInterval,
			CatalogWaitTimeout:  defaultCatalogWaitTimeout,
			LockTimeout:         defaultLockTimeout,
			StuckTimeoutMinutes: defaultStuckTimeoutMinutes,
			BatchSize:           defaultBatchSize,
		},
		Retry: Retry{
			MaxAttempts:          defaultRetryMaxAttempts,
			RateLimitWaitSeconds: defaultRateLimitWait,
			BaseDelaySeconds:     defaultRetryBaseDelay,
			MaxDelaySeconds:      defaultRetryMaxDelay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
