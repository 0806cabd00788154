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
	c.normalizeLLM()
	c.normalizeImages()
	c.normalizeWorkflow()
	c.normalizeRetry()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.APIKey == "" {
		if env := strings.TrimSpace(os.Getenv("VELLUM_API_KEY")); env != "" {
			c.LLM.APIKey = env
		}
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeImages() {
	c.Images.BaseURL = strings.TrimSpace(c.Images.BaseURL)
	c.Images.Model = strings.TrimSpace(c.Images.Model)
	c.Images.Size = strings.TrimSpace(c.Images.Size)
	if c.Images.BaseURL == "" {
		c.Images.BaseURL = defaultImagesBaseURL
	}
	if c.Images.Model == "" {
		c.Images.Model = defaultImagesModel
	}
	if c.Images.Size == "" {
		c.Images.Size = defaultImagesSize
	}
	if c.Images.TimeoutSeconds <= 0 {
		c.Images.TimeoutSeconds = defaultImagesTimeoutSeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.CatalogPollInterval <= 0 {
		c.Workflow.CatalogPollInterval = defaultCatalogPollInterval
	}
	if c.Workflow.CatalogWaitTimeout <= 0 {
		c.Workflow.CatalogWaitTimeout = defaultCatalogWaitTimeout
	}
	if c.Workflow.LockTimeout <= 0 {
		c.Workflow.LockTimeout = defaultLockTimeout
	}
	if c.Workflow.StuckTimeoutMinutes <= 0 {
		c.Workflow.StuckTimeoutMinutes = defaultStuckTimeoutMinutes
	}
	if c.Workflow.BatchSize <= 0 {
		c.Workflow.BatchSize = defaultBatchSize
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = defaultRetryMaxAttempts
	}
	if c.Retry.RateLimitWaitSeconds <= 0 {
		c.Retry.RateLimitWaitSeconds = defaultRateLimitWait
	}
	if c.Retry.BaseDelaySeconds <= 0 {
		c.Retry.BaseDelaySeconds = defaultRetryBaseDelay
	}
	if c.Retry.MaxDelaySeconds <= 0 {
		c.Retry.MaxDelaySeconds = defaultRetryMaxDelay
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
