package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vellum/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set VELLUM_API_KEY env var or edit %s (create with 'vellum config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.CatalogPollInterval > c.Workflow.CatalogWaitTimeout {
		return errors.New("workflow.catalog_poll_interval must not exceed workflow.catalog_wait_timeout")
	}
	if c.Workflow.BatchSize > 64 {
		return errors.New("workflow.batch_size must be 64 or less")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.BaseDelaySeconds > c.Retry.MaxDelaySeconds {
		return errors.New("retry.base_delay_seconds must not exceed retry.max_delay_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
