package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
}

// LLM contains connection settings for the text analysis endpoint.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Images contains settings for the image generation endpoint.
type Images struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Size           string `toml:"size"`
	StylePrefix    string `toml:"style_prefix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains coordination timing and concurrency settings.
type Workflow struct {
	PollInterval        int `toml:"poll_interval"`
	CatalogPollInterval int `toml:"catalog_poll_interval"`
	CatalogWaitTimeout  int `toml:"catalog_wait_timeout"`
	LockTimeout         int `toml:"lock_timeout"`
	StuckTimeoutMinutes int `toml:"stuck_timeout_minutes"`
	BatchSize           int `toml:"batch_size"`
}

// Retry contains backoff policy settings for remote calls.
type Retry struct {
	MaxAttempts          int `toml:"max_attempts"`
	RateLimitWaitSeconds int `toml:"rate_limit_wait_seconds"`
	BaseDelaySeconds     int `toml:"base_delay_seconds"`
	MaxDelaySeconds      int `toml:"max_delay_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vellum.
//
// Configuration sections by subsystem:
//   - Paths: workspace (manifest, catalog, illustrations), output, and logs
//   - LLM: chat-completion endpoint used for both analysis passes
//   - Images: image generation endpoint used by the consumer
//   - Workflow: polling intervals, lock and stuck-unit timeouts, batch size
//   - Retry: rate-limit and transient backoff policy
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	LLM      LLM      `toml:"llm"`
	Images   Images   `toml:"images"`
	Workflow Workflow `toml:"workflow"`
	Retry    Retry    `toml:"retry"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vellum/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return
// value is the resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vellum.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.IllustrationsDir(), c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ManifestPath returns the path of the shared coordination manifest.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "manifest.json")
}

// CatalogPath returns the path of the reference catalog JSON artifact.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "catalog.json")
}

// CatalogDocumentPath returns the path of the rendered reference document.
func (c *Config) CatalogDocumentPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, "References.md")
}

// IllustrationsDir returns the directory holding generated images.
func (c *Config) IllustrationsDir() string {
	return filepath.Join(c.Paths.WorkspaceDir, "illustrations")
}

// PollInterval returns the consumer poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// CatalogPollInterval returns the catalog-ready poll interval as a duration.
func (c *Config) CatalogPollInterval() time.Duration {
	return time.Duration(c.Workflow.CatalogPollInterval) * time.Second
}

// CatalogWaitTimeout returns how long a consumer waits for the catalog gate.
func (c *Config) CatalogWaitTimeout() time.Duration {
	return time.Duration(c.Workflow.CatalogWaitTimeout) * time.Second
}

// LockTimeout returns the manifest lock acquisition bound.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Workflow.LockTimeout) * time.Second
}

// StuckTimeout returns how long a unit may sit in illustrating before the
// reaper resets it.
func (c *Config) StuckTimeout() time.Duration {
	return time.Duration(c.Workflow.StuckTimeoutMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
