package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vellum/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VELLUM_API_KEY", "test-key")

	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Workflow.BatchSize != 1 {
		t.Fatalf("expected default batch size 1, got %d", cfg.Workflow.BatchSize)
	}
	if cfg.Retry.RateLimitWaitSeconds != 65 {
		t.Fatalf("expected default rate limit wait 65, got %d", cfg.Retry.RateLimitWaitSeconds)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected api key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
workspace_dir = "` + filepath.Join(dir, "ws") + `"
output_dir = "` + filepath.Join(dir, "out") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[llm]
api_key = "sk-test"
model = "  some/model  "

[workflow]
batch_size = 4
stuck_timeout_minutes = 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.LLM.Model != "some/model" {
		t.Fatalf("expected trimmed model, got %q", cfg.LLM.Model)
	}
	if cfg.Workflow.BatchSize != 4 {
		t.Fatalf("expected batch size 4, got %d", cfg.Workflow.BatchSize)
	}
	if got := cfg.StuckTimeout().Minutes(); got != 10 {
		t.Fatalf("expected stuck timeout 10m, got %v", got)
	}
	if cfg.ManifestPath() != filepath.Join(cfg.Paths.WorkspaceDir, "manifest.json") {
		t.Fatalf("unexpected manifest path %q", cfg.ManifestPath())
	}
}

func TestValidateRejectsMissingAPIKey(t *testing.T) {
	t.Setenv("VELLUM_API_KEY", "")

	_, _, _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil {
		t.Fatal("expected validation error without api key")
	}
	if !strings.Contains(err.Error(), "llm.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadLogging(t *testing.T) {
	t.Setenv("VELLUM_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[workflow]") {
		t.Fatal("sample config missing workflow section")
	}
}
