// Package testsupport provides shared constructors for package tests:
// configs seeded with per-test temp directories and manifest stores wired
// to them.
package testsupport

import (
	"path/filepath"
	"testing"

	"vellum/internal/config"
	"vellum/internal/logging"
	"vellum/internal/manifest"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.LLM.APIKey = "test-key"
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.CatalogPollInterval = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBatchSize sets the workflow batch size on the test config.
func WithBatchSize(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.BatchSize = n
	}
}

// MustOpenStore opens a manifest store against the test config and fails
// the test on error.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...manifest.StoreOption) *manifest.Store {
	t.Helper()

	store, err := manifest.Open(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("open manifest store: %v", err)
	}
	return store
}

// SeedUnits registers n pending units with sequential ids and ordinals.
func SeedUnits(t testing.TB, store *manifest.Store, n int) {
	t.Helper()

	seeds := make([]manifest.UnitSeed, 0, n)
	for i := 1; i <= n; i++ {
		seeds = append(seeds, manifest.UnitSeed{
			ID:      i,
			Ordinal: i,
			Title:   "Chapter",
		})
	}
	if err := store.RegisterUnits(t.Context(), seeds); err != nil {
		t.Fatalf("register units: %v", err)
	}
}
