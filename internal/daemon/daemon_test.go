package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vellum/internal/catalog"
	"vellum/internal/config"
	"vellum/internal/consumer"
	"vellum/internal/daemon"
	"vellum/internal/llm"
	"vellum/internal/logging"
	"vellum/internal/manifest"
	"vellum/internal/producer"
	"vellum/internal/retry"
	"vellum/internal/testsupport"
)

type fakeModel struct {
	analyzeErrFor map[string]error
}

func (f *fakeModel) ExtractReferences(ctx context.Context, title, text string) ([]catalog.Entity, llm.Usage, error) {
	return []catalog.Entity{
		{Name: "Mirabel", Category: "character", Description: "A cartographer.", Citations: []string{title}},
	}, llm.Usage{}, nil
}

func (f *fakeModel) AnalyzeScenes(ctx context.Context, title, text string, refs *catalog.Catalog) (*manifest.Analysis, llm.Usage, error) {
	if err := f.analyzeErrFor[title]; err != nil {
		return nil, llm.Usage{}, err
	}
	return &manifest.Analysis{
		Summary: "Summary of " + title,
		Scenes:  []manifest.Scene{{Index: 1, Summary: "A scene in " + title}},
	}, llm.Usage{}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return []byte("png:" + prompt), nil
}

func (fakeRenderer) ScenePrompt(scene manifest.Scene, refs *catalog.Catalog) string {
	return scene.Summary
}

func writePipelineBook(t *testing.T, chapters int) string {
	t.Helper()
	var content string
	for i := 1; i <= chapters; i++ {
		content += fmt.Sprintf("# Chapter Title %d\n\nProse for chapter %d.\n\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "book.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write book: %v", err)
	}
	return path
}

func newPipeline(t *testing.T, cfg *config.Config, model producer.Client) *daemon.Pipeline {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	policy := retry.Policy{MaxAttempts: 1}
	p := producer.New(cfg, store, model, policy, logger)
	quickPoll := consumer.WithSleep(func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil
		}
	})
	c := consumer.New(cfg, store, fakeRenderer{}, policy, logger, quickPoll)
	pipeline, err := daemon.New(cfg, store, p, c, logger)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	return pipeline
}

func verifyFinished(t *testing.T, cfg *config.Config, chapters int) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	health, err := store.Health(t.Context())
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Illustrated != chapters || !health.ConsumerComplete {
		t.Fatalf("pipeline did not finish: %+v", health)
	}
	for i := 1; i <= chapters; i++ {
		name := fmt.Sprintf("chapter_%03d_scene_01.png", i)
		if _, err := os.Stat(filepath.Join(cfg.IllustrationsDir(), name)); err != nil {
			t.Errorf("missing illustration %s: %v", name, err)
		}
	}
}

func TestRunSequentialEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pipeline := newPipeline(t, cfg, &fakeModel{})

	if err := pipeline.Run(t.Context(), writePipelineBook(t, 2), false); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	verifyFinished(t, cfg, 2)
}

func TestRunConcurrentEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pipeline := newPipeline(t, cfg, &fakeModel{})

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	if err := pipeline.Run(ctx, writePipelineBook(t, 3), true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	verifyFinished(t, cfg, 3)
}

func TestRunRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pipeline := newPipeline(t, cfg, &fakeModel{})

	other := flock.New(pipeline.LockPath())
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	if err := pipeline.Run(t.Context(), writePipelineBook(t, 1), false); err == nil {
		t.Fatal("expected second instance to be rejected")
	}
}

func TestRunReportsFailedUnits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	model := &fakeModel{analyzeErrFor: map[string]error{"Chapter Title 2": errors.New("model refused")}}
	pipeline := newPipeline(t, cfg, model)

	err := pipeline.Run(t.Context(), writePipelineBook(t, 2), false)
	if err == nil {
		t.Fatal("expected error when units fail")
	}

	store := testsupport.MustOpenStore(t, cfg)
	health, healthErr := store.Health(t.Context())
	if healthErr != nil {
		t.Fatalf("Health failed: %v", healthErr)
	}
	if health.Illustrated != 1 || health.Failed != 1 {
		t.Fatalf("expected partial completion, got %+v", health)
	}
}
