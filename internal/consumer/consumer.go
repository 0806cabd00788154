// Package consumer runs the rendering half of the pipeline: it polls the
// manifest for analyzed units, claims them one at a time, renders an image
// per scene, and records the results. Stuck claims left behind by crashed
// workers are reclaimed on every poll, so a unit is never lost to a dead
// process.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"vellum/internal/atomicfile"
	"vellum/internal/catalog"
	"vellum/internal/config"
	"vellum/internal/logging"
	"vellum/internal/manifest"
	"vellum/internal/retry"
)

// ImageClient is the subset of the image API the consumer needs.
type ImageClient interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
	ScenePrompt(scene manifest.Scene, refs *catalog.Catalog) string
}

// Consumer renders illustrations for analyzed units.
type Consumer struct {
	cfg    *config.Config
	store  *manifest.Store
	images ImageClient
	policy retry.Policy
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes the consumer.
type Option func(*Consumer)

// WithSleep overrides how poll waits are performed (test hook).
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Consumer) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// New constructs a consumer.
func New(cfg *config.Config, store *manifest.Store, images ImageClient, policy retry.Policy, logger *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		cfg:    cfg,
		store:  store,
		images: images,
		policy: policy,
		logger: logging.WithComponent(logger, "consumer"),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run polls for work until every unit reaches a terminal status or ctx is
// cancelled. It blocks first until the producer publishes the reference
// catalog.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.store.WaitForCatalogReady(ctx, c.cfg.CatalogWaitTimeout()); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	refs, err := catalog.Load(c.cfg.CatalogPath())
	if err != nil {
		return fmt.Errorf("consumer: load catalog: %w", err)
	}
	c.logger.Info("catalog loaded; rendering started",
		logging.Int("entities", refs.Len()),
		logging.String(logging.FieldWorkerID, c.store.WorkerID()),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if reaped, err := c.store.ReapStuck(ctx); err != nil {
			return fmt.Errorf("consumer: reap stuck units: %w", err)
		} else if reaped > 0 {
			c.logger.Warn("reclaimed stuck units", logging.Int("count", reaped))
		}

		unit, err := c.store.ClaimNextReady(ctx)
		if err != nil {
			return fmt.Errorf("consumer: claim unit: %w", err)
		}
		if unit == nil {
			done, err := c.checkDrained(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			if err := c.sleep(ctx, c.cfg.PollInterval()); err != nil {
				return err
			}
			continue
		}

		// Claimed a unit; process it and immediately look for the next one.
		if err := c.processUnit(ctx, unit, refs); err != nil {
			return err
		}
	}
}

// checkDrained reports whether the pipeline is finished: the producer has
// registered everything it will, and no unit can become renderable anymore.
func (c *Consumer) checkDrained(ctx context.Context) (bool, error) {
	health, err := c.store.Health(ctx)
	if err != nil {
		return false, fmt.Errorf("consumer: read manifest: %w", err)
	}
	if !health.ProducerComplete {
		return false, nil
	}
	if health.Pending > 0 || health.Analyzed > 0 || health.Illustrating > 0 {
		return false, nil
	}
	if err := c.store.MarkConsumerComplete(ctx); err != nil {
		return false, fmt.Errorf("consumer: mark complete: %w", err)
	}
	c.logger.Info("rendering complete",
		logging.String(logging.FieldEventType, "consumer_complete"),
		logging.Int("illustrated", health.Illustrated),
		logging.Int("failed", health.Failed),
	)
	return true, nil
}

func (c *Consumer) processUnit(ctx context.Context, unit *manifest.Unit, refs *catalog.Catalog) error {
	// An analyzed unit without a payload means the manifest was edited
	// outside the pipeline. Fail it rather than crash the loop.
	if unit.Analysis == nil {
		err := fmt.Errorf("unit %d has no stored analysis", unit.ID)
		c.logger.Error("unit not renderable",
			logging.Int(logging.FieldUnitID, unit.ID),
			logging.Error(err),
		)
		if failErr := c.store.FailUnit(ctx, unit.ID, err); failErr != nil {
			return fmt.Errorf("consumer: record failure for unit %d: %w", unit.ID, failErr)
		}
		return nil
	}

	c.logger.Info("unit claimed",
		logging.Int(logging.FieldUnitID, unit.ID),
		logging.String("title", unit.Title),
		logging.Int("scenes", len(unit.Analysis.Scenes)),
	)

	images, metrics, err := c.renderScenes(ctx, unit, refs)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("unit rendering failed",
			logging.Int(logging.FieldUnitID, unit.ID),
			logging.Error(err),
		)
		if failErr := c.store.FailUnit(ctx, unit.ID, err); failErr != nil {
			return fmt.Errorf("consumer: record failure for unit %d: %w", unit.ID, failErr)
		}
		return nil
	}

	if err := c.store.CompleteUnit(ctx, unit.ID, manifest.CompletionResult{
		Images:  images,
		Metrics: metrics,
	}); err != nil {
		return fmt.Errorf("consumer: complete unit %d: %w", unit.ID, err)
	}
	c.logger.Info("unit illustrated",
		logging.Int(logging.FieldUnitID, unit.ID),
		logging.Int("images", len(images)),
	)
	return nil
}

// renderScenes produces one image per scene and returns the written paths.
// Already-existing scene files are kept, so re-rendering a reclaimed unit
// does not repeat finished work.
func (c *Consumer) renderScenes(ctx context.Context, unit *manifest.Unit, refs *catalog.Catalog) ([]string, manifest.Metrics, error) {
	var metrics manifest.Metrics
	dir := c.cfg.IllustrationsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, metrics, fmt.Errorf("create illustrations dir: %w", err)
	}

	var paths []string
	for _, scene := range unit.Analysis.Scenes {
		path := filepath.Join(dir, SceneFileName(unit.Ordinal, scene.Index))
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
			continue
		}

		prompt := c.images.ScenePrompt(scene, refs)
		var image []byte
		attempts, err := c.policy.Run(ctx, "render scene", func(ctx context.Context) error {
			var callErr error
			image, callErr = c.images.Generate(ctx, prompt)
			return callErr
		})
		metrics.Attempts += attempts
		if err != nil {
			return nil, metrics, fmt.Errorf("scene %d: %w", scene.Index, err)
		}
		if err := atomicfile.WriteFile(path, image); err != nil {
			return nil, metrics, fmt.Errorf("scene %d: %w", scene.Index, err)
		}
		paths = append(paths, path)
	}
	return paths, metrics, nil
}

// SceneFileName names a rendered scene so downstream compilation can sort
// pages by chapter and scene.
func SceneFileName(chapterOrdinal, sceneIndex int) string {
	return fmt.Sprintf("chapter_%03d_scene_%02d.png", chapterOrdinal, sceneIndex)
}
