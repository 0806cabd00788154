// Package daemon ties the pipeline together: it enforces single-instance
// execution per workspace with a file lock and drives the producer and
// consumer, either sequentially or as concurrent halves of one run.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"vellum/internal/config"
	"vellum/internal/consumer"
	"vellum/internal/logging"
	"vellum/internal/manifest"
	"vellum/internal/producer"
)

// Pipeline coordinates one full illustration run.
type Pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *manifest.Store
	producer *producer.Producer
	consumer *consumer.Consumer

	lockPath string
	lock     *flock.Flock
}

// New constructs a pipeline with initialized dependencies.
func New(cfg *config.Config, store *manifest.Store, p *producer.Producer, c *consumer.Consumer, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil || store == nil || p == nil || c == nil || logger == nil {
		return nil, errors.New("pipeline requires config, store, producer, consumer, and logger")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "vellum.lock")
	return &Pipeline{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "pipeline"),
		store:    store,
		producer: p,
		consumer: c,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// LockPath returns the path of the single-instance lock file.
func (p *Pipeline) LockPath() string {
	return p.lockPath
}

// Run executes the pipeline over the book at bookPath. With concurrent set,
// the producer and consumer run side by side and the consumer starts
// rendering as soon as the catalog is published; otherwise the consumer
// starts only after the producer finishes.
func (p *Pipeline) Run(ctx context.Context, bookPath string, concurrent bool) error {
	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("pipeline: acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("pipeline: another instance is already running (lock %s)", p.lockPath)
	}
	defer func() {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	p.logger.Info("pipeline started",
		logging.String("book", bookPath),
		logging.Bool("concurrent", concurrent),
		logging.String(logging.FieldWorkerID, p.store.WorkerID()),
	)

	if concurrent {
		err = p.runConcurrent(ctx, bookPath)
	} else {
		err = p.runSequential(ctx, bookPath)
	}
	if err != nil {
		return err
	}

	health, err := p.store.Health(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: read final state: %w", err)
	}
	p.logger.Info("pipeline finished",
		logging.Int("illustrated", health.Illustrated),
		logging.Int("failed", health.Failed),
	)
	if health.Failed > 0 {
		return fmt.Errorf("pipeline: %d of %d units failed", health.Failed, health.Total)
	}
	return nil
}

func (p *Pipeline) runSequential(ctx context.Context, bookPath string) error {
	if err := p.producer.Run(ctx, bookPath); err != nil {
		return err
	}
	return p.consumer.Run(ctx)
}

func (p *Pipeline) runConcurrent(ctx context.Context, bookPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		producerErr error
		consumerErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		if producerErr = p.producer.Run(ctx, bookPath); producerErr != nil {
			// Without a finished producer the consumer can never drain.
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		if consumerErr = p.consumer.Run(ctx); consumerErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if producerErr != nil {
		return producerErr
	}
	return consumerErr
}
