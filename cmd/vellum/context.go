package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"vellum/internal/config"
	"vellum/internal/consumer"
	"vellum/internal/daemon"
	"vellum/internal/llm"
	"vellum/internal/logging"
	"vellum/internal/manifest"
	"vellum/internal/producer"
	"vellum/internal/retry"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger() (*config.Config, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stderr",
			filepath.Join(cfg.Paths.LogDir, "vellum.log"),
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (c *commandContext) openStore(logger *slog.Logger) (*config.Config, *manifest.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := manifest.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func (c *commandContext) newProducer(logger *slog.Logger) (*config.Config, *producer.Producer, error) {
	cfg, store, err := c.openStore(logger)
	if err != nil {
		return nil, nil, err
	}
	policy := retry.FromConfig(cfg.Retry, logger)
	return cfg, producer.New(cfg, store, llm.NewClient(cfg.LLM), policy, logger), nil
}

func (c *commandContext) newConsumer(logger *slog.Logger) (*config.Config, *consumer.Consumer, error) {
	cfg, store, err := c.openStore(logger)
	if err != nil {
		return nil, nil, err
	}
	policy := retry.FromConfig(cfg.Retry, logger)
	images := llm.NewImageClient(cfg.Images, cfg.LLM.APIKey)
	return cfg, consumer.New(cfg, store, images, policy, logger), nil
}

// newPipeline wires the full dependency graph for run.
func (c *commandContext) newPipeline(logger *slog.Logger) (*config.Config, *manifest.Store, *daemon.Pipeline, error) {
	cfg, store, err := c.openStore(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	policy := retry.FromConfig(cfg.Retry, logger)
	p := producer.New(cfg, store, llm.NewClient(cfg.LLM), policy, logger)
	con := consumer.New(cfg, store, llm.NewImageClient(cfg.Images, cfg.LLM.APIKey), policy, logger)
	pipeline, err := daemon.New(cfg, store, p, con, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, store, pipeline, nil
}

// signalContext cancels on SIGINT/SIGTERM so an interrupted worker releases
// its locks and leaves the manifest consistent.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
