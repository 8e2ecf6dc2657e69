package main

import (
	"log/slog"
	"os"

	"fetchq/internal/adapter/sqlite"
	"fetchq/internal/adapter/ytdlp"
	"fetchq/internal/config"
	"fetchq/internal/domain"
	"fetchq/internal/logging"
	"fetchq/internal/maintenance"
)

// appContext lazily wires shared dependencies for the CLI commands.
type appContext struct {
	configFlag *string

	cfg    *config.Config
	logger *slog.Logger
	repo   *sqlite.Repository
}

func newAppContext(configFlag *string) *appContext {
	return &appContext{configFlag: configFlag}
}

func (c *appContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *appContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.logger = logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: os.Stderr,
	})
	return c.logger, nil
}

func (c *appContext) ensureRepo() (*sqlite.Repository, error) {
	if c.repo != nil {
		return c.repo, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	repo, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	c.repo = repo
	return repo, nil
}

// queue builds the full queue service, downloader included.
func (c *appContext) queue() (*domain.Queue, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	repo, err := c.ensureRepo()
	if err != nil {
		return nil, err
	}

	downloader := ytdlp.New(ytdlp.Options{
		Binary:    cfg.YtDlp.Binary,
		Format:    cfg.YtDlp.Format,
		TargetDir: cfg.TargetDir,
		ExtraArgs: cfg.YtDlp.ExtraArgs,
	}, logger)

	return domain.NewQueue(repo, downloader, cfg.MaxRetries, logger), nil
}

func (c *appContext) maintenance() (*maintenance.Service, error) {
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	repo, err := c.ensureRepo()
	if err != nil {
		return nil, err
	}
	return maintenance.NewService(repo, logger), nil
}

func (c *appContext) close() error {
	if c.repo == nil {
		return nil
	}
	err := c.repo.Close()
	c.repo = nil
	return err
}
