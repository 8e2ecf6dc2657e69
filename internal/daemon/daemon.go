// Package daemon ties the polling worker and the optional HTTP API into a
// single lifecycle with flock-based single-instance locking.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	httpapi "fetchq/internal/adapter/http"
	"fetchq/internal/config"
	"fetchq/internal/domain"
	"fetchq/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// Daemon runs the background download loop. A lock file next to the
// database keeps a second daemon from starting against the same queue;
// correctness still rests on the claim protocol, the lock is operator
// convenience.
type Daemon struct {
	cfg    *config.Config
	queue  *domain.Queue
	worker *worker.Worker
	api    *httpapi.Server
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
}

// New constructs a daemon.
func New(cfg *config.Config, queue *domain.Queue, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || queue == nil {
		return nil, errors.New("daemon requires config and queue")
	}
	if logger == nil {
		logger = slog.Default()
	}

	lockPath := filepath.Join(filepath.Dir(cfg.DatabasePath), "fetchq.lock")
	d := &Daemon{
		cfg:      cfg,
		queue:    queue,
		worker:   worker.New(queue, cfg.PollInterval(), logger),
		logger:   logger,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if cfg.API.Enabled {
		d.api = httpapi.NewServer(queue, cfg.API.Addr, logger)
	}
	return d, nil
}

// Run acquires the daemon lock and polls until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", d.lockPath, err)
	}
	if !ok {
		return fmt.Errorf("another fetchq daemon is already running (lock %s)", d.lockPath)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", "error", err)
		}
	}()

	d.logger.Info("daemon started", "lock", d.lockPath, "db", d.cfg.DatabasePath)

	if d.api != nil {
		go func() {
			d.logger.Info("HTTP API listening", "addr", d.api.Addr())
			if err := d.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("HTTP API error", "error", err)
			}
		}()
	}

	d.worker.Run(ctx)

	if d.api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.api.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("HTTP API shutdown error", "error", err)
		}
	}

	d.logger.Info("daemon stopped")
	return nil
}

// LockPath returns the daemon lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}
