package worker

import (
	"context"
	"log/slog"
	"time"

	"fetchq/internal/domain"
)

// Worker polls for pending jobs and drives them through the queue, one
// job at a time. All claim and retry semantics live in domain.Queue; the
// worker only supplies the clock.
type Worker struct {
	queue        *domain.Queue
	pollInterval time.Duration
	logger       *slog.Logger
}

// New creates a worker.
func New(queue *domain.Queue, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:        queue,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run polls until the context is cancelled. The sleep between cycles is
// the only cancellation point; an in-flight download runs to completion.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started, polling for pending downloads", "interval", w.pollInterval)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	pending, err := w.queue.Pending(ctx)
	if err != nil {
		// Storage trouble aborts this cycle, not the daemon.
		w.logger.Error("poll failed", "error", err)
		return
	}
	if len(pending) == 0 {
		w.logger.Debug("no pending downloads")
		return
	}

	w.logger.Info("found pending downloads", "count", len(pending))
	for i := range pending {
		if ctx.Err() != nil {
			return
		}
		job := pending[i]
		if err := w.queue.Process(ctx, &job); err != nil {
			// Unexpected fault: the job stays in downloading for an
			// operator to inspect.
			w.logger.Error("job processing fault", "id", job.ID, "url", job.URL, "error", err)
		}
	}
}
