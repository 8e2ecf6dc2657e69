package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Queue orchestrates all job state transitions. It is the only component
// that mutates the repository on behalf of callers: both the daemon loop
// and the immediate add-and-download path go through Process, so the claim
// protocol lives in exactly one place.
type Queue struct {
	repo       JobRepository
	downloader Downloader
	maxRetries int
	logger     *slog.Logger
}

// NewQueue creates a queue service.
func NewQueue(repo JobRepository, downloader Downloader, maxRetries int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		repo:       repo,
		downloader: downloader,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// MaxRetries returns the configured retry budget.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue adds a URL to the queue. When the URL is already present the
// existing job is returned with accepted=false; a duplicate is not a fault.
func (q *Queue) Enqueue(ctx context.Context, rawURL string) (*Job, bool, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, false, ErrInvalidURL
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, false, ErrInvalidURL
	}

	job, err := q.repo.Create(ctx, trimmed)
	if err == nil {
		q.logger.Info("URL added to queue", "id", job.ID, "url", job.URL)
		return job, true, nil
	}
	if !errors.Is(err, ErrDuplicateURL) {
		return nil, false, fmt.Errorf("enqueue %s: %w", trimmed, err)
	}

	existing, getErr := q.repo.GetByURL(ctx, trimmed)
	if getErr != nil {
		return nil, false, fmt.Errorf("resolve duplicate %s: %w", trimmed, getErr)
	}
	q.logger.Warn("URL already in queue", "id", existing.ID, "status", existing.Status)
	return existing, false, nil
}

// Get retrieves a job by ID.
func (q *Queue) Get(ctx context.Context, id int64) (*Job, error) {
	if id <= 0 {
		return nil, ErrInvalidID
	}
	return q.repo.GetByID(ctx, id)
}

// Pending returns the current snapshot of pending jobs.
func (q *Queue) Pending(ctx context.Context) ([]Job, error) {
	return q.repo.FindPending(ctx)
}

// Length returns the total number of jobs in the queue.
func (q *Queue) Length(ctx context.Context) (int, error) {
	return q.repo.Length(ctx)
}

// StatusCounts returns the per-status histogram, zero-filled for all
// known statuses.
func (q *Queue) StatusCounts(ctx context.Context) (map[Status]int, error) {
	counts, err := q.repo.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, status := range allStatuses {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	return counts, nil
}

// Process claims a pending job and drives it to its next state: downloaded
// on success, pending again while the retry budget lasts, failed once it is
// exhausted. Losing the claim race is silent success. An unexpected fault
// leaves the row in downloading and is returned for operator attention.
func (q *Queue) Process(ctx context.Context, job *Job) error {
	if job == nil || job.ID <= 0 {
		return ErrInvalidID
	}

	if err := q.repo.Claim(ctx, job.ID); err != nil {
		if errors.Is(err, ErrClaimLost) {
			q.logger.Debug("skipping job, already claimed", "id", job.ID)
			return nil
		}
		return fmt.Errorf("claim job %d: %w", job.ID, err)
	}

	q.logger.Info("downloading", "id", job.ID, "url", job.URL)

	result, err := q.downloader.Fetch(ctx, job.URL)
	if err == nil {
		if err := q.repo.MarkDownloaded(ctx, job.ID, result.Filename, result.Extractor); err != nil {
			return fmt.Errorf("record download %d: %w", job.ID, err)
		}
		q.logger.Info("downloaded", "id", job.ID, "file", result.Filename, "extractor", result.Extractor)
		return nil
	}

	var transient *TransientError
	if !errors.As(err, &transient) {
		// Not a download failure. Leave the row in downloading so an
		// operator can inspect it; the retry budget does not apply.
		return fmt.Errorf("job %d: unexpected fault: %w", job.ID, err)
	}

	retries, rerr := q.repo.IncrementRetries(ctx, job.ID)
	if rerr != nil {
		return fmt.Errorf("increment retries %d: %w", job.ID, rerr)
	}

	if retries >= q.maxRetries {
		if err := q.repo.MarkFailed(ctx, job.ID); err != nil {
			return fmt.Errorf("mark failed %d: %w", job.ID, err)
		}
		q.logger.Error("download failed permanently",
			"id", job.ID, "url", job.URL, "retries", retries, "error", transient.Err)
		return nil
	}

	if err := q.repo.ResetToPending(ctx, job.ID); err != nil {
		return fmt.Errorf("reset to pending %d: %w", job.ID, err)
	}
	q.logger.Warn("download failed, will retry",
		"id", job.ID, "url", job.URL, "attempt", retries, "max", q.maxRetries, "error", transient.Err)
	return nil
}
