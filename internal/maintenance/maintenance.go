// Package maintenance implements operator commands over the job store:
// filtered listings, removal, requeueing, file verification, and export.
// These are projections and explicit resets; the download state machine
// never calls into this package.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fetchq/internal/adapter/sqlite"
	"fetchq/internal/domain"
)

// Service bundles maintenance operations. It talks to the concrete SQLite
// repository because several operations (pattern removal, vacuum) have no
// place on the domain port.
type Service struct {
	repo   *sqlite.Repository
	logger *slog.Logger
}

// NewService creates a maintenance service.
func NewService(repo *sqlite.Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ListFilter narrows List output.
type ListFilter struct {
	Status       domain.Status
	Extractor    string
	MinRetries   int
	Limit        int
	MissingFiles bool // downloaded rows whose file is gone from disk
}

// List returns jobs matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Job, error) {
	if filter.MissingFiles {
		return s.missingFiles(ctx)
	}
	return s.repo.List(ctx, sqlite.ListOptions{
		Status:     filter.Status,
		Extractor:  filter.Extractor,
		MinRetries: filter.MinRetries,
		Limit:      filter.Limit,
	})
}

func (s *Service) missingFiles(ctx context.Context) ([]domain.Job, error) {
	downloaded, err := s.repo.List(ctx, sqlite.ListOptions{Status: domain.StatusDownloaded})
	if err != nil {
		return nil, err
	}
	var missing []domain.Job
	for _, job := range downloaded {
		if job.FinalFilename == "" {
			continue
		}
		if _, err := os.Stat(job.FinalFilename); os.IsNotExist(err) {
			missing = append(missing, job)
		}
	}
	return missing, nil
}

// FindByURLPattern returns jobs whose URL matches the SQL LIKE pattern.
func (s *Service) FindByURLPattern(ctx context.Context, pattern string) ([]domain.Job, error) {
	return s.repo.FindByURLPattern(ctx, pattern)
}

// StatusCounts returns the per-status histogram, zero-filled.
func (s *Service) StatusCounts(ctx context.Context) (map[domain.Status]int, int, error) {
	counts, err := s.repo.StatusCounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	total := 0
	for _, status := range domain.AllStatuses() {
		if _, ok := counts[status]; !ok {
			counts[status] = 0
		}
	}
	for _, count := range counts {
		total += count
	}
	return counts, total, nil
}

// Requeue resets the given jobs to pending with a fresh retry budget.
// Used for both operator retry of failed jobs and redownload of
// completed ones; download metadata is cleared either way.
func (s *Service) Requeue(ctx context.Context, ids []int64) (int64, error) {
	count, err := s.repo.Requeue(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("requeued jobs", "count", count)
	return count, nil
}

// RetryAllFailed requeues every failed job.
func (s *Service) RetryAllFailed(ctx context.Context) (int64, error) {
	failed, err := s.repo.List(ctx, sqlite.ListOptions{Status: domain.StatusFailed})
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(failed))
	for _, job := range failed {
		ids = append(ids, job.ID)
	}
	return s.Requeue(ctx, ids)
}

// RemoveFilter selects jobs for removal. Exactly one of IDs, URLPattern,
// or Status should be set.
type RemoveFilter struct {
	IDs        []int64
	URLPattern string
	Status     domain.Status
	OlderThan  time.Duration // with Status: only rows requested before now-OlderThan
	DryRun     bool
}

// Remove deletes matching jobs and returns how many rows were (or would
// be) removed.
func (s *Service) Remove(ctx context.Context, filter RemoveFilter) (int64, error) {
	switch {
	case len(filter.IDs) > 0:
		if filter.DryRun {
			return int64(len(filter.IDs)), nil
		}
		return s.repo.RemoveByIDs(ctx, filter.IDs)
	case filter.URLPattern != "":
		if filter.DryRun {
			return s.repo.CountByURLPattern(ctx, filter.URLPattern)
		}
		return s.repo.RemoveByURLPattern(ctx, filter.URLPattern)
	case filter.Status != "":
		var before *time.Time
		if filter.OlderThan > 0 {
			cutoff := time.Now().Add(-filter.OlderThan)
			before = &cutoff
		}
		if filter.DryRun {
			return s.repo.CountByStatus(ctx, filter.Status, before)
		}
		return s.repo.RemoveByStatus(ctx, filter.Status, before)
	default:
		return 0, fmt.Errorf("remove filter selects nothing")
	}
}

// VerifyResult summarizes a file verification pass.
type VerifyResult struct {
	TotalDownloaded int
	Found           int
	Missing         []domain.Job
}

// VerifyFiles checks that every downloaded file still exists on disk.
// With requeue, records for missing files go back to pending; with purge,
// they are deleted instead.
func (s *Service) VerifyFiles(ctx context.Context, requeue, purge bool) (*VerifyResult, error) {
	downloaded, err := s.repo.List(ctx, sqlite.ListOptions{Status: domain.StatusDownloaded})
	if err != nil {
		return nil, err
	}
	missing, err := s.missingFiles(ctx)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		TotalDownloaded: len(downloaded),
		Found:           len(downloaded) - len(missing),
		Missing:         missing,
	}
	if len(missing) == 0 {
		return result, nil
	}

	ids := make([]int64, 0, len(missing))
	for _, job := range missing {
		ids = append(ids, job.ID)
	}
	switch {
	case requeue:
		if _, err := s.Requeue(ctx, ids); err != nil {
			return nil, err
		}
	case purge:
		if _, err := s.repo.RemoveByIDs(ctx, ids); err != nil {
			return nil, err
		}
		s.logger.Info("purged records for missing files", "count", len(ids))
	}
	return result, nil
}

// CleanupResult summarizes a database cleanup pass.
type CleanupResult struct {
	SpaceSavedKB    int64
	VacuumPerformed bool
}

// Cleanup compacts the database file and reports the space reclaimed.
// A dry run only previews; nothing is touched.
func (s *Service) Cleanup(ctx context.Context, dryRun bool) (*CleanupResult, error) {
	if dryRun {
		return &CleanupResult{}, nil
	}

	before := databaseSize(s.repo.Path())
	if err := s.repo.Vacuum(ctx); err != nil {
		return nil, err
	}
	after := databaseSize(s.repo.Path())

	result := &CleanupResult{VacuumPerformed: true}
	if before > after {
		result.SpaceSavedKB = (before - after) / 1024
	}
	s.logger.Info("database cleanup complete", "space_saved_kb", result.SpaceSavedKB)
	return result, nil
}

func databaseSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
