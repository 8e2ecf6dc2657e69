package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fetchq/internal/domain"
)

// ListOptions filters maintenance listings. The zero value lists everything.
type ListOptions struct {
	Status     domain.Status // "" means all statuses
	Extractor  string
	MinRetries int
	Limit      int
}

func (o ListOptions) build() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if o.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, o.Status)
	}
	if o.Extractor != "" {
		clauses = append(clauses, "extractor = ?")
		args = append(args, o.Extractor)
	}
	if o.MinRetries > 0 {
		clauses = append(clauses, "retries >= ?")
		args = append(args, o.MinRetries)
	}

	query := `SELECT ` + jobColumns + ` FROM downloads`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp_requested DESC"
	if o.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, o.Limit)
	}
	return query, args
}

// List returns jobs matching the given filters, newest first.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]domain.Job, error) {
	query, args := opts.build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// FindByURLPattern returns jobs whose URL matches the SQL LIKE pattern.
func (r *Repository) FindByURLPattern(ctx context.Context, pattern string) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM downloads WHERE url LIKE ? ORDER BY timestamp_requested DESC`,
		pattern)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

func idPlaceholders(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

// RemoveByIDs deletes the given jobs and returns how many rows went away.
func (r *Repository) RemoveByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := idPlaceholders(ids)
	res, err := r.execWithRetry(ctx,
		`DELETE FROM downloads WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("remove by ids: %w", err)
	}
	return res.RowsAffected()
}

// RemoveByStatus deletes jobs in the given status, optionally only those
// requested before the cutoff.
func (r *Repository) RemoveByStatus(ctx context.Context, status domain.Status, before *time.Time) (int64, error) {
	query := `DELETE FROM downloads WHERE status = ?`
	args := []any{status}
	if before != nil {
		query += ` AND timestamp_requested < ?`
		args = append(args, before.UTC())
	}
	res, err := r.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("remove by status: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus counts jobs that RemoveByStatus would delete.
func (r *Repository) CountByStatus(ctx context.Context, status domain.Status, before *time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM downloads WHERE status = ?`
	args := []any{status}
	if before != nil {
		query += ` AND timestamp_requested < ?`
		args = append(args, before.UTC())
	}
	var count int64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// RemoveByURLPattern deletes jobs whose URL matches the SQL LIKE pattern.
func (r *Repository) RemoveByURLPattern(ctx context.Context, pattern string) (int64, error) {
	res, err := r.execWithRetry(ctx,
		`DELETE FROM downloads WHERE url LIKE ?`, pattern)
	if err != nil {
		return 0, fmt.Errorf("remove by pattern: %w", err)
	}
	return res.RowsAffected()
}

// CountByURLPattern counts jobs that RemoveByURLPattern would delete.
func (r *Repository) CountByURLPattern(ctx context.Context, pattern string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM downloads WHERE url LIKE ?`, pattern).Scan(&count)
	return count, err
}

// Requeue resets jobs to pending for an operator-requested retry or
// redownload: retries back to zero, download metadata cleared.
func (r *Repository) Requeue(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders, args := idPlaceholders(ids)
	args = append([]any{domain.StatusPending}, args...)
	res, err := r.execWithRetry(ctx,
		`UPDATE downloads
		 SET status = ?, retries = 0, timestamp_downloaded = NULL,
		     final_filename = NULL, extractor = NULL
		 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue: %w", err)
	}
	return res.RowsAffected()
}

// Vacuum compacts the database file.
func (r *Repository) Vacuum(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
