package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fetchq/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    url                  TEXT NOT NULL UNIQUE,
    status               TEXT NOT NULL DEFAULT 'pending',
    timestamp_requested  DATETIME NOT NULL,
    timestamp_downloaded DATETIME,
    final_filename       TEXT,
    extractor            TEXT,
    retries              INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status);
`

const (
	sqliteBusyCode          = 5
	sqliteConstraintCode    = 19
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Repository implements domain.JobRepository backed by SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database at dbPath and ensures the schema.
// Safe to call from multiple processes; schema creation is idempotent.
func New(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

func sqliteCode(err error) int {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return 0
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if code := sqliteCode(err); code&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code := sqliteCode(err); code&0xff == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (r *Repository) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = r.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

const jobColumns = `id, url, status, timestamp_requested, timestamp_downloaded,
	COALESCE(final_filename, ''), COALESCE(extractor, ''), retries`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job        domain.Job
		status     string
		downloaded sql.NullTime
	)
	err := row.Scan(&job.ID, &job.URL, &status, &job.RequestedAt, &downloaded,
		&job.FinalFilename, &job.Extractor, &job.Retries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = domain.Status(status)
	if downloaded.Valid {
		t := downloaded.Time
		job.DownloadedAt = &t
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Create inserts a new pending job. A UNIQUE violation on the URL maps to
// domain.ErrDuplicateURL; the caller resolves it by reading the existing row.
func (r *Repository) Create(ctx context.Context, url string) (*domain.Job, error) {
	now := time.Now().UTC()
	result, err := r.execWithRetry(ctx,
		`INSERT INTO downloads (url, status, timestamp_requested, retries) VALUES (?, ?, ?, 0)`,
		url, domain.StatusPending, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateURL
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Job{
		ID:          id,
		URL:         url,
		Status:      domain.StatusPending,
		RequestedAt: now,
	}, nil
}

// GetByID retrieves a job by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM downloads WHERE id = ?`, id)
	return scanJob(row)
}

// GetByURL retrieves a job by its URL.
func (r *Repository) GetByURL(ctx context.Context, url string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM downloads WHERE url = ?`, url)
	return scanJob(row)
}

// FindPending returns the current snapshot of pending jobs.
func (r *Repository) FindPending(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM downloads WHERE status = ? ORDER BY timestamp_requested ASC`,
		domain.StatusPending)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// Claim atomically moves a pending job to downloading. The conditional
// UPDATE is the single compare-and-swap the whole claim protocol rests on;
// it must never be split into a read followed by a write.
func (r *Repository) Claim(ctx context.Context, id int64) error {
	result, err := r.execWithRetry(ctx,
		`UPDATE downloads SET status = ? WHERE id = ? AND status = ?`,
		domain.StatusDownloading, id, domain.StatusPending,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrClaimLost
	}
	return nil
}

// MarkDownloaded records a successful download with its metadata.
func (r *Repository) MarkDownloaded(ctx context.Context, id int64, filename, extractor string) error {
	_, err := r.execWithRetry(ctx,
		`UPDATE downloads SET status = ?, timestamp_downloaded = ?, final_filename = ?, extractor = ?
		 WHERE id = ?`,
		domain.StatusDownloaded, time.Now().UTC(), filename, extractor, id,
	)
	return err
}

// MarkFailed moves a job to the terminal failed state.
func (r *Repository) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.execWithRetry(ctx,
		`UPDATE downloads SET status = ? WHERE id = ?`,
		domain.StatusFailed, id,
	)
	return err
}

// IncrementRetries bumps the retry counter and returns the new value.
func (r *Repository) IncrementRetries(ctx context.Context, id int64) (int, error) {
	var retries int
	err := retryOnBusy(ctx, func() error {
		return r.db.QueryRowContext(ctx,
			`UPDATE downloads SET retries = retries + 1 WHERE id = ? RETURNING retries`,
			id,
		).Scan(&retries)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return retries, nil
}

// ResetToPending puts a job back in the pending state for another attempt.
// The retry counter is left untouched; only operator requeues reset it.
func (r *Repository) ResetToPending(ctx context.Context, id int64) error {
	_, err := r.execWithRetry(ctx,
		`UPDATE downloads SET status = ? WHERE id = ?`,
		domain.StatusPending, id,
	)
	return err
}

// Length returns the total number of jobs in the queue.
func (r *Repository) Length(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM downloads`).Scan(&count)
	return count, err
}

// StatusCounts returns job counts grouped by status.
func (r *Repository) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM downloads GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = count
	}
	return counts, rows.Err()
}
