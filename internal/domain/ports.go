package domain

import "context"

// JobRepository is the driven port for job persistence.
type JobRepository interface {
	Create(ctx context.Context, url string) (*Job, error)
	GetByID(ctx context.Context, id int64) (*Job, error)
	GetByURL(ctx context.Context, url string) (*Job, error)
	FindPending(ctx context.Context) ([]Job, error)
	// Claim performs the atomic pending->downloading compare-and-swap.
	// Returns ErrClaimLost when the row is no longer pending.
	Claim(ctx context.Context, id int64) error
	MarkDownloaded(ctx context.Context, id int64, filename, extractor string) error
	MarkFailed(ctx context.Context, id int64) error
	// IncrementRetries bumps the counter and returns the new value.
	IncrementRetries(ctx context.Context, id int64) (int, error)
	ResetToPending(ctx context.Context, id int64) error
	Length(ctx context.Context) (int, error)
	StatusCounts(ctx context.Context) (map[Status]int, error)
}

// FetchResult carries the outcome of a successful download.
type FetchResult struct {
	Filename  string
	Extractor string
}

// Downloader is the driven port for the external fetch operation.
// Implementations signal retryable failures with *TransientError.
type Downloader interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
