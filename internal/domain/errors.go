package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL rejects malformed or empty URLs before they touch storage.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidID rejects non-positive job identifiers.
	ErrInvalidID = errors.New("invalid job ID")
	// ErrNotFound indicates no job matches the given key.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicateURL indicates the URL is already queued.
	ErrDuplicateURL = errors.New("URL already queued")
	// ErrClaimLost indicates another actor claimed the job first.
	ErrClaimLost = errors.New("job already claimed")
)

// TransientError marks a download failure covered by the retry policy.
// Anything else coming out of a Downloader is treated as an unexpected
// fault and is never retried automatically.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
