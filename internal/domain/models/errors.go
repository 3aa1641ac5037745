package models

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed means an instrument could not be fetched after all attempts.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrProviderDegraded means the provider is rate limiting; ingestion switches to synthetic data.
	ErrProviderDegraded = errors.New("provider degraded")
	// ErrNoData means the provider answered but had no bar for the requested range.
	ErrNoData = errors.New("no data")

	ErrEmbeddingFailed       = errors.New("embedding failed")
	ErrGenerativeUnavailable = errors.New("generative engine unavailable")
	ErrQueryMalformed        = errors.New("query malformed")
	ErrNotFound              = errors.New("not found")
)

// FetchError carries the instrument and attempt count of a failed fetch.
type FetchError struct {
	InstrumentID string
	Attempts     int
	Err          error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.InstrumentID, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }
