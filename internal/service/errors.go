package service

import "errors"

// Sentinel errors completing the failure taxonomy. Not-found and
// quota-exceeded conditions are the store sentinels (store.Err*NotFound,
// store.ErrJobQuotaExceeded, store.ErrUserQuotaExceeded); the service layer
// adds the kinds the stores cannot know about. Callers dispatch with
// errors.Is.
var (
	// ErrValidation marks malformed input: bad webhook payloads, oversized
	// files, unknown statuses. Client-recoverable, never retried.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks a webhook shared-secret mismatch.
	ErrAuth = errors.New("authentication failed")

	// ErrStorage marks a blob-store failure.
	ErrStorage = errors.New("blob storage error")

	// ErrPersistence marks a database failure surfaced after any in-process
	// retry was exhausted.
	ErrPersistence = errors.New("persistence error")

	// ErrConsistency marks a partial-failure state needing operator
	// attention, e.g. the metadata row outlived its blob. Always logged,
	// never silently swallowed.
	ErrConsistency = errors.New("consistency error")
)
