package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded means the identity has no analyses left in the
	// trailing window. No upstream call was made.
	ErrQuotaExceeded = errors.New("analysis quota exceeded")
	// ErrUpstreamUnavailable means the provider could not be reached or
	// timed out. Nothing was recorded; an external retry is safe.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports bad caller input. It is raised before any upstream
// or ledger access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError means the provider was reached but returned an error or an
// envelope with no recognizable output. It usually indicates misconfiguration
// rather than a transient fault, so it is not retried here.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// PersistenceError wraps a ledger failure on the read path. Write-path
// failures after a successful analysis are not surfaced as errors; see
// Service.Analyze.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger unavailable: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
