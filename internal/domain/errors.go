package domain

import (
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy shared across packages.
var (
	ErrNotInitialized = fmt.Errorf("store not initialized")
	ErrCorruption     = fmt.Errorf("store corruption detected")
)

// StorageError wraps any failure at the durable store boundary so callers
// never see raw driver errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IdentifierError reports a rejected dynamic storage-object name. These are
// logged as security events before any query executes.
type IdentifierError struct {
	Name   string
	Source string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("identifier %q not allowed for source %q", e.Name, e.Source)
}

// RateLimitError is returned when a bulk download is attempted inside the
// protection window. It carries the exact remaining wait so callers can
// surface an actionable message.
type RateLimitError struct {
	LastDownload   time.Time
	NextAllowed    time.Time
	HoursRemaining float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf(
		"download rate limited: next download allowed at %s (%.1f hours remaining)",
		e.NextAllowed.Format(time.RFC3339), e.HoursRemaining,
	)
}
