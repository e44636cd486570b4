// Package taskerr defines the error taxonomy used throughout the core
// (spec.md §7), as errors.Is-compatible sentinel-wrapped types rather than
// string matching, following the teacher's own isTaskConflict idiom in
// internal/jobs/queue.go.
package taskerr

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel kinds. Each is wrapped by the richer error types below so
// callers can use errors.Is(err, taskerr.RateLimited) etc.
var (
	NotFound           = errors.New("entity not found")
	Locked             = errors.New("advisory lock unavailable")
	NoMedia            = errors.New("empty listing for source")
	NoFormat           = errors.New("metadata carries no usable formats")
	FormatUnavailable  = errors.New("selected format could not be fetched")
	RateLimited        = errors.New("upstream rate limited the request")
	Premiere           = errors.New("item is a scheduled future broadcast")
	DownloadIncomplete = errors.New("expected output file missing after success")
	Transient          = errors.New("transient upstream error")
	Permanent          = errors.New("permanent upstream error")
)

// FormatUnavailableError carries the format id and underlying cause for a
// format that could not be fetched (spec.md §4.2 ErrFormatUnavailable).
type FormatUnavailableError struct {
	FormatID string
	Cause    error
}

func (e *FormatUnavailableError) Error() string {
	return fmt.Sprintf("format %q unavailable: %v", e.FormatID, e.Cause)
}

func (e *FormatUnavailableError) Unwrap() error { return FormatUnavailable }

// PremiereError carries the estimated live-at time for a scheduled future
// broadcast (spec.md §4.2 ErrPremiere).
type PremiereError struct {
	ETA time.Time
}

func (e *PremiereError) Error() string {
	return fmt.Sprintf("premiere scheduled for %s", e.ETA.Format(time.RFC3339))
}

func (e *PremiereError) Unwrap() error { return Premiere }

// HoursUntil returns the whole number of hours remaining until the
// premiere, rounded up, for the "Premieres in N hours" title convention
// (spec.md §8).
func (e *PremiereError) HoursUntil(now time.Time) int {
	d := e.ETA.Sub(now)
	if d <= 0 {
		return 0
	}
	hours := int(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// PremiereTitle renders the "Premieres in N hours" title convention.
func PremiereTitle(hours int) string {
	return fmt.Sprintf("Premieres in %d hours", hours)
}

// IsRetryable reports whether err should cause the scheduler to reschedule
// the task with backoff, rather than recording a permanent failure.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, Locked),
		errors.Is(err, NoFormat),
		errors.Is(err, FormatUnavailable),
		errors.Is(err, RateLimited),
		errors.Is(err, DownloadIncomplete),
		errors.Is(err, Transient):
		return true
	default:
		return false
	}
}
