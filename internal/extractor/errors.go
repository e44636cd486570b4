package extractor

import (
	"os/exec"
	"strings"
	"time"

	"github.com/tubevault/tubevault/internal/taskerr"
)

// Local sentinels wrap the shared taskerr taxonomy so errors.Is(err,
// taskerr.NoMedia) etc. work for callers outside this package, while
// %w-wrapping here keeps the Gateway's own message context attached
// (spec.md §4.2: "the Gateway translates opaque upstream errors... the
// rest of the core never inspects the upstream tool's error strings").
var (
	errNoMediaSentinel            = taskerr.NoMedia
	errNoFormatSentinel           = taskerr.NoFormat
	errDownloadIncompleteSentinel = taskerr.DownloadIncomplete
)

// PremiereSignal is returned alongside a partially-populated RawMetadata
// when the item is a scheduled future broadcast (spec.md §4.2 ErrPremiere).
type PremiereSignal struct {
	ETA time.Time
}

func (e *PremiereSignal) Error() string { return "item is a scheduled future broadcast" }
func (e *PremiereSignal) Unwrap() error { return taskerr.Premiere }

// classifyRunError owns the message heuristics that translate an
// os/exec failure plus captured output into the core's error taxonomy
// (spec.md §4.2).
func classifyRunError(runErr error, output []byte) error {
	text := strings.ToLower(string(output))

	switch {
	case strings.Contains(text, "429") || strings.Contains(text, "too many requests") || strings.Contains(text, "http error 429"):
		return taskerr.RateLimited
	case strings.Contains(text, "requested format is not available") || strings.Contains(text, "format is not available"):
		return &taskerr.FormatUnavailableError{Cause: runErr}
	case strings.Contains(text, "video unavailable") || strings.Contains(text, "has been removed") || strings.Contains(text, "account associated"):
		return taskerr.Permanent
	case strings.Contains(text, "sign in to confirm") || strings.Contains(text, "private video"):
		return taskerr.Permanent
	}

	var exitErr *exec.ExitError
	if ok := asExitError(runErr, &exitErr); ok {
		return taskerr.Transient
	}
	return taskerr.Transient
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
