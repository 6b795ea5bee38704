// Package apierr defines the error kinds a composition can fail with and
// their mapping to HTTP status codes.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// StatusClientClosedRequest is the non-standard status used when the client
// went away before the composition finished.
const StatusClientClosedRequest = 499

// Sentinels matched with errors.Is. The three kinds are never collapsed.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNoCandidates     = errors.New("no candidates")
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// InvalidRequest reports a request that cannot be normalized.
func InvalidRequest(format string, args ...any) error {
	return New(http.StatusBadRequest, "invalid_request",
		fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...)))
}

// StoreUnavailable wraps a transport failure of the item store.
func StoreUnavailable(err error) error {
	return New(http.StatusServiceUnavailable, "store_unavailable",
		fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}

// NoCandidatesError is returned when a composition yields zero items. It
// carries per-category diagnostics so callers can tell an empty bank apart
// from a bank whose content is all malformed.
type NoCandidatesError struct {
	PoolSizes map[string]int
	Dropped   map[string]int
}

func (e *NoCandidatesError) Error() string {
	keys := make([]string, 0, len(e.PoolSizes))
	for k := range e.PoolSizes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d/%d", k, e.PoolSizes[k], e.Dropped[k]))
	}
	return fmt.Sprintf("%s (pool/dropped: %s)", ErrNoCandidates, strings.Join(parts, " "))
}

func (e *NoCandidatesError) Is(target error) bool { return target == ErrNoCandidates }

// StatusOf maps an error to the HTTP status the server responds with.
func StatusOf(err error) int {
	var nc *NoCandidatesError
	var ae *Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &nc):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ae) && ae.Status != 0:
		return ae.Status
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns a stable machine-readable code for err.
func CodeOf(err error) string {
	var nc *NoCandidatesError
	var ae *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &nc):
		return "no_candidates"
	case errors.As(err, &ae) && ae.Code != "":
		return ae.Code
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}
