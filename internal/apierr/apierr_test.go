package apierr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     int
		code     string
	}{
		{
			name:     "invalid request",
			err:      apierr.InvalidRequest("grade %q has no digits", "abc"),
			sentinel: apierr.ErrInvalidRequest,
			want:     http.StatusBadRequest,
			code:     "invalid_request",
		},
		{
			name:     "store unavailable wrapped",
			err:      fmt.Errorf("resolve vocab: %w", apierr.StoreUnavailable(errors.New("connection refused"))),
			sentinel: apierr.ErrStoreUnavailable,
			want:     http.StatusServiceUnavailable,
			code:     "store_unavailable",
		},
		{
			name:     "no candidates",
			err:      &apierr.NoCandidatesError{PoolSizes: map[string]int{"vocab": 0}},
			sentinel: apierr.ErrNoCandidates,
			want:     http.StatusUnprocessableEntity,
			code:     "no_candidates",
		},
		{
			name: "deadline",
			err:  fmt.Errorf("query: %w", context.DeadlineExceeded),
			want: http.StatusGatewayTimeout,
			code: "timeout",
		},
		{
			name: "canceled",
			err:  fmt.Errorf("resolve grammar: %w", context.Canceled),
			want: apierr.StatusClientClosedRequest,
			code: "canceled",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: http.StatusInternalServerError,
			code: "internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apierr.StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
			if got := apierr.CodeOf(tt.err); got != tt.code {
				t.Errorf("CodeOf() = %q, want %q", got, tt.code)
			}
			if tt.sentinel != nil && !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
		})
	}
}

func TestKindsAreDistinct(t *testing.T) {
	err := apierr.StoreUnavailable(errors.New("down"))
	if errors.Is(err, apierr.ErrInvalidRequest) || errors.Is(err, apierr.ErrNoCandidates) {
		t.Error("store error should not match other kinds")
	}
}

func TestNoCandidatesError_Message(t *testing.T) {
	err := &apierr.NoCandidatesError{
		PoolSizes: map[string]int{"vocab": 12, "grammar": 0},
		Dropped:   map[string]int{"vocab": 12},
	}
	msg := err.Error()
	if !strings.Contains(msg, "grammar=0/0 vocab=12/12") {
		t.Errorf("Error() = %q, want sorted pool/dropped pairs", msg)
	}
}
