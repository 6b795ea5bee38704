package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/audit"
	"github.com/p-n-ai/pai-quizset/internal/compose"
	"github.com/p-n-ai/pai-quizset/internal/request"
)

const maxBodyBytes = 64 << 10

// composeRequestSchema validates POST /v1/compose bodies before they reach
// the request normalizer.
const composeRequestSchema = `{
	"type": "object",
	"required": ["grade", "subject"],
	"additionalProperties": false,
	"properties": {
		"grade": {"type": "string", "minLength": 1},
		"subject": {"type": "string", "minLength": 1},
		"categories": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"count": {"type": "integer", "minimum": 0},
		"preset": {"type": "string"},
		"plan": {
			"type": "object",
			"additionalProperties": {"type": "integer", "minimum": 0}
		}
	}
}`

var composeSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(composeRequestSchema))
	if err != nil {
		panic(fmt.Sprintf("compose request schema: %v", err))
	}
	return s
}()

type composer interface {
	Compose(ctx context.Context, raw request.RawRequest) (*compose.Result, error)
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type server struct {
	engine composer
	events audit.EventLogger
	checks map[string]healthChecker
}

func newServer(engine composer, events audit.EventLogger, checks map[string]healthChecker) *server {
	if events == nil {
		events = audit.NopEventLogger{}
	}
	return &server{engine: engine, events: events, checks: checks}
}

// newMux creates the HTTP router with health checks and the compose API.
func newMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("POST /v1/compose", s.handleCompose)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := s.checks[name].HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"failed": failed,
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *server) handleCompose(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, apierr.InvalidRequest("reading body: %v", err))
		return
	}

	result, err := composeSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON: %v", err))
		return
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_request",
			"message": "request does not match schema",
			"details": details,
		})
		return
	}

	var raw request.RawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, apierr.InvalidRequest("decoding body: %v", err))
		return
	}

	res, err := s.engine.Compose(r.Context(), raw)
	s.logEvent(r.Context(), raw, res, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// logEvent records the outcome of a composition. Failures are logged only.
func (s *server) logEvent(ctx context.Context, raw request.RawRequest, res *compose.Result, err error) {
	ev := audit.Event{
		EventType: audit.EventComposed,
		Grade:     raw.Grade,
		Subject:   raw.Subject,
	}
	if err != nil {
		ev.EventType = audit.EventFailed
		ev.Data = map[string]any{"code": apierr.CodeOf(err), "error": err.Error()}
	} else {
		ev.RequestID = res.RequestID
		ev.Grade, ev.Subject = res.Grade, res.Subject
		ev.Data = map[string]any{
			"target":    res.TargetCount,
			"actual":    len(res.Items),
			"counts":    res.ActualCounts,
			"shortfall": res.Shortfall,
		}
	}
	if ev.RequestID == "" {
		ev.RequestID = "-"
	}
	if lerr := s.events.LogEvent(ctx, ev); lerr != nil {
		slog.Warn("audit event not recorded", "type", ev.EventType, "error", lerr)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apierr.StatusOf(err)
	body := map[string]any{
		"error":   apierr.CodeOf(err),
		"message": err.Error(),
	}

	var nc *apierr.NoCandidatesError
	if errors.As(err, &nc) {
		body["pool_sizes"] = nc.PoolSizes
		body["dropped"] = nc.Dropped
	}
	if status >= http.StatusInternalServerError {
		slog.Error("compose request failed", "status", status, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}
