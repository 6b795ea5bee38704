// Package audit records composition events. Logging is best-effort:
// callers report failures but never change a composition result because of
// them.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Event types.
const (
	EventComposed = "composition_completed"
	EventFailed   = "composition_failed"
)

// Event is one entry of the composition log.
type Event struct {
	RequestID string
	EventType string
	Grade     string
	Subject   string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

func validate(event Event) error {
	if event.EventType == "" {
		return errors.New("event_type is required")
	}
	return nil
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryEventLogger keeps events in memory.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	if err := validate(event); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// CreateTableSQL creates the table PostgresEventLogger writes to.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS composition_events (
	id         bigserial PRIMARY KEY,
	request_id text NOT NULL,
	event_type text NOT NULL,
	grade      text NOT NULL DEFAULT '',
	subject    text NOT NULL DEFAULT '',
	data       jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
)`

// PostgresEventLogger inserts events into the composition_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return errors.New("event logger pool is nil")
	}
	if err := validate(event); err != nil {
		return err
	}
	if event.RequestID == "" {
		return errors.New("request_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	// Detached from the request: the caller may already have responded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO composition_events (request_id, event_type, grade, subject, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		event.RequestID,
		event.EventType,
		event.Grade,
		event.Subject,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"request_id", event.RequestID,
	)
	return nil
}
