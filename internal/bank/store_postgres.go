package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-quizset/internal/document"
)

const defaultQueryTimeout = 5 * time.Second

// IndexSQL creates the index backing pool queries. It is idempotent.
const IndexSQL = `CREATE INDEX IF NOT EXISTS problems_pool_idx ON problems (grade, subject, category, id)`

// PostgresStore reads items from the problems table. The table is owned by
// the ingestion pipeline; this store only issues bounded SELECTs.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore creates a PostgreSQL-backed item store. A zero timeout
// uses the default of five seconds per query.
func NewPostgresStore(pool *pgxpool.Pool, timeout time.Duration) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &PostgresStore{pool: pool, timeout: timeout}, nil
}

func (s *PostgresStore) Query(ctx context.Context, f Filter, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query, args := buildQuery(f, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query problems: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it      Item
			content []byte
		)
		if err := rows.Scan(
			&it.ID,
			&it.Grade,
			&it.Subject,
			&it.Category,
			&it.Difficulty,
			&it.ContentHash,
			&content,
		); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}

		if len(content) > 0 {
			payload, err := document.Parse(content)
			if err != nil {
				// The row stays a candidate; normalization drops it later.
				slog.Warn("unparseable problem content", "id", it.ID, "error", err)
			}
			it.Payload = payload
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return items, nil
}

func buildQuery(f Filter, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("grade", f.Grade)
	add("subject", f.Subject)
	add("category", f.Category)

	var b strings.Builder
	b.WriteString(`SELECT id::text, grade, subject, COALESCE(category, ''), COALESCE(difficulty, ''),
	        COALESCE(content_hash, ''), content
	   FROM problems`)
	if len(where) > 0 {
		b.WriteString("\n  WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, limit)
	fmt.Fprintf(&b, "\n  ORDER BY id\n  LIMIT $%d", len(args))
	return b.String(), args
}
