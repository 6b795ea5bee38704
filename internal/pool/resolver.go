// Package pool resolves the candidate items of each requested category,
// tolerating content that was filed under the wrong coarse category.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/schema"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// Config bounds the size of pool queries.
type Config struct {
	PoolFloor      int // minimum primary row cap
	PoolMultiplier int // primary row cap per unit of quota
	BroadFloor     int // minimum broadened row cap
	BroadenFactor  int // broadened cap as a multiple of the primary cap
	MaxRows        int // hard cap on any single query
	Concurrency    int // categories resolved in parallel
}

// DefaultConfig returns the stock pool limits.
func DefaultConfig() Config {
	return Config{
		PoolFloor:      200,
		PoolMultiplier: 10,
		BroadFloor:     1000,
		BroadenFactor:  5,
		MaxRows:        5000,
		Concurrency:    4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PoolFloor <= 0 {
		c.PoolFloor = d.PoolFloor
	}
	if c.PoolMultiplier <= 0 {
		c.PoolMultiplier = d.PoolMultiplier
	}
	if c.BroadFloor <= 0 {
		c.BroadFloor = d.BroadFloor
	}
	if c.BroadenFactor <= 0 {
		c.BroadenFactor = d.BroadenFactor
	}
	if c.MaxRows <= 0 {
		c.MaxRows = d.MaxRows
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}

// Pool is the resolved candidate set of one category.
type Pool struct {
	Category string
	Items    []bank.Item
	// Fallback is set when Items came from the broadened query.
	Fallback bool
	// Misfiled counts primary rows excluded because their subtype belongs
	// to another category.
	Misfiled int
}

// Resolver issues bounded store queries per category.
type Resolver struct {
	store bank.Store
	tax   *taxonomy.Taxonomy
	cfg   Config
}

// NewResolver creates a resolver over store. Zero config fields take their
// defaults.
func NewResolver(store bank.Store, tax *taxonomy.Taxonomy, cfg Config) *Resolver {
	return &Resolver{store: store, tax: tax, cfg: cfg.withDefaults()}
}

// Subtype returns the subtype tag of an item, or "".
func Subtype(it bank.Item) string {
	return schema.Subtype(it.Payload)
}

// PoolCap is the row cap of the primary query for a category quota.
func (r *Resolver) PoolCap(quota int) int {
	return min(max(quota*r.cfg.PoolMultiplier, r.cfg.PoolFloor), r.cfg.MaxRows)
}

// BroadCap is the row cap of the broadened fallback query.
func (r *Resolver) BroadCap(quota int) int {
	return min(max(r.PoolCap(quota)*r.cfg.BroadenFactor, r.cfg.BroadFloor), r.cfg.MaxRows)
}

// Resolve returns the candidates of one category. Store failures are
// returned as apierr.ErrStoreUnavailable and never as an empty pool.
func (r *Resolver) Resolve(ctx context.Context, grade, subject, category string, quota int) (Pool, error) {
	cat, ok := r.tax.Category(category)
	if !ok {
		return Pool{}, fmt.Errorf("unknown category %q", category)
	}

	rows, err := r.primary(ctx, grade, subject, cat, r.PoolCap(quota))
	if err != nil {
		return Pool{}, err
	}

	p := Pool{Category: cat.Code}
	for _, it := range rows {
		if owner, ok := r.tax.CategoryForSubtype(Subtype(it)); ok && owner != cat.Code {
			p.Misfiled++
			continue
		}
		p.Items = append(p.Items, it)
	}

	// A fragile tag holding only other categories' content counts as empty.
	if len(p.Items) == 0 && cat.Fragile {
		broad, err := r.broaden(ctx, grade, subject, cat, quota)
		if err != nil {
			return Pool{}, err
		}
		broad.Misfiled = p.Misfiled
		return broad, nil
	}
	if p.Misfiled > 0 {
		slog.Debug("misfiled items excluded from pool",
			"category", cat.Code,
			"grade", grade,
			"subject", subject,
			"misfiled", p.Misfiled,
		)
	}
	return p, nil
}

// primary runs one equality query per stored tag of the category, merging
// results by ID within a single row budget.
func (r *Resolver) primary(ctx context.Context, grade, subject string, cat taxonomy.Category, limit int) ([]bank.Item, error) {
	tags := cat.StoreTags
	if len(tags) == 0 {
		tags = []string{cat.Code}
	}

	var rows []bank.Item
	seen := make(map[string]bool)
	for _, tag := range tags {
		remaining := limit - len(rows)
		if remaining <= 0 {
			break
		}
		got, err := r.query(ctx, bank.Filter{Grade: grade, Subject: subject, Category: tag}, remaining)
		if err != nil {
			return nil, err
		}
		for _, it := range got {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			rows = append(rows, it)
		}
	}
	return rows, nil
}

// broaden drops the category predicate and keeps rows whose subtype carries
// the category's prefix, whatever their stored category.
func (r *Resolver) broaden(ctx context.Context, grade, subject string, cat taxonomy.Category, quota int) (Pool, error) {
	limit := r.BroadCap(quota)
	rows, err := r.query(ctx, bank.Filter{Grade: grade, Subject: subject}, limit)
	if err != nil {
		return Pool{}, err
	}

	p := Pool{Category: cat.Code, Fallback: true}
	for _, it := range rows {
		if strings.HasPrefix(Subtype(it), cat.SubtypePrefix) {
			p.Items = append(p.Items, it)
		}
	}

	slog.Info("pool fallback used",
		"category", cat.Code,
		"grade", grade,
		"subject", subject,
		"scanned", len(rows),
		"matched", len(p.Items),
		"limit", limit,
	)
	return p, nil
}

func (r *Resolver) query(ctx context.Context, f bank.Filter, limit int) ([]bank.Item, error) {
	rows, err := r.store.Query(ctx, f, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Error("store query failed",
			"grade", f.Grade,
			"subject", f.Subject,
			"category", f.Category,
			"error", err,
		)
		return nil, apierr.StoreUnavailable(err)
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Demand is the quota requested for one category.
type Demand struct {
	Category string
	Quota    int
}

// ResolveAll resolves every demand with bounded concurrency and returns the
// pools in demand order. The first failure cancels the remaining queries.
func (r *Resolver) ResolveAll(ctx context.Context, grade, subject string, demands []Demand) ([]Pool, error) {
	pools := make([]Pool, len(demands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, d := range demands {
		g.Go(func() error {
			p, err := r.Resolve(gctx, grade, subject, d.Category, d.Quota)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", d.Category, err)
			}
			pools[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}
