// Package compose runs the composition pipeline: request normalization,
// quota allocation, pool resolution, item normalization and assembly.
package compose

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/assemble"
	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/pool"
	"github.com/p-n-ai/pai-quizset/internal/quota"
	"github.com/p-n-ai/pai-quizset/internal/request"
	"github.com/p-n-ai/pai-quizset/internal/schema"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// Config tunes the engine.
type Config struct {
	Limits request.Limits
	Pool   pool.Config
	// Rand seeds selection. A seeded source makes runs reproducible but
	// restricts the engine to one composition at a time; nil uses the
	// global generator.
	Rand *rand.Rand
}

// Engine composes assessment sets. It holds no per-request state.
type Engine struct {
	tax        *taxonomy.Taxonomy
	limits     request.Limits
	resolver   *pool.Resolver
	normalizer *schema.Normalizer
	assembler  *assemble.Assembler
}

// NewEngine creates an engine reading from store.
func NewEngine(store bank.Store, tax *taxonomy.Taxonomy, cfg Config) *Engine {
	return &Engine{
		tax:        tax,
		limits:     cfg.Limits,
		resolver:   pool.NewResolver(store, tax, cfg.Pool),
		normalizer: schema.NewNormalizer(tax),
		assembler:  assemble.New(tax, cfg.Rand),
	}
}

// Result is a composed assessment set with its diagnostics.
type Result struct {
	RequestID    string            `json:"request_id"`
	Grade        string            `json:"grade"`
	Subject      string            `json:"subject"`
	TargetCount  int               `json:"target_count"`
	Items        []schema.QuizItem `json:"items"`
	ActualCounts map[string]int    `json:"actual_counts"`
	Shortfall    map[string]int    `json:"shortfall"`
	Report       []CategoryReport  `json:"report"`
}

// CategoryReport carries the diagnostics of one category, in priority order.
type CategoryReport struct {
	Category      string         `json:"category"`
	Quota         int            `json:"quota"`
	SubtypeQuotas []quota.Share  `json:"subtype_quotas,omitempty"`
	PoolSize      int            `json:"pool_size"`
	Misfiled      int            `json:"misfiled,omitempty"`
	Fallback      bool           `json:"fallback,omitempty"`
	Dropped       map[string]int `json:"dropped,omitempty"`
	PracticeItems int            `json:"practice_items,omitempty"`
	Backfilled    int            `json:"backfilled,omitempty"`
	Actual        int            `json:"actual"`
	Shortfall     int            `json:"shortfall"`
}

// Compose builds an assessment set for raw. Partial shortfalls are reported
// in the result; an empty set is an *apierr.NoCandidatesError.
func (e *Engine) Compose(ctx context.Context, raw request.RawRequest) (*Result, error) {
	start := time.Now()

	req, err := request.Normalize(raw, e.tax, e.limits)
	if err != nil {
		return nil, err
	}

	shares := req.Plan
	if shares == nil {
		shares = quota.Allocate(req.TargetCount, req.Categories)
	}

	res := &Result{
		RequestID:    uuid.NewString(),
		Grade:        req.Grade,
		Subject:      req.Subject,
		TargetCount:  req.TargetCount,
		ActualCounts: make(map[string]int, len(shares)),
		Shortfall:    make(map[string]int),
	}

	slog.Info("composition started",
		"request_id", res.RequestID,
		"grade", req.Grade,
		"subject", req.Subject,
		"categories", req.Categories,
		"target", req.TargetCount,
	)

	demands := make([]pool.Demand, len(shares))
	for i, sh := range shares {
		demands[i] = pool.Demand{Category: sh.Key, Quota: sh.Quota}
	}
	pools, err := e.resolver.ResolveAll(ctx, req.Grade, req.Subject, demands)
	if err != nil {
		slog.Warn("composition aborted", "request_id", res.RequestID, "error", err)
		return nil, err
	}

	groups := make([]assemble.Group, len(pools))
	res.Report = make([]CategoryReport, len(pools))
	for i, p := range pools {
		groups[i], res.Report[i] = e.normalizePool(p, shares[i].Quota)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assembly := e.assembler.Assemble(req.TargetCount, groups)
	res.Items = assembly.Items

	for i, sel := range assembly.Selections {
		rep := &res.Report[i]
		rep.SubtypeQuotas = sel.SubtypeQuotas
		rep.Backfilled = sel.Backfilled
		rep.Actual = sel.Actual()
		rep.Shortfall = sel.Shortfall()
		for _, it := range sel.Items {
			if it.PracticeMode {
				rep.PracticeItems++
			}
		}
		res.ActualCounts[rep.Category] = rep.Actual
		if rep.Shortfall > 0 {
			res.Shortfall[rep.Category] = rep.Shortfall
		}
	}

	if len(res.Items) == 0 {
		nc := &apierr.NoCandidatesError{
			PoolSizes: make(map[string]int, len(res.Report)),
			Dropped:   make(map[string]int, len(res.Report)),
		}
		for _, rep := range res.Report {
			nc.PoolSizes[rep.Category] = rep.PoolSize
			for _, n := range rep.Dropped {
				nc.Dropped[rep.Category] += n
			}
		}
		slog.Warn("composition produced no items", "request_id", res.RequestID, "error", nc)
		return nil, nc
	}

	slog.Info("composition finished",
		"request_id", res.RequestID,
		"target", res.TargetCount,
		"actual", len(res.Items),
		"shortfall", res.Shortfall,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// normalizePool converts a resolved pool into assembly candidates, dropping
// items whose required fields cannot be resolved.
func (e *Engine) normalizePool(p pool.Pool, q int) (assemble.Group, CategoryReport) {
	g := assemble.Group{Category: p.Category, Quota: q}
	rep := CategoryReport{
		Category: p.Category,
		Quota:    q,
		PoolSize: len(p.Items),
		Misfiled: p.Misfiled,
		Fallback: p.Fallback,
	}

	for _, it := range p.Items {
		qi, err := e.normalizer.Normalize(it, p.Category, pool.Subtype(it))
		if err != nil {
			if rep.Dropped == nil {
				rep.Dropped = make(map[string]int)
			}
			rep.Dropped[schema.Reason(err)]++
			continue
		}
		g.Items = append(g.Items, qi)
	}

	if len(rep.Dropped) > 0 {
		slog.Debug("items dropped during normalization",
			"category", p.Category,
			"pool_size", rep.PoolSize,
			"dropped", rep.Dropped,
		)
	}
	return g, rep
}
