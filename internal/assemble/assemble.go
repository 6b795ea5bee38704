// Package assemble selects the final item sequence from normalized candidate
// groups: subtype-balanced selection within each category, then backfill of
// shortfalls, keeping items grouped by category.
package assemble

import (
	"math/rand/v2"
	"slices"

	"github.com/p-n-ai/pai-quizset/internal/quota"
	"github.com/p-n-ai/pai-quizset/internal/schema"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// Group is the candidate set of one category with its quota. Groups are
// passed in priority order.
type Group struct {
	Category string
	Quota    int
	Items    []schema.QuizItem
}

// Selection reports what was picked for one category.
type Selection struct {
	Category      string
	Quota         int
	SubtypeQuotas []quota.Share
	Available     int
	Backfilled    int
	Items         []schema.QuizItem
}

// Actual is the number of items selected for the category.
func (s Selection) Actual() int { return len(s.Items) }

// Shortfall is how far the category fell below its quota.
func (s Selection) Shortfall() int { return max(0, s.Quota-len(s.Items)) }

// Assembly is the outcome of one assembly run.
type Assembly struct {
	Items      []schema.QuizItem
	Selections []Selection
}

// Assembler performs selection. It is safe for use by one request at a time
// when built over a seeded source; with a nil source it uses the global
// generator and may be shared.
type Assembler struct {
	tax *taxonomy.Taxonomy
	rng *rand.Rand
}

// New creates an assembler. rng may be nil.
func New(tax *taxonomy.Taxonomy, rng *rand.Rand) *Assembler {
	return &Assembler{tax: tax, rng: rng}
}

// Assemble picks at most target items from groups.
func (a *Assembler) Assemble(target int, groups []Group) Assembly {
	// IDs already placed in this assembly.
	seen := make(map[string]bool)

	states := make([]*groupState, len(groups))
	for i, g := range groups {
		st := a.newGroupState(g)
		st.sel.SubtypeQuotas = quota.Allocate(g.Quota, st.keys)
		caps := make([]int, len(st.keys))
		for j, sh := range st.sel.SubtypeQuotas {
			caps[j] = sh.Quota
		}
		st.roundRobin(g.Quota, caps, seen)
		st.roundRobin(g.Quota, nil, seen)
		states[i] = st
	}

	total := 0
	for _, st := range states {
		total += len(st.sel.Items)
	}
	for _, st := range states {
		if total >= target {
			break
		}
		before := len(st.sel.Items)
		st.roundRobin(before+target-total, nil, seen)
		st.sel.Backfilled = len(st.sel.Items) - before
		total += st.sel.Backfilled
	}

	for i := len(states) - 1; i >= 0 && total > target; i-- {
		sel := &states[i].sel
		cut := min(total-target, len(sel.Items))
		sel.Items = sel.Items[:len(sel.Items)-cut]
		total -= cut
	}

	out := Assembly{Items: make([]schema.QuizItem, 0, total)}
	for _, st := range states {
		out.Items = append(out.Items, st.sel.Items...)
		out.Selections = append(out.Selections, st.sel)
	}
	return out
}

type groupState struct {
	sel     Selection
	keys    []string
	buckets [][]schema.QuizItem
	next    []int
}

// newGroupState buckets the group's items by subtype: the category's known
// subtypes in taxonomy order, then other subtypes sorted, untagged last.
// Untagged items take the category's default subtype when it has one.
// Each bucket is shuffled.
func (a *Assembler) newGroupState(g Group) *groupState {
	byKey := make(map[string][]schema.QuizItem)
	unique := make(map[string]bool)
	for _, it := range g.Items {
		if unique[it.ID] {
			continue
		}
		unique[it.ID] = true
		it.Subtype = a.tax.InferSubtype(g.Category, it.Subtype)
		byKey[it.Subtype] = append(byKey[it.Subtype], it)
	}

	var keys []string
	if cat, ok := a.tax.Category(g.Category); ok {
		for _, st := range cat.Subtypes {
			if len(byKey[st]) > 0 {
				keys = append(keys, st)
			}
		}
	}
	var extra []string
	for k := range byKey {
		if k != "" && !slices.Contains(keys, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	keys = append(keys, extra...)
	if len(byKey[""]) > 0 {
		keys = append(keys, "")
	}

	st := &groupState{
		sel:     Selection{Category: g.Category, Quota: g.Quota, Available: len(unique)},
		keys:    keys,
		buckets: make([][]schema.QuizItem, len(keys)),
		next:    make([]int, len(keys)),
	}
	for i, k := range keys {
		bucket := slices.Clone(byKey[k])
		a.shuffle(bucket)
		st.buckets[i] = bucket
	}
	return st
}

func (a *Assembler) shuffle(items []schema.QuizItem) {
	swap := func(i, j int) { items[i], items[j] = items[j], items[i] }
	if a.rng == nil {
		rand.Shuffle(len(items), swap)
		return
	}
	a.rng.Shuffle(len(items), swap)
}

// roundRobin takes one item per bucket per round until the group holds
// limit items, every bucket has reached its cap, or the buckets run dry.
// A nil caps slice leaves buckets uncapped.
func (st *groupState) roundRobin(limit int, caps []int, seen map[string]bool) {
	taken := make([]int, len(st.buckets))
	for len(st.sel.Items) < limit {
		progress := false
		for b := range st.buckets {
			if len(st.sel.Items) >= limit {
				break
			}
			if caps != nil && taken[b] >= caps[b] {
				continue
			}
			if st.take(b, seen) {
				taken[b]++
				progress = true
			}
		}
		if !progress {
			return
		}
	}
}

func (st *groupState) take(b int, seen map[string]bool) bool {
	for st.next[b] < len(st.buckets[b]) {
		it := st.buckets[b][st.next[b]]
		st.next[b]++
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		st.sel.Items = append(st.sel.Items, it)
		return true
	}
	return false
}
