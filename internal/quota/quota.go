// Package quota splits a target count across an ordered list of keys.
package quota

// Share is the number of items allotted to one key.
type Share struct {
	Key   string `json:"key"`
	Quota int    `json:"quota"`
}

// Allocate divides total across keys: every key gets total/len(keys) and the
// first total%len(keys) keys, in the given priority order, get one more.
// The quotas always sum to total.
func Allocate(total int, keys []string) []Share {
	if len(keys) == 0 {
		return nil
	}
	if total < 0 {
		total = 0
	}

	base := total / len(keys)
	remainder := total % len(keys)

	shares := make([]Share, len(keys))
	for i, k := range keys {
		q := base
		if i < remainder {
			q++
		}
		shares[i] = Share{Key: k, Quota: q}
	}
	return shares
}

// FromPlan orders an explicit per-key plan by the given priority order.
// Keys missing from order are ignored; non-positive counts are skipped.
func FromPlan(plan map[string]int, order []string) []Share {
	var shares []Share
	for _, k := range order {
		if n := plan[k]; n > 0 {
			shares = append(shares, Share{Key: k, Quota: n})
		}
	}
	return shares
}

// Sum returns the total of all quotas.
func Sum(shares []Share) int {
	total := 0
	for _, s := range shares {
		total += s.Quota
	}
	return total
}

// Map indexes shares by key.
func Map(shares []Share) map[string]int {
	m := make(map[string]int, len(shares))
	for _, s := range shares {
		m[s.Key] = s.Quota
	}
	return m
}

// Keys returns the keys of shares in order.
func Keys(shares []Share) []string {
	keys := make([]string, len(shares))
	for i, s := range shares {
		keys[i] = s.Key
	}
	return keys
}
