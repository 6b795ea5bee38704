// Package request turns loosely typed composition requests into canonical
// ones.
package request

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/quota"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// Labels is a list of raw category labels. In JSON it may be written as an
// array or as a single (possibly comma-separated) string.
type Labels []string

func (l *Labels) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = Labels{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// RawRequest is a composition request as received from a caller.
type RawRequest struct {
	Grade      string         `json:"grade"`
	Subject    string         `json:"subject"`
	Categories Labels         `json:"categories,omitempty"`
	Count      int            `json:"count,omitempty"`
	Preset     string         `json:"preset,omitempty"`
	Plan       map[string]int `json:"plan,omitempty"`
}

// Request is a validated composition request.
type Request struct {
	Grade       string
	Subject     string
	Categories  []string // canonical codes, priority order, no duplicates
	TargetCount int
	// Plan holds explicit per-category counts. Nil means quotas are derived
	// by even allocation.
	Plan []quota.Share
}

// Limits bound the target count.
type Limits struct {
	DefaultCount int
	MaxCount     int
}

// DefaultLimits returns the stock count limits.
func DefaultLimits() Limits {
	return Limits{DefaultCount: 20, MaxCount: 100}
}

// Normalize validates raw and maps its labels onto tax. It has no side
// effects; every failure is an apierr.ErrInvalidRequest.
func Normalize(raw RawRequest, tax *taxonomy.Taxonomy, limits Limits) (Request, error) {
	if limits.DefaultCount <= 0 {
		limits.DefaultCount = DefaultLimits().DefaultCount
	}
	if limits.MaxCount <= 0 {
		limits.MaxCount = DefaultLimits().MaxCount
	}

	grade, ok := NormalizeGrade(raw.Grade)
	if !ok {
		return Request{}, apierr.InvalidRequest("grade %q has no digits", raw.Grade)
	}

	subject := NormalizeSubject(raw.Subject, tax)
	if subject == "" {
		return Request{}, apierr.InvalidRequest("subject is required")
	}

	req := Request{Grade: grade, Subject: subject}

	plan, err := resolvePlan(raw, tax)
	if err != nil {
		return Request{}, err
	}
	if plan != nil {
		req.Plan = plan
		req.Categories = quota.Keys(plan)
		req.TargetCount = quota.Sum(plan)
		if req.TargetCount > limits.MaxCount {
			return Request{}, apierr.InvalidRequest("plan total %d exceeds maximum %d", req.TargetCount, limits.MaxCount)
		}
		return req, nil
	}

	req.Categories = NormalizeCategories(raw.Categories, tax)
	if len(req.Categories) == 0 {
		return Request{}, apierr.InvalidRequest("no recognized categories in %v", []string(raw.Categories))
	}

	switch {
	case raw.Count < 0:
		return Request{}, apierr.InvalidRequest("count must not be negative, got %d", raw.Count)
	case raw.Count == 0:
		req.TargetCount = limits.DefaultCount
	case raw.Count > limits.MaxCount:
		return Request{}, apierr.InvalidRequest("count %d exceeds maximum %d", raw.Count, limits.MaxCount)
	default:
		req.TargetCount = raw.Count
	}
	return req, nil
}

// NormalizeGrade extracts the first run of digits: "중2", "2학년", "grade 2"
// and "２" all yield "2".
func NormalizeGrade(s string) (string, bool) {
	s = taxonomy.Fold(s)

	start := strings.IndexFunc(s, isASCIIDigit)
	if start < 0 {
		return "", false
	}
	end := start
	for end < len(s) && isASCIIDigit(rune(s[end])) {
		end++
	}

	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return "", false
	}
	return strconv.Itoa(n), true
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// NormalizeSubject maps subject aliases to canonical codes. Unknown
// non-empty values pass through folded.
func NormalizeSubject(s string, tax *taxonomy.Taxonomy) string {
	if code, ok := tax.ResolveSubject(s); ok {
		return code
	}
	return taxonomy.Fold(s)
}

// NormalizeCategories flattens raw entries (single labels, CSV strings or
// JSON-encoded arrays) into canonical codes. Unknown labels are ignored and
// the first occurrence of each code wins.
func NormalizeCategories(raw []string, tax *taxonomy.Taxonomy) []string {
	var codes []string
	seen := make(map[string]bool)

	for _, entry := range raw {
		for _, label := range splitLabels(entry) {
			code, ok := tax.ResolveCategory(label)
			if !ok {
				if label != "" {
					slog.Debug("ignoring unknown category label", "label", label)
				}
				continue
			}
			if seen[code] {
				continue
			}
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

func splitLabels(entry string) []string {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}

	if strings.HasPrefix(entry, "[") {
		var list []string
		if err := json.Unmarshal([]byte(entry), &list); err == nil {
			var out []string
			for _, s := range list {
				out = append(out, splitLabels(s)...)
			}
			return out
		}
	}
	if strings.HasPrefix(entry, `"`) {
		var single string
		if err := json.Unmarshal([]byte(entry), &single); err == nil {
			return splitLabels(single)
		}
	}

	parts := strings.Split(entry, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolvePlan returns the explicit plan of raw, if any. An explicit Plan
// takes precedence over a named Preset.
func resolvePlan(raw RawRequest, tax *taxonomy.Taxonomy) ([]quota.Share, error) {
	counts := make(map[string]int)

	switch {
	case len(raw.Plan) > 0:
		for label, n := range raw.Plan {
			code, ok := tax.ResolveCategory(label)
			if !ok {
				return nil, apierr.InvalidRequest("plan references unknown category %q", label)
			}
			if n < 0 {
				return nil, apierr.InvalidRequest("plan count for %q must not be negative", label)
			}
			counts[code] += n
		}
	case strings.TrimSpace(raw.Preset) != "":
		p, ok := tax.Preset(raw.Preset)
		if !ok {
			return nil, apierr.InvalidRequest("unknown preset %q", raw.Preset)
		}
		for code, n := range p.Counts {
			counts[code] = n
		}
	default:
		return nil, nil
	}

	plan := quota.FromPlan(counts, tax.Codes())
	if len(plan) == 0 {
		return nil, apierr.InvalidRequest("plan has no positive counts")
	}
	return plan, nil
}
