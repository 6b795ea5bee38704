// Package taxonomy holds the category, subtype and subject tables that the
// composition pipeline resolves labels against.
package taxonomy

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Category describes one coarse item category.
type Category struct {
	Code          string   `yaml:"code"`
	Name          string   `yaml:"name"`
	Aliases       []string `yaml:"aliases"`
	StoreTags     []string `yaml:"store_tags"`
	SubtypePrefix string   `yaml:"subtype_prefix"`
	Subtypes      []string `yaml:"subtypes"`
	// Fragile categories are often stored under the wrong coarse tag and
	// get a broadened pool query when the primary pool comes back empty.
	Fragile bool `yaml:"fragile"`
	// PracticeMode categories keep items with unresolved choices or answers
	// as unscored practice items instead of dropping them.
	PracticeMode bool `yaml:"practice_mode"`
	// DefaultSubtype is assumed for items of this category with no subtype tag.
	DefaultSubtype string `yaml:"default_subtype"`
}

// Subject maps localized subject labels to a canonical code.
type Subject struct {
	Code    string   `yaml:"code"`
	Aliases []string `yaml:"aliases"`
}

// Preset is a named per-category count plan.
type Preset struct {
	Name   string         `yaml:"name"`
	Counts map[string]int `yaml:"counts"`
}

// Taxonomy is immutable after loading and safe for concurrent use.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
	Subjects   []Subject  `yaml:"subjects"`
	Presets    []Preset   `yaml:"presets"`

	byCode     map[string]int
	categories map[string]string // folded alias -> code
	subjects   map[string]string // folded alias -> code
	labels     map[string]string // subtype label -> category code
	presets    map[string]int
}

// wordPairPattern matches label-like tokens such as "문법_빈칸" or "topic_kind".
var wordPairPattern = regexp.MustCompile(`^[\p{L}\p{N}]+_[\p{L}\p{N}]+$`)

// Fold normalizes a label for table lookups: NFKC (full-width to ASCII),
// Unicode case folding and surrounding whitespace trimmed.
func Fold(s string) string {
	return strings.TrimSpace(cases.Fold().String(norm.NFKC.String(s)))
}

func (t *Taxonomy) index() {
	t.byCode = make(map[string]int, len(t.Categories))
	t.categories = make(map[string]string)
	t.subjects = make(map[string]string)
	t.labels = make(map[string]string)
	t.presets = make(map[string]int, len(t.Presets))

	for i, c := range t.Categories {
		t.byCode[c.Code] = i
		t.categories[Fold(c.Code)] = c.Code
		for _, a := range c.Aliases {
			t.categories[Fold(a)] = c.Code
		}
		for _, s := range c.Subtypes {
			t.labels[s] = c.Code
		}
	}
	for _, s := range t.Subjects {
		t.subjects[Fold(s.Code)] = s.Code
		for _, a := range s.Aliases {
			t.subjects[Fold(a)] = s.Code
		}
	}
	for i, p := range t.Presets {
		t.presets[Fold(p.Name)] = i
	}
}

// Category returns the category with the given canonical code.
func (t *Taxonomy) Category(code string) (Category, bool) {
	i, ok := t.byCode[code]
	if !ok {
		return Category{}, false
	}
	return t.Categories[i], true
}

// Codes returns the category codes in priority order.
func (t *Taxonomy) Codes() []string {
	codes := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		codes[i] = c.Code
	}
	return codes
}

// Rank returns the priority position of a category code, or -1.
func (t *Taxonomy) Rank(code string) int {
	if i, ok := t.byCode[code]; ok {
		return i
	}
	return -1
}

// ResolveCategory maps a user-facing label (code, English or Korean alias)
// to a canonical category code.
func (t *Taxonomy) ResolveCategory(label string) (string, bool) {
	code, ok := t.categories[Fold(label)]
	return code, ok
}

// ResolveSubject maps a subject label to its canonical code.
func (t *Taxonomy) ResolveSubject(label string) (string, bool) {
	code, ok := t.subjects[Fold(label)]
	return code, ok
}

// CategoryForSubtype returns the category whose subtype prefix the given
// subtype tag carries.
func (t *Taxonomy) CategoryForSubtype(subtype string) (string, bool) {
	if subtype == "" {
		return "", false
	}
	if code, ok := t.labels[subtype]; ok {
		return code, true
	}
	for _, c := range t.Categories {
		if c.SubtypePrefix != "" && strings.HasPrefix(subtype, c.SubtypePrefix) {
			return c.Code, true
		}
	}
	return "", false
}

// InferSubtype returns subtype, or the category's default subtype when the
// item carries none.
func (t *Taxonomy) InferSubtype(category, subtype string) string {
	if subtype != "" {
		return subtype
	}
	if c, ok := t.Category(category); ok {
		return c.DefaultSubtype
	}
	return ""
}

// IsLabelLike reports whether s looks like a taxonomy label rather than
// human-readable content: a known subtype or a single word_word token.
func (t *Taxonomy) IsLabelLike(s string) bool {
	s = strings.TrimSpace(s)
	if _, ok := t.labels[s]; ok {
		return true
	}
	return wordPairPattern.MatchString(s)
}

// Preset returns the named count plan.
func (t *Taxonomy) Preset(name string) (Preset, bool) {
	i, ok := t.presets[Fold(name)]
	if !ok {
		return Preset{}, false
	}
	return t.Presets[i], true
}
