// Package schema extracts the canonical quiz item out of heterogeneous
// stored payloads.
//
// Every logical field is read through an ordered rule table (see rules.go);
// the first usable value wins. Items whose required fields cannot be
// resolved are dropped with a reason, except in practice-mode categories,
// where they survive as unscored practice items.
package schema

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/document"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// ChoiceCount is the fixed number of choices of every quiz item.
const ChoiceCount = 5

const (
	deepFindMaxDepth  = 6
	deepFindMinLength = 8
)

// QuizItem is the canonical, render-ready shape of an item. Unless
// PracticeMode is set, Question is non-empty, Choices holds ChoiceCount
// non-empty strings and AnswerIndex is in [0, ChoiceCount).
type QuizItem struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Subtype      string   `json:"subtype,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Passage      string   `json:"passage,omitempty"`
	Question     string   `json:"question"`
	Choices      []string `json:"choices"`
	AnswerIndex  int      `json:"answer_index"`
	Explanation  string   `json:"explanation,omitempty"`
	PracticeMode bool     `json:"practice_mode"`
}

// Drop reasons.
var (
	ErrMissingQuestion   = errors.New("missing_question")
	ErrUnresolvedChoices = errors.New("unresolved_choices")
	ErrUnresolvedAnswer  = errors.New("unresolved_answer")
)

// Reason returns the drop reason carried by err.
func Reason(err error) string {
	for _, r := range []error{ErrMissingQuestion, ErrUnresolvedChoices, ErrUnresolvedAnswer} {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return "unknown"
}

// AnswerStatus classifies the answer fields of a payload.
type AnswerStatus int

const (
	// AnswerAbsent means no answer field was present.
	AnswerAbsent AnswerStatus = iota
	// AnswerInvalid means a field was present but none held a usable index.
	AnswerInvalid
	// AnswerValid means Index is a usable 0-based index.
	AnswerValid
)

func (s AnswerStatus) String() string {
	switch s {
	case AnswerAbsent:
		return "absent"
	case AnswerInvalid:
		return "invalid"
	case AnswerValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Answer is the result of answer extraction. Index is meaningful only when
// Status is AnswerValid.
type Answer struct {
	Index  int
	Status AnswerStatus
}

// Normalizer converts stored items into QuizItems.
type Normalizer struct {
	tax *taxonomy.Taxonomy
}

// NewNormalizer creates a normalizer that resolves labels and practice-mode
// policy against tax.
func NewNormalizer(tax *taxonomy.Taxonomy) *Normalizer {
	return &Normalizer{tax: tax}
}

// Normalize builds the canonical item for it within category. The returned
// error, if any, wraps one of the drop reasons.
func (n *Normalizer) Normalize(it bank.Item, category, subtype string) (QuizItem, error) {
	root := it.Payload

	qi := QuizItem{
		ID:          it.ID,
		Category:    category,
		Subtype:     subtype,
		Difficulty:  it.Difficulty,
		Passage:     ExtractPassage(root),
		Explanation: ExtractExplanation(root),
	}

	qi.Question = n.ExtractQuestion(root)
	if qi.Question == "" {
		return QuizItem{}, fmt.Errorf("item %s: %w", it.ID, ErrMissingQuestion)
	}

	choices, choicesOK := ExtractChoices(root)
	answer := Answer{Status: AnswerAbsent}
	if choicesOK {
		answer = ExtractAnswer(root, choices)
	}

	if choicesOK && answer.Status == AnswerValid {
		qi.Choices = choices
		qi.AnswerIndex = answer.Index
		return qi, nil
	}

	if cat, ok := n.tax.Category(category); ok && cat.PracticeMode {
		qi.Choices = PracticeChoices()
		qi.AnswerIndex = 0
		qi.PracticeMode = true
		return qi, nil
	}

	if !choicesOK {
		return QuizItem{}, fmt.Errorf("item %s: %w", it.ID, ErrUnresolvedChoices)
	}
	return QuizItem{}, fmt.Errorf("item %s: answer %s: %w", it.ID, answer.Status, ErrUnresolvedAnswer)
}

// PracticeChoices returns the placeholder choices of practice items.
func PracticeChoices() []string {
	choices := make([]string, ChoiceCount)
	for i := range choices {
		choices[i] = strconv.Itoa(i + 1)
	}
	return choices
}

// Subtype returns the subtype tag of a payload, or "".
func Subtype(root *document.Node) string {
	s, _ := firstText(root, subtypeRules, nil)
	return s
}

// ExtractQuestion returns the question text. When no rule matches, it falls
// back to the first sufficiently long, non-label string found anywhere in
// the payload outside answer, explanation, metadata, choice and passage
// subtrees.
func (n *Normalizer) ExtractQuestion(root *document.Node) string {
	notLabel := func(s string) bool { return !n.tax.IsLabelLike(s) }
	if s, ok := firstText(root, questionRules, notLabel); ok {
		return s
	}

	s, ok := document.Search(root, deepFindMaxDepth, enterForDeepFind, func(s string) bool {
		s = strings.TrimSpace(s)
		return utf8.RuneCountInString(s) >= deepFindMinLength && !isPlaceholderText(s) && !n.tax.IsLabelLike(s)
	})
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// ExtractPassage returns the reading passage or dialogue script, or "".
// Dialogue scripts stored as arrays of lines are joined with newlines.
func ExtractPassage(root *document.Node) string {
	for _, rule := range passageRules {
		node := root.Lookup(rule...)
		if s := joinLines(node); s != "" && !isPlaceholderText(s) {
			return s
		}
	}
	return ""
}

// ExtractExplanation returns the explanation, or "" when absent or a known
// "no explanation" sentinel.
func ExtractExplanation(root *document.Node) string {
	s, _ := firstText(root, explanationRules, nil)
	return s
}

// ExtractChoices returns exactly ChoiceCount non-empty choices. Generic
// placeholder lists ("option 1".."option 5") count as absent.
func ExtractChoices(root *document.Node) ([]string, bool) {
	for _, rule := range choiceContainerRules {
		node := root.Lookup(rule...)
		var choices []string
		switch node.Kind() {
		case document.Array:
			for _, el := range node.Items() {
				choices = append(choices, choiceText(el))
			}
		case document.Object:
			choices = keyedChoices(node)
		default:
			continue
		}
		if usableChoices(choices) {
			return choices, true
		}
	}

	for _, scope := range legacyChoiceScopes {
		obj := root.Lookup(scope...)
		if obj.Kind() != document.Object {
			continue
		}
		for _, pattern := range legacyChoicePatterns {
			choices := make([]string, ChoiceCount)
			for i := range choices {
				choices[i] = choiceText(obj.Get(fmt.Sprintf(pattern, i+1)))
			}
			if usableChoices(choices) {
				return choices, true
			}
		}
		choices := make([]string, ChoiceCount)
		for i, letter := range legacyChoiceLetters {
			choices[i] = choiceText(obj.Get(letter))
		}
		if usableChoices(choices) {
			return choices, true
		}
	}
	return nil, false
}

func usableChoices(choices []string) bool {
	if len(choices) != ChoiceCount {
		return false
	}
	for _, c := range choices {
		if c == "" {
			return false
		}
	}
	return !isPlaceholderChoices(choices)
}

// keyedChoices reads an object like {"1": "a", "2": "b"} as a list ordered
// by numeric key. Non-numeric keys disqualify the object.
func keyedChoices(obj *document.Node) []string {
	type entry struct {
		n    int
		text string
	}
	var entries []entry
	for _, f := range obj.Fields() {
		n, err := strconv.Atoi(strings.TrimSpace(f.Key))
		if err != nil {
			return nil
		}
		entries = append(entries, entry{n: n, text: choiceText(f.Value)})
	}
	slices.SortStableFunc(entries, func(a, b entry) int { return cmp.Compare(a.n, b.n) })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.text
	}
	return out
}

// choiceText renders one choice element: a scalar, or an object carrying
// its text under a conventional key.
func choiceText(n *document.Node) string {
	if s, ok := n.Scalar(); ok {
		return strings.TrimSpace(s)
	}
	if n.Kind() == document.Object {
		for _, key := range []string{"text", "label", "value", "content", "choice", "option"} {
			if s, ok := n.Get(key).Scalar(); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// ExtractAnswer resolves the 0-based answer index. 1-based fields are tried
// before 0-based ones; a present but unusable field does not stop the
// search. A textual answer equal to one of choices resolves to its index.
func ExtractAnswer(root *document.Node, choices []string) Answer {
	sawInvalid := false

	try := func(rules []path, oneBased bool) (int, bool) {
		for _, rule := range rules {
			idx, present, ok := parseAnswer(root.Lookup(rule...), oneBased, choices)
			if ok {
				return idx, true
			}
			if present {
				sawInvalid = true
			}
		}
		return 0, false
	}

	if idx, ok := try(oneBasedAnswerRules, true); ok {
		return Answer{Index: idx, Status: AnswerValid}
	}
	if idx, ok := try(zeroBasedAnswerRules, false); ok {
		return Answer{Index: idx, Status: AnswerValid}
	}
	if sawInvalid {
		return Answer{Status: AnswerInvalid}
	}
	return Answer{Status: AnswerAbsent}
}

func parseAnswer(n *document.Node, oneBased bool, choices []string) (idx int, present, ok bool) {
	var raw int
	switch n.Kind() {
	case document.Null:
		return 0, false, false
	case document.Number:
		f, _ := n.Float()
		if f != math.Trunc(f) || math.Abs(f) > ChoiceCount+1 {
			return 0, true, false
		}
		raw = int(f)
	case document.String:
		s, _ := n.Str()
		// NFKC folds circled and full-width digits ("③", "３") to ASCII.
		s = strings.TrimSpace(norm.NFKC.String(s))
		if s == "" {
			return 0, false, false
		}
		v, err := strconv.Atoi(strings.TrimRight(s, "번.)"))
		if err != nil {
			if oneBased {
				for i, c := range choices {
					if strings.EqualFold(c, s) {
						return i, true, true
					}
				}
			}
			return 0, true, false
		}
		raw = v
	default:
		return 0, true, false
	}

	if oneBased {
		raw--
	}
	if raw < 0 || raw >= ChoiceCount {
		return 0, true, false
	}
	return raw, true, true
}

// firstText returns the first non-empty, non-placeholder scalar found at
// rules that also satisfies accept (when given).
func firstText(root *document.Node, rules []path, accept func(string) bool) (string, bool) {
	for _, rule := range rules {
		s, ok := root.Lookup(rule...).Scalar()
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || isPlaceholderText(s) {
			continue
		}
		if accept != nil && !accept(s) {
			continue
		}
		return s, true
	}
	return "", false
}

// joinLines renders scalars as text and arrays of lines (strings, or
// objects with speaker and text) as newline-separated text.
func joinLines(n *document.Node) string {
	switch n.Kind() {
	case document.String, document.Number:
		s, _ := n.Scalar()
		return strings.TrimSpace(s)
	case document.Array:
		var lines []string
		for _, el := range n.Items() {
			if line := dialogueLine(el); line != "" {
				lines = append(lines, line)
			}
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

func dialogueLine(n *document.Node) string {
	if s, ok := n.Scalar(); ok {
		return strings.TrimSpace(s)
	}
	if n.Kind() != document.Object {
		return ""
	}
	text := choiceText(n)
	if text == "" {
		for _, key := range []string{"line", "utterance", "대사"} {
			if s, ok := n.Get(key).Scalar(); ok {
				text = strings.TrimSpace(s)
				break
			}
		}
	}
	if text == "" {
		return ""
	}
	for _, key := range []string{"speaker", "role", "name", "화자"} {
		if s, ok := n.Get(key).Scalar(); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s) + ": " + text
		}
	}
	return text
}
