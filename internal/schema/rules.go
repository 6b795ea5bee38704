package schema

import (
	"regexp"
	"strings"
)

// path is a key path from the payload root.
type path []string

func p(keys ...string) path { return keys }

// Field rules: ordered candidate locations per logical field. The first
// usable value wins. Top-level keys come first, then the raw sub-object the
// importer writes, then the legacy localized and wrapper locations.
var (
	subtypeRules = []path{
		p("qtype"), p("raw", "qtype"), p("meta", "qtype"), p("data", "qtype"),
		p("subtype"), p("raw", "subtype"), p("raw", "소분류"), p("raw", "유형"),
		p("소분류"), p("유형"),
	}

	questionRules = []path{
		p("question"), p("raw", "question"), p("raw", "문제"),
		p("stem"), p("raw", "stem"), p("prompt"), p("raw", "prompt"),
		p("text"), p("raw", "text"),
		p("sentence"), p("raw", "sentence"), p("line"), p("raw", "line"),
		p("cloze"), p("raw", "cloze"), p("ask"), p("raw", "ask"), p("raw", "질문"), p("raw", "물음"),
		p("문제"), p("질문"), p("물음"),
		p("data", "question"), p("data", "text"),
		p("payload", "question"), p("payload", "text"),
		p("content", "question"), p("content", "raw", "문제"),
	}

	passageRules = []path{
		p("passage"), p("raw", "passage"), p("raw", "지문"),
		p("stimulus"), p("raw", "stimulus"), p("raw", "본문"),
		p("지문"), p("본문"), p("reading"), p("article"),
		p("dialogue"), p("raw", "dialogue"), p("conversation"),
		p("data", "passage"), p("payload", "passage"), p("content", "raw", "지문"),
	}

	explanationRules = []path{
		p("explanation"), p("raw", "explanation"), p("raw", "해설"),
		p("solution"), p("raw", "solution"), p("commentary"),
		p("해설"), p("raw", "비고"), p("raw", "메모"), p("비고"), p("메모"),
		p("data", "explanation"), p("payload", "explanation"),
	}

	// Array or keyed-object choice containers, in priority order.
	choiceContainerRules = []path{
		p("choices"), p("raw", "choices"),
		p("options"), p("raw", "options"),
		p("보기"), p("raw", "보기"),
		p("선택지"), p("raw", "선택지"),
		p("candidates"), p("raw", "candidates"),
		p("data", "choices"), p("payload", "choices"),
	}

	// Scopes searched for K numbered legacy keys.
	legacyChoiceScopes = []path{p("raw"), p(), p("data"), p("content", "raw")}

	// Numbered key conventions: fmt patterns taking a 1-based index.
	legacyChoicePatterns = []string{"보기%d", "선택지%d", "choice%d", "option%d", "choice_%d", "option_%d"}

	// Letter-keyed convention.
	legacyChoiceLetters = []string{"A", "B", "C", "D", "E"}

	oneBasedAnswerRules = []path{
		p("정답번호"), p("raw", "정답번호"),
		p("answer_no"), p("raw", "answer_no"),
		p("answerNumber"), p("raw", "answerNumber"),
		p("answerNo"), p("raw", "answerNo"),
		p("answer"), p("raw", "answer"),
		p("correct"), p("raw", "correct"),
		p("정답"), p("raw", "정답"),
		p("data", "answer"), p("content", "raw", "정답번호"),
	}

	zeroBasedAnswerRules = []path{
		p("answerIndex"), p("raw", "answerIndex"),
		p("correctIndex"), p("raw", "correctIndex"),
		p("data", "answerIndex"),
	}
)

// Values that mean "nothing here" in otherwise populated text fields.
var placeholderText = newSet(
	"해설이 제공되지 않았습니다.", "해설이 제공되지 않았습니다", "해설 없음", "없음",
	"no explanation provided.", "no explanation provided", "no explanation",
	"n/a", "na", "none", "null", "undefined", "tbd", "-", "--", "?",
)

func newSet(values ...string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func isPlaceholderText(s string) bool {
	return placeholderText[strings.ToLower(strings.TrimSpace(s))]
}

// genericChoice matches synthetic option labels such as "option 1",
// "Choice3" or "보기 2".
var genericChoice = regexp.MustCompile(`(?i)^(option|choice|보기|선택지)\s*[_#-]?\s*\d+$`)

// isPlaceholderChoices reports whether every choice is a generic label.
func isPlaceholderChoices(choices []string) bool {
	for _, c := range choices {
		if !genericChoice.MatchString(c) {
			return false
		}
	}
	return true
}

// Keys never descended into by the deep-find fallback: identifiers and
// metadata, answers and explanations, choice containers and passages.
var deepFindSkipKeys = newSet(
	"id", "qtype", "subtype", "category", "grade", "subject", "difficulty",
	"content_hash", "hash", "meta", "metadata", "tags", "source", "created_at", "updated_at",
	"answer", "answers", "correct", "answerindex", "correctindex", "answer_no",
	"answernumber", "answerno", "solution", "explanation", "commentary",
	"해설", "정답", "정답번호", "비고", "메모", "소분류", "유형",
	"choices", "options", "candidates", "보기", "선택지",
	"passage", "stimulus", "지문", "본문", "reading", "article", "dialogue", "conversation",
	"translation", "해석",
)

// numberedChoiceKey matches legacy numbered choice keys like "보기3" or
// "option_2", and single letters A-E.
var numberedChoiceKey = regexp.MustCompile(`(?i)^((보기|선택지|choice|option)[\s_]?\d+|[a-e])$`)

func enterForDeepFind(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	return !deepFindSkipKeys[k] && !numberedChoiceKey.MatchString(k)
}
