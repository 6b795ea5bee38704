package taxonomy_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

func TestDefault_Categories(t *testing.T) {
	tax := taxonomy.Default()

	want := []string{"vocab", "grammar", "dialogue", "reading"}
	if got := tax.Codes(); !slices.Equal(got, want) {
		t.Errorf("Codes() = %v, want %v", got, want)
	}

	grammar, ok := tax.Category("grammar")
	if !ok {
		t.Fatal("Category(grammar) not found")
	}
	if !grammar.Fragile || !grammar.PracticeMode {
		t.Errorf("grammar Fragile=%v PracticeMode=%v, want both true", grammar.Fragile, grammar.PracticeMode)
	}
	if grammar.SubtypePrefix != "문법_" {
		t.Errorf("grammar SubtypePrefix = %q, want 문법_", grammar.SubtypePrefix)
	}
}

func TestResolveCategory(t *testing.T) {
	tax := taxonomy.Default()

	tests := []struct {
		label  string
		want   string
		wantOK bool
	}{
		{"vocab", "vocab", true},
		{"VOCABULARY", "vocab", true},
		{" 어휘 ", "vocab", true},
		{"단어", "vocab", true},
		{"문법", "grammar", true},
		{"body", "reading", true},
		{"본문", "reading", true},
		{"ｒｅａｄｉｎｇ", "reading", true},
		{"대화", "dialogue", true},
		{"Conversation", "dialogue", true},
		{"listening", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := tax.ResolveCategory(tt.label)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResolveCategory(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolveSubject(t *testing.T) {
	tax := taxonomy.Default()

	tests := []struct {
		label string
		want  string
	}{
		{"영어", "english"},
		{"English", "english"},
		{"ENG", "english"},
		{"수학", "math"},
		{"kor", "korean"},
		{"사회", "social"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := tax.ResolveSubject(tt.label)
			if !ok || got != tt.want {
				t.Errorf("ResolveSubject(%q) = (%q, %v), want %q", tt.label, got, ok, tt.want)
			}
		})
	}
}

func TestCategoryForSubtype(t *testing.T) {
	tax := taxonomy.Default()

	tests := []struct {
		subtype string
		want    string
		wantOK  bool
	}{
		{"문법_빈칸", "grammar", true},
		{"문법_새유형", "grammar", true},
		{"대화문_흐름", "dialogue", true},
		{"본문_제목", "reading", true},
		{"어휘_문맥", "vocab", true},
		{"topic_kind", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.subtype, func(t *testing.T) {
			got, ok := tax.CategoryForSubtype(tt.subtype)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CategoryForSubtype(%q) = (%q, %v), want (%q, %v)", tt.subtype, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestInferSubtype(t *testing.T) {
	tax := taxonomy.Default()

	tests := []struct {
		category string
		subtype  string
		want     string
	}{
		{"vocab", "", "어휘_사전"},
		{"grammar", "", "문법_빈칸"},
		{"dialogue", "", "대화문_빈칸"},
		{"reading", "", "본문_물음"},
		{"reading", "본문_제목", "본문_제목"},
		{"reading", "custom_tag", "custom_tag"},
		{"unknown", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.category+"/"+tt.subtype, func(t *testing.T) {
			if got := tax.InferSubtype(tt.category, tt.subtype); got != tt.want {
				t.Errorf("InferSubtype(%q, %q) = %q, want %q", tt.category, tt.subtype, got, tt.want)
			}
		})
	}
}

func TestIsLabelLike(t *testing.T) {
	tax := taxonomy.Default()

	tests := []struct {
		s    string
		want bool
	}{
		{"문법_빈칸", true},
		{"topic_kind", true},
		{"Choose the correct word.", false},
		{"다음 빈칸에 알맞은 것은?", false},
		{"plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			if got := tax.IsLabelLike(tt.s); got != tt.want {
				t.Errorf("IsLabelLike(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}

func TestPreset(t *testing.T) {
	tax := taxonomy.Default()

	p, ok := tax.Preset("Balanced")
	if !ok {
		t.Fatal("Preset(Balanced) not found")
	}
	total := 0
	for _, n := range p.Counts {
		total += n
	}
	if total != 20 {
		t.Errorf("balanced total = %d, want 20", total)
	}

	if _, ok := tax.Preset("nope"); ok {
		t.Error("Preset(nope) should not be found")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	os.WriteFile(path, []byte(`
categories:
  - code: listening
    aliases: [듣기]
    subtype_prefix: 듣기_
    subtypes: [듣기_요지]
  - code: writing
    fragile: true
    subtype_prefix: 쓰기_
subjects:
  - code: english
    aliases: [영어]
`), 0o644)

	tax, err := taxonomy.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, _ := tax.ResolveCategory("듣기"); got != "listening" {
		t.Errorf("ResolveCategory(듣기) = %q, want listening", got)
	}
	if _, ok := tax.ResolveCategory("vocab"); ok {
		t.Error("file taxonomy should not contain built-in categories")
	}
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	tax, err := taxonomy.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if tax != taxonomy.Default() {
		t.Error("Load(\"\") should return Default()")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no categories", `subjects: []`},
		{"duplicate code", "categories:\n  - code: a\n  - code: a\n"},
		{"fragile without prefix", "categories:\n  - code: a\n    fragile: true\n"},
		{"default subtype not listed", "categories:\n  - code: a\n    subtypes: [a_x]\n    default_subtype: a_y\n"},
		{"preset unknown category", "categories:\n  - code: a\npresets:\n  - name: p\n    counts: {b: 1}\n"},
		{"malformed", "categories: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := taxonomy.Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() should return error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := taxonomy.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() should return error for a missing file")
	}
}
