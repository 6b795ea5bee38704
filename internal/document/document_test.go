package document_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-quizset/internal/document"
)

func TestParse_PreservesMemberOrder(t *testing.T) {
	n, err := document.Parse([]byte(`{"z": 1, "a": "two", "m": [true, null]}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	fields := n.Fields()
	if len(fields) != 3 {
		t.Fatalf("len(Fields()) = %d, want 3", len(fields))
	}
	want := []string{"z", "a", "m"}
	for i, f := range fields {
		if f.Key != want[i] {
			t.Errorf("Fields()[%d].Key = %q, want %q", i, f.Key, want[i])
		}
	}

	if got := n.Get("m").Len(); got != 2 {
		t.Errorf("Get(m).Len() = %d, want 2", got)
	}
	if !n.Get("m").Items()[1].IsNull() {
		t.Error("second element of m should be null")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ``},
		{"truncated", `{"a": `},
		{"trailing", `{"a": 1} {"b": 2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := document.Parse([]byte(tt.input)); err == nil {
				t.Errorf("Parse(%q) should return error", tt.input)
			}
		})
	}
}

func TestNode_Scalar(t *testing.T) {
	n := document.MustParse(`{"s": "text", "i": 3, "f": 2.50, "b": true, "o": {}}`)

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"s", "text", true},
		{"i", "3", true},
		{"f", "2.50", true},
		{"b", "", false},
		{"o", "", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := n.Get(tt.key).Scalar()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Scalar() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNode_Lookup(t *testing.T) {
	n := document.MustParse(`{"raw": {"meta": {"qtype": "문법_빈칸"}}, "list": [1]}`)

	if got, _ := n.Lookup("raw", "meta", "qtype").Str(); got != "문법_빈칸" {
		t.Errorf("Lookup(raw.meta.qtype) = %q, want 문법_빈칸", got)
	}
	if n.Lookup("raw", "missing", "qtype") != nil {
		t.Error("Lookup through a missing key should return nil")
	}
	if n.Lookup("list", "0") != nil {
		t.Error("Lookup should not index into arrays")
	}

	var nilNode *document.Node
	if nilNode.Lookup("a") != nil {
		t.Error("Lookup on nil node should return nil")
	}
	if nilNode.Kind() != document.Null {
		t.Errorf("nil Kind() = %v, want null", nilNode.Kind())
	}
}

func TestSearch(t *testing.T) {
	n := document.MustParse(`{
		"answer": "this string is long but blocked",
		"meta": {"note": "short"},
		"blocks": [{"kind": "x", "text": "the first long enough string"}],
		"later": "another long enough string"
	}`)

	long := func(s string) bool { return len(s) >= 10 }
	enter := func(key string) bool { return key != "answer" }

	got, ok := document.Search(n, 6, enter, long)
	if !ok {
		t.Fatal("Search() found nothing")
	}
	if got != "the first long enough string" {
		t.Errorf("Search() = %q, want first match in document order", got)
	}

	if _, ok := document.Search(n, 1, enter, func(s string) bool { return strings.HasPrefix(s, "the first") }); ok {
		t.Error("Search() should not descend past maxDepth")
	}
}

func TestMarshalJSON_KeepsOrder(t *testing.T) {
	src := `{"b":1,"a":{"y":"2","x":[1.0,null,false]}}`
	n := document.MustParse(src)

	out, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != src {
		t.Errorf("Marshal() = %s, want %s", out, src)
	}

	var back document.Node
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Fields()[0].Key != "b" {
		t.Errorf("first key after round trip = %q, want b", back.Fields()[0].Key)
	}
}

func TestBuilders(t *testing.T) {
	n := document.NewObject(
		document.Field{Key: "question", Value: document.NewString("Q?")},
		document.Field{Key: "answer", Value: document.NewNumber(3)},
		document.Field{Key: "choices", Value: document.NewArray(document.NewString("a"), document.NewBool(false))},
	)

	if got := n.String(); got != `{"question":"Q?","answer":3,"choices":["a",false]}` {
		t.Errorf("String() = %s", got)
	}
	if f, ok := n.Get("answer").Float(); !ok || f != 3 {
		t.Errorf("Float() = (%v, %v), want (3, true)", f, ok)
	}
}
