package compose_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/compose"
	"github.com/p-n-ai/pai-quizset/internal/document"
	"github.com/p-n-ai/pai-quizset/internal/request"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

func valid(id, category, qtype string) bank.Item {
	return bank.Item{
		ID: id, Grade: "2", Subject: "english", Category: category,
		Payload: document.MustParse(fmt.Sprintf(`{
			"qtype": %q,
			"question": "Question number %s?",
			"choices": ["alpha", "bravo", "charlie", "delta", "echo"],
			"answer": 2
		}`, qtype, id)),
	}
}

func placeholderChoices(id, category string) bank.Item {
	return bank.Item{
		ID: id, Grade: "2", Subject: "english", Category: category,
		Payload: document.MustParse(`{
			"question": "Which one is right?",
			"choices": ["option 1", "option 2", "option 3", "option 4", "option 5"],
			"answer": 1
		}`),
	}
}

func fill(store *bank.MemoryStore, category, qtype string, n int) {
	for i := range n {
		store.Add(valid(fmt.Sprintf("%s-%d", category, i), category, qtype))
	}
}

func newEngine(store bank.Store) *compose.Engine {
	return compose.NewEngine(store, taxonomy.Default(), compose.Config{
		Rand: rand.New(rand.NewPCG(7, 7)),
	})
}

type failingStore struct{}

func (failingStore) Query(context.Context, bank.Filter, int) ([]bank.Item, error) {
	return nil, errors.New("connection reset by peer")
}

func TestCompose_EvenSplit(t *testing.T) {
	store := bank.NewMemoryStore()
	fill(store, "vocab", "어휘_사전", 10)
	fill(store, "grammar", "문법_빈칸", 10)
	fill(store, "dialogue", "대화문_흐름", 10)
	fill(store, "reading", "본문_제목", 10)

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade:      "중2",
		Subject:    "영어",
		Categories: request.Labels{"어휘, 문법", "대화문", "본문"},
		Count:      20,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if res.RequestID == "" {
		t.Error("RequestID is empty")
	}
	if res.Grade != "2" || res.Subject != "english" {
		t.Errorf("grade/subject = %q/%q, want 2/english", res.Grade, res.Subject)
	}
	if len(res.Items) != 20 {
		t.Fatalf("len(Items) = %d, want 20", len(res.Items))
	}
	for _, cat := range []string{"vocab", "grammar", "dialogue", "reading"} {
		if res.ActualCounts[cat] != 5 {
			t.Errorf("ActualCounts[%s] = %d, want 5", cat, res.ActualCounts[cat])
		}
	}
	if len(res.Shortfall) != 0 {
		t.Errorf("Shortfall = %v, want empty", res.Shortfall)
	}

	seen := make(map[string]bool)
	for _, it := range res.Items {
		if seen[it.ID] {
			t.Errorf("duplicate item %s", it.ID)
		}
		seen[it.ID] = true
		if len(it.Choices) != 5 || it.AnswerIndex != 1 || it.PracticeMode {
			t.Errorf("item %s: choices=%d answer=%d practice=%v", it.ID, len(it.Choices), it.AnswerIndex, it.PracticeMode)
		}
	}
}

func TestCompose_UnevenSplit(t *testing.T) {
	store := bank.NewMemoryStore()
	fill(store, "vocab", "어휘_사전", 10)
	fill(store, "dialogue", "대화문_흐름", 10)
	fill(store, "reading", "본문_제목", 10)

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"vocab", "dialogue", "reading"}, Count: 20,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	want := []int{7, 7, 6}
	for i, rep := range res.Report {
		if rep.Quota != want[i] || rep.Actual != want[i] {
			t.Errorf("Report[%d] %s quota=%d actual=%d, want %d", i, rep.Category, rep.Quota, rep.Actual, want[i])
		}
	}
}

func TestCompose_GrammarFallback(t *testing.T) {
	store := bank.NewMemoryStore()
	for i := range 40 {
		qtype := "본문_제목"
		if i%10 < 3 {
			qtype = "문법_어법오류"
		}
		store.Add(valid(fmt.Sprint(i), "reading", qtype))
	}

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"grammar"}, Count: 10,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	rep := res.Report[0]
	if !rep.Fallback || rep.PoolSize != 12 {
		t.Errorf("report fallback=%v pool=%d, want true/12", rep.Fallback, rep.PoolSize)
	}
	if len(res.Items) != 10 {
		t.Errorf("len(Items) = %d, want 10", len(res.Items))
	}
	for _, it := range res.Items {
		if it.Category != "grammar" || it.Subtype != "문법_어법오류" {
			t.Errorf("item %s category/subtype = %s/%s", it.ID, it.Category, it.Subtype)
		}
	}
}

func TestCompose_DropsAndBackfills(t *testing.T) {
	store := bank.NewMemoryStore()
	fill(store, "vocab", "어휘_사전", 2)
	for i := range 5 {
		store.Add(placeholderChoices(fmt.Sprintf("bad-%d", i), "vocab"))
	}
	fill(store, "reading", "본문_제목", 20)

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"vocab", "reading"}, Count: 10,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	vocab, reading := res.Report[0], res.Report[1]
	if vocab.PoolSize != 7 || vocab.Dropped["unresolved_choices"] != 5 {
		t.Errorf("vocab pool=%d dropped=%v, want 7 and 5 unresolved_choices", vocab.PoolSize, vocab.Dropped)
	}
	if vocab.Actual != 2 || vocab.Shortfall != 3 || res.Shortfall["vocab"] != 3 {
		t.Errorf("vocab actual=%d shortfall=%d, want 2/3", vocab.Actual, vocab.Shortfall)
	}
	if reading.Actual != 8 || reading.Backfilled != 3 {
		t.Errorf("reading actual=%d backfilled=%d, want 8/3", reading.Actual, reading.Backfilled)
	}
	if len(res.Items) != 10 {
		t.Errorf("len(Items) = %d, want 10", len(res.Items))
	}
}

func TestCompose_GrammarPracticeMode(t *testing.T) {
	store := bank.NewMemoryStore(bank.Item{
		ID: "g1", Grade: "2", Subject: "english", Category: "grammar",
		Payload: document.MustParse(`{"qtype": "문법_배열", "raw": {"문제": "Put the words in order."}}`),
	})

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"grammar"}, Count: 5,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(res.Items) != 1 || !res.Items[0].PracticeMode {
		t.Fatalf("Items = %+v, want one practice item", res.Items)
	}
	if res.Report[0].PracticeItems != 1 || res.Shortfall["grammar"] != 4 {
		t.Errorf("report = %+v", res.Report[0])
	}
}

func TestCompose_Preset(t *testing.T) {
	store := bank.NewMemoryStore()
	fill(store, "vocab", "어휘_사전", 10)
	fill(store, "grammar", "문법_빈칸", 10)
	fill(store, "dialogue", "대화문_흐름", 10)
	fill(store, "reading", "본문_제목", 10)

	res, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Preset: "vocab_focus",
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if res.TargetCount != 20 || res.ActualCounts["vocab"] != 8 {
		t.Errorf("target=%d vocab=%d, want 20/8", res.TargetCount, res.ActualCounts["vocab"])
	}
}

func TestCompose_NoCandidates(t *testing.T) {
	store := bank.NewMemoryStore(placeholderChoices("bad", "vocab"))

	_, err := newEngine(store).Compose(t.Context(), request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"vocab", "reading"},
	})
	if !errors.Is(err, apierr.ErrNoCandidates) {
		t.Fatalf("Compose() error = %v, want ErrNoCandidates", err)
	}
	var nc *apierr.NoCandidatesError
	if !errors.As(err, &nc) {
		t.Fatalf("error %T is not *NoCandidatesError", err)
	}
	if nc.PoolSizes["vocab"] != 1 || nc.Dropped["vocab"] != 1 || nc.PoolSizes["reading"] != 0 {
		t.Errorf("diagnostics pool=%v dropped=%v", nc.PoolSizes, nc.Dropped)
	}
}

func TestCompose_Errors(t *testing.T) {
	tests := []struct {
		name  string
		store bank.Store
		raw   request.RawRequest
		want  error
	}{
		{
			name:  "missing grade",
			store: bank.NewMemoryStore(),
			raw:   request.RawRequest{Subject: "english", Categories: request.Labels{"vocab"}},
			want:  apierr.ErrInvalidRequest,
		},
		{
			name:  "unknown categories only",
			store: bank.NewMemoryStore(),
			raw:   request.RawRequest{Grade: "2", Subject: "english", Categories: request.Labels{"physics"}},
			want:  apierr.ErrInvalidRequest,
		},
		{
			name:  "store down",
			store: failingStore{},
			raw:   request.RawRequest{Grade: "2", Subject: "english", Categories: request.Labels{"vocab"}},
			want:  apierr.ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newEngine(tt.store).Compose(t.Context(), tt.raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("Compose() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompose_Canceled(t *testing.T) {
	store := bank.NewMemoryStore()
	fill(store, "vocab", "어휘_사전", 5)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := newEngine(store).Compose(ctx, request.RawRequest{
		Grade: "2", Subject: "english", Categories: request.Labels{"vocab"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Compose() error = %v, want context.Canceled", err)
	}
}
