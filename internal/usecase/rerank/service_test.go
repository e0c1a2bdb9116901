package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/domain/retrieval"
)

// --- Mocks ---

type mockLLM struct {
	raw   json.RawMessage
	err   error
	calls int
}

func (m *mockLLM) GenerateText(_ context.Context, _, _ string, _ int) (string, error) {
	return "", errors.New("not used")
}

func (m *mockLLM) GenerateJSON(_ context.Context, _, _ string, _ int) (json.RawMessage, error) {
	m.calls++
	return m.raw, m.err
}

func candidates(ids ...string) []retrieval.Document {
	docs := make([]retrieval.Document, len(ids))
	for i, id := range ids {
		docs[i] = retrieval.Document{ID: id, Snippet: "text for " + id, Similarity: 0.5}
	}
	return docs
}

func ids(docs []retrieval.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

// --- Tests ---

func TestRerank_NilLLMIsNoOp(t *testing.T) {
	svc := New(nil, zap.NewNop())
	docs := candidates("a", "b", "c")

	got := svc.Rerank(context.Background(), "query", docs)
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("expected unchanged order, got %v", ids(got))
	}
	if svc.Enabled() {
		t.Error("Enabled() must be false without a model")
	}
}

func TestRerank_SkipsSingleCandidate(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(`{"scores":[{"id":"a","score":9}]}`)}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a"))
	if llm.calls != 0 {
		t.Errorf("single candidate must not hit the model, got %d calls", llm.calls)
	}
	if got[0].Reranked {
		t.Error("skipped candidate must not be marked reranked")
	}
}

func TestRerank_ReordersByScore(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(
		`{"scores":[{"id":"a","score":2},{"id":"b","score":9},{"id":"c","score":5}]}`,
	)}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a", "b", "c"))
	want := []string{"b", "c", "a"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %v, want %v", i, ids(got), want)
		}
	}
	for _, d := range got {
		if !d.Reranked {
			t.Errorf("doc %s not marked reranked", d.ID)
		}
		if d.Score != d.RerankScore {
			t.Errorf("doc %s: Score %v != RerankScore %v", d.ID, d.Score, d.RerankScore)
		}
	}
}

func TestRerank_MissingScoreFallsBackToSimilarity(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(`{"scores":[{"id":"a","score":1}]}`)}
	svc := New(llm, zap.NewNop())

	docs := candidates("a", "b")
	docs[1].Similarity = 0.8
	got := svc.Rerank(context.Background(), "query", docs)

	// b was skipped by the model: similarity 0.8 scales to 8, beating a's 1.
	if got[0].ID != "b" {
		t.Fatalf("expected similarity fallback to rank b first, got %v", ids(got))
	}
	if got[0].RerankScore != 8 {
		t.Errorf("expected fallback score 8, got %v", got[0].RerankScore)
	}
	if got[0].Reranked {
		t.Error("fallback-scored doc must not be marked reranked")
	}
}

func TestRerank_ModelErrorKeepsOrder(t *testing.T) {
	llm := &mockLLM{err: errors.New("timeout")}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a", "b"))
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected unchanged order on model failure, got %v", ids(got))
	}
}

func TestRerank_MalformedJSONKeepsOrder(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(`{"scores": not json`)}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a", "b"))
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected unchanged order on malformed response, got %v", ids(got))
	}
	if got[0].Reranked || got[1].Reranked {
		t.Error("no document should be marked reranked after a parse failure")
	}
}

func TestRerank_ClampsOutOfRangeScores(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(
		`{"scores":[{"id":"a","score":42},{"id":"b","score":-3}]}`,
	)}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a", "b"))
	if got[0].RerankScore != 10 {
		t.Errorf("expected score clamped to 10, got %v", got[0].RerankScore)
	}
	if got[1].RerankScore != 0 {
		t.Errorf("expected score clamped to 0, got %v", got[1].RerankScore)
	}
}

func TestRerank_StableSortOnTies(t *testing.T) {
	llm := &mockLLM{raw: json.RawMessage(
		`{"scores":[{"id":"a","score":5},{"id":"b","score":5},{"id":"c","score":5}]}`,
	)}
	svc := New(llm, zap.NewNop())

	got := svc.Rerank(context.Background(), "query", candidates("a", "b", "c"))
	want := []string{"a", "b", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("tied scores must keep incoming order, got %v", ids(got))
		}
	}
}

func TestTruncate_NeverSplitsMultibyteRune(t *testing.T) {
	text := strings.Repeat("日", 200) // 3 bytes per rune

	got := truncate(text, 301)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got)
	}
	if len(got) != 300 {
		t.Errorf("expected cut at the preceding rune boundary (300 bytes), got %d", len(got))
	}

	if got := truncate("short", 300); got != "short" {
		t.Errorf("text under the limit must pass through, got %q", got)
	}
}
