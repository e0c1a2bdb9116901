package retrieval

import (
	"testing"

	"github.com/finhive/docrank/internal/domain/search/filter"
)

func TestNewOptions_Defaults(t *testing.T) {
	opts, err := NewOptions(0, -1, filter.Filter{}, false, false, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != DefaultTopK {
		t.Errorf("TopK = %d, want %d", opts.TopK(), DefaultTopK)
	}
	if opts.MinSimilarity() != DefaultMinSimilarity {
		t.Errorf("MinSimilarity = %f, want %f", opts.MinSimilarity(), DefaultMinSimilarity)
	}
}

func TestNewOptions_ClampsTopK(t *testing.T) {
	opts, err := NewOptions(500, 0.5, filter.Filter{}, false, false, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != MaxTopK {
		t.Errorf("TopK = %d, want clamp to %d", opts.TopK(), MaxTopK)
	}
}

func TestNewOptions_ZeroMinSimilarityIsExplicit(t *testing.T) {
	// 0 disables the floor; only negative values select the default.
	opts, err := NewOptions(5, 0, filter.Filter{}, false, false, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.MinSimilarity() != 0 {
		t.Errorf("MinSimilarity = %f, want 0", opts.MinSimilarity())
	}
}

func TestNewOptions_RejectsMinSimilarityAboveOne(t *testing.T) {
	if _, err := NewOptions(5, 1.5, filter.Filter{}, false, false, false, nil); err == nil {
		t.Fatal("expected error for min_similarity above 1")
	}
}

func TestNewOptions_CarriesFlagsAndHistory(t *testing.T) {
	history := []Turn{{Role: RoleUser, Content: "earlier question"}}
	opts, err := NewOptions(5, 0.7, filter.Filter{}, true, true, true, history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !opts.IncludeMetadata() || !opts.UseHybridSearch() || !opts.UseReranking() {
		t.Error("flags not carried through")
	}
	if len(opts.History()) != 1 || opts.History()[0].Content != "earlier question" {
		t.Errorf("history not carried: %v", opts.History())
	}
}
