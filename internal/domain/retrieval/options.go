// Package retrieval defines the request/response types of the retrieval
// pipeline consumed by the chat layer.
package retrieval

import (
	"fmt"

	"github.com/finhive/docrank/internal/domain/search/filter"
)

// Retrieval parameter limits.
const (
	MaxQueryLength = 4096
	DefaultTopK    = 5
	MaxTopK        = 100

	// DefaultMinSimilarity is the cosine similarity floor applied when the
	// caller does not override it.
	DefaultMinSimilarity = 0.7
)

// Options holds per-call retrieval settings.
type Options struct {
	topK            int
	minSimilarity   float64
	filters         filter.Filter
	includeMetadata bool
	useHybridSearch bool
	useReranking    bool
	history         []Turn
}

// NewOptions validates and normalizes retrieval options.
// topK defaults to 5 and is clamped to 100; minSimilarity < 0 selects the default floor.
func NewOptions(
	topK int,
	minSimilarity float64,
	filters filter.Filter,
	includeMetadata, useHybridSearch, useReranking bool,
	history []Turn,
) (Options, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	if minSimilarity < 0 {
		minSimilarity = DefaultMinSimilarity
	}
	if minSimilarity > 1 {
		return Options{}, fmt.Errorf("min_similarity must be between 0 and 1")
	}
	return Options{
		topK:            topK,
		minSimilarity:   minSimilarity,
		filters:         filters,
		includeMetadata: includeMetadata,
		useHybridSearch: useHybridSearch,
		useReranking:    useReranking,
		history:         history,
	}, nil
}

// TopK returns the number of candidates to retrieve.
func (o *Options) TopK() int { return o.topK }

// MinSimilarity returns the cosine similarity floor.
func (o *Options) MinSimilarity() float64 { return o.minSimilarity }

// Filters returns the pre-filter.
func (o *Options) Filters() filter.Filter { return o.filters }

// IncludeMetadata reports whether document metadata should be hydrated.
func (o *Options) IncludeMetadata() bool { return o.includeMetadata }

// UseHybridSearch reports whether the keyword signal should be fused in.
func (o *Options) UseHybridSearch() bool { return o.useHybridSearch }

// UseReranking reports whether the LLM re-ranking stage should run.
func (o *Options) UseReranking() bool { return o.useReranking }

// History returns the conversation turns used for query expansion.
func (o *Options) History() []Turn { return o.history }
