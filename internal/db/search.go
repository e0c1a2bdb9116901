package db

import "github.com/finhive/docrank/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
// TenantID is mandatory; Filter narrows further within the tenant.
type KNNQuery struct {
	IndexName string
	TenantID  string
	Filter    filter.Filter
	Vector    []float32
	K         int
	// MinSimilarity drops hits below this cosine similarity while the
	// reply is decoded, as part of the same search call.
	MinSimilarity float64
	ReturnFields  []string
}

// TextQuery is the input for lexical full-text search.
// Terms are joined conjunctively.
type TextQuery struct {
	IndexName    string
	TenantID     string
	Filter       filter.Filter
	Terms        []string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
