package retrieval

import (
	"context"

	domdoc "github.com/finhive/docrank/internal/domain/document"
	domretr "github.com/finhive/docrank/internal/domain/retrieval"
	"github.com/finhive/docrank/internal/domain/search/filter"
	"github.com/finhive/docrank/internal/domain/search/result"
)

// queryEmbedder turns query text into a vector, typically cache-fronted.
type queryEmbedder interface {
	GetOrCompute(ctx context.Context, query string) ([]float32, error)
}

// searcher runs the two ranked-candidate searches.
type searcher interface {
	SearchSemantic(
		ctx context.Context, queryVector []float32, tenantID string,
		limit int, minSimilarity float64, f filter.Filter,
	) ([]result.Result, error)
	SearchKeyword(
		ctx context.Context, queryText, tenantID string,
		limit int, f filter.Filter,
	) ([]result.Result, error)
}

// documentFinder hydrates candidates that came back without stored fields.
type documentFinder interface {
	FindByIDs(ctx context.Context, tenantID string, docIDs []string) ([]domdoc.Document, error)
}

// expander rewrites a query against conversation history.
type expander interface {
	Expand(ctx context.Context, query string, history []domretr.Turn) string
}

// reranker reorders candidates by LLM relevance.
type reranker interface {
	Enabled() bool
	Rerank(ctx context.Context, query string, docs []domretr.Document) []domretr.Document
}
