package retrieval

// Metadata is the optional document metadata attached to a hydrated result.
type Metadata struct {
	DocType   string
	CompanyID string
	CreatedAt int64
}

// Document is a hydrated retrieval result: a ranked candidate plus a
// bounded snippet of the source text.
type Document struct {
	ID string
	// Score is the score of the last stage that ran: similarity for
	// semantic-only retrieval, fused RRF score for hybrid, rerank score
	// when re-ranking ran.
	Score float64
	// Similarity is the raw cosine similarity when the semantic stage saw
	// this document, 0 otherwise. Kept separate so later stages can derive
	// fallback scores without conflating score kinds.
	Similarity  float64
	RerankScore float64
	Reranked    bool
	Snippet     string
	Metadata    *Metadata
}

// Context is the ordered retrieval output returned to the caller.
type Context struct {
	Documents      []Document
	QueryEmbedding []float32
	// EffectiveQuery is the query actually searched (after expansion).
	EffectiveQuery string
	TotalResults   int
	// HybridResults is the fused candidate count before truncation, set
	// only when hybrid search ran.
	HybridResults int
}
