// Package result defines the ranked candidate produced by each search
// stage. Scores carry stage-specific semantics (cosine similarity, lexical
// rank, fused RRF score); stages never compare scores across kinds.
package result

// Result is a single search hit.
type Result struct {
	id        string
	score     float64
	content   string
	docType   string
	companyID string
	createdAt int64
}

// New creates a search result.
func New(id string, score float64, content, docType, companyID string, createdAt int64) Result {
	return Result{
		id:        id,
		score:     score,
		content:   content,
		docType:   docType,
		companyID: companyID,
		createdAt: createdAt,
	}
}

// WithScore returns a copy of the result carrying a new score.
func (r Result) WithScore(score float64) Result {
	r.score = score
	return r
}

// ID returns the document identifier.
func (r *Result) ID() string { return r.id }

// Score returns the stage-specific relevance score.
func (r *Result) Score() float64 { return r.score }

// Content returns the stored document text, when the stage returned it.
func (r *Result) Content() string { return r.content }

// DocType returns the document type.
func (r *Result) DocType() string { return r.docType }

// CompanyID returns the associated company.
func (r *Result) CompanyID() string { return r.companyID }

// CreatedAt returns the creation time as a unix timestamp.
func (r *Result) CreatedAt() int64 { return r.createdAt }
