// Package search translates retrieval-stage queries into FT searches and
// decodes the replies into ranked candidates.
package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/finhive/docrank/internal/db"
	"github.com/finhive/docrank/internal/domain/search/filter"
	"github.com/finhive/docrank/internal/domain/search/result"
	documentrepo "github.com/finhive/docrank/internal/repository/document"
)

// MinTermLength: query terms at or below this length carry no lexical signal.
const MinTermLength = 2

// rankFloor guards the score normalization against division by zero.
const rankFloor = 1e-9

// store is the consumer interface for search operations.
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsVectorSearch(ctx context.Context) bool
}

// Repo implements the retrieval use case's search contract.
type Repo struct {
	store store
}

// New creates a search repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SupportsVectorSearch proxies the capability check from the store.
func (r *Repo) SupportsVectorSearch(ctx context.Context) bool {
	return r.store.SupportsVectorSearch(ctx)
}

// returnFields fetched for every hit so hydration can reuse them.
var returnFields = []string{"content", "doc_type", "company_id", "created_at"}

// SearchSemantic runs a tenant-scoped KNN search. Scores are cosine
// similarities in [0,1]; hits below minSimilarity never leave the store
// layer. Results come back ordered by descending similarity.
func (r *Repo) SearchSemantic(
	ctx context.Context, queryVector []float32, tenantID string,
	limit int, minSimilarity float64, f filter.Filter,
) ([]result.Result, error) {
	q := &db.KNNQuery{
		IndexName:     documentrepo.IndexName,
		TenantID:      tenantID,
		Filter:        f,
		Vector:        queryVector,
		K:             limit,
		MinSimilarity: minSimilarity,
		ReturnFields:  returnFields,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	return decodeEntries(sr, tenantID), nil
}

// SearchKeyword runs a conjunctive lexical search. Scores are normalized to
// [0,1] by the maximum observed rank in the result set. A query with no
// usable terms yields an empty result, not an error.
func (r *Repo) SearchKeyword(
	ctx context.Context, queryText, tenantID string,
	limit int, f filter.Filter,
) ([]result.Result, error) {
	terms := Tokenize(queryText)
	if len(terms) == 0 {
		return nil, nil
	}

	q := &db.TextQuery{
		IndexName:    documentrepo.IndexName,
		TenantID:     tenantID,
		Filter:       f,
		Terms:        terms,
		TopK:         limit,
		ReturnFields: returnFields,
	}

	sr, err := r.store.SearchText(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := decodeEntries(sr, tenantID)
	normalizeRanks(results)
	return results, nil
}

// Tokenize splits a query into lowercase lexical terms longer than
// MinTermLength characters.
func Tokenize(query string) []string {
	raw := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) > MinTermLength {
			terms = append(terms, strings.ToLower(t))
		}
	}
	return terms
}

func decodeEntries(sr *db.SearchResult, tenantID string) []result.Result {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := documentrepo.KeyPrefix + tenantID + ":"
	results := make([]result.Result, 0, len(sr.Entries))

	for _, entry := range sr.Entries {
		docID := strings.TrimPrefix(entry.Key, prefix)
		createdAt, _ := strconv.ParseInt(entry.Fields["created_at"], 10, 64)
		results = append(results, result.New(
			docID,
			entry.Score,
			entry.Fields["content"],
			entry.Fields["doc_type"],
			entry.Fields["company_id"],
			createdAt,
		))
	}

	return results
}

// normalizeRanks rescales lexical scores into [0,1] against the best hit.
func normalizeRanks(results []result.Result) {
	var maxRank float64
	for i := range results {
		if results[i].Score() > maxRank {
			maxRank = results[i].Score()
		}
	}
	if maxRank < rankFloor {
		maxRank = rankFloor
	}
	for i := range results {
		results[i] = results[i].WithScore(results[i].Score() / maxRank)
	}
}
