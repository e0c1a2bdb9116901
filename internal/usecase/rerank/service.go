// Package rerank reorders retrieval candidates with an LLM relevance pass.
// Re-ranking is best-effort: when the model is absent or fails, candidates
// keep their incoming order.
package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/domain"
	"github.com/finhive/docrank/internal/domain/retrieval"
)

const (
	// maxSnippetChars bounds each candidate's text in the scoring prompt.
	maxSnippetChars = 300

	// maxScore is the top of the model's scoring scale.
	maxScore = 10

	maxRerankTokens = 500
)

const systemPrompt = "You score documents for relevance to a search query. " +
	"For each document, assign a score from 0 (irrelevant) to 10 (directly " +
	"answers the query). Reply with a JSON object of the form " +
	`{"scores":[{"id":"<document id>","score":<number>}]} covering every document.`

// scorePayload is the JSON shape expected back from the model.
type scorePayload struct {
	Scores []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"scores"`
}

// Service re-ranks retrieval candidates.
type Service struct {
	llm    domain.TextGenerator
	logger *zap.Logger
}

// New creates a re-ranker. The LLM may be nil; Rerank is then a no-op.
func New(llm domain.TextGenerator, logger *zap.Logger) *Service {
	return &Service{llm: llm, logger: logger}
}

// Enabled reports whether a scoring model is configured.
func (s *Service) Enabled() bool {
	return s.llm != nil
}

// Rerank reorders docs by LLM relevance score, descending. Documents the
// model skips fall back to similarity scaled onto the model's 0-10 scale,
// so mixed results stay comparable. Fewer than two candidates, a missing
// model, or any model failure leaves the input order untouched. The sort
// is stable: ties keep their incoming relative order.
func (s *Service) Rerank(ctx context.Context, query string, docs []retrieval.Document) []retrieval.Document {
	if s.llm == nil || len(docs) < 2 {
		return docs
	}

	raw, err := s.llm.GenerateJSON(ctx, systemPrompt, buildPrompt(query, docs), maxRerankTokens)
	if err != nil {
		s.logger.Warn("Re-ranking failed, keeping original order", zap.Error(err))
		return docs
	}

	var payload scorePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("Re-ranking response malformed, keeping original order", zap.Error(err))
		return docs
	}

	scores := make(map[string]float64, len(payload.Scores))
	for _, sc := range payload.Scores {
		scores[sc.ID] = clampScore(sc.Score)
	}

	ranked := make([]retrieval.Document, len(docs))
	copy(ranked, docs)
	for i := range ranked {
		if score, ok := scores[ranked[i].ID]; ok {
			ranked[i].RerankScore = score
			ranked[i].Reranked = true
		} else {
			ranked[i].RerankScore = clampScore(ranked[i].Similarity * maxScore)
		}
		ranked[i].Score = ranked[i].RerankScore
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})

	s.logger.Debug("Re-ranked candidates",
		zap.Int("candidates", len(ranked)),
		zap.Int("scored_by_model", len(scores)),
	)
	return ranked
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// buildPrompt renders the query and each candidate's truncated text.
func buildPrompt(query string, docs []retrieval.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for _, doc := range docs {
		fmt.Fprintf(&b, "[%s] %s\n", doc.ID, truncate(doc.Snippet, maxSnippetChars))
	}
	return b.String()
}

// truncate cuts text at limit bytes, backing up to a rune boundary so a
// multibyte character is never split mid-sequence.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}
