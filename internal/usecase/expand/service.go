// Package expand rewrites a conversational query into a self-contained
// search query using recent dialogue turns. Expansion is best-effort: any
// failure falls back to the original query.
package expand

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/finhive/docrank/internal/domain"
	"github.com/finhive/docrank/internal/domain/retrieval"
)

// historyWindow limits how many trailing turns feed the rewrite prompt.
const historyWindow = 4

// maxHintChars bounds the contextual excerpt appended in the no-LLM fallback.
const maxHintChars = 500

// maxExpandTokens bounds the rewrite completion; an expanded query is a
// sentence or two, never a paragraph.
const maxExpandTokens = 150

const systemPrompt = "You rewrite search queries. Given a conversation and the " +
	"latest user query, produce a single self-contained search query that " +
	"captures what the user is looking for, resolving pronouns and " +
	"references from the conversation. Reply with the rewritten query only."

// Service expands queries against conversation history.
type Service struct {
	llm    domain.TextGenerator
	logger *zap.Logger
}

// New creates a query expander. The LLM may be nil; expansion then falls
// back to concatenating prior user turns.
func New(llm domain.TextGenerator, logger *zap.Logger) *Service {
	return &Service{llm: llm, logger: logger}
}

// Expand returns a search query enriched with conversational context.
// Without history the query passes through untouched. Without an LLM a
// bounded excerpt of the prior user turns is appended instead. LLM failures
// and empty rewrites degrade to the original query.
func (s *Service) Expand(ctx context.Context, query string, history []retrieval.Turn) string {
	if len(history) == 0 {
		return query
	}

	if s.llm == nil {
		return s.concatFallback(query, history)
	}

	rewritten, err := s.llm.GenerateText(ctx, systemPrompt, buildPrompt(query, history), maxExpandTokens)
	if err != nil {
		s.logger.Warn("Query expansion failed, using original query", zap.Error(err))
		return query
	}
	if rewritten == "" {
		return query
	}

	s.logger.Debug("Expanded query",
		zap.String("original", query),
		zap.String("expanded", rewritten),
	)
	return rewritten
}

// concatFallback appends a bounded excerpt of the user's prior turns so
// lexical search still sees the conversational entities.
func (s *Service) concatFallback(query string, history []retrieval.Turn) string {
	var parts []string
	for _, turn := range history {
		if turn.Role == retrieval.RoleUser && turn.Content != "" {
			parts = append(parts, turn.Content)
		}
	}
	if len(parts) == 0 {
		return query
	}

	hint := strings.Join(parts, " ")
	if len(hint) > maxHintChars {
		// Back up to a rune boundary so the cut never splits a
		// multibyte character.
		cut := maxHintChars
		for cut > 0 && !utf8.RuneStart(hint[cut]) {
			cut--
		}
		hint = hint[:cut]
	}
	return query + " " + hint
}

// buildPrompt renders the trailing history window and the current query.
func buildPrompt(query string, history []retrieval.Turn) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var b strings.Builder
	b.WriteString("Conversation:\n")
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nLatest query: ")
	b.WriteString(query)
	return b.String()
}
