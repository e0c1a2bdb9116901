package domain

import (
	"context"
	"encoding/json"
)

// TextGenerator is the LLM contract used by re-ranking and query expansion.
// Both consumers treat the generator as optional: a nil generator disables
// the stage rather than failing retrieval.
type TextGenerator interface {
	// GenerateText returns a plain-text completion.
	GenerateText(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)

	// GenerateJSON returns a completion constrained to a JSON object.
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (json.RawMessage, error)
}
