package port

import (
	"context"

	"ragcore/internal/domain"
)

// CompletionOptions tunes one completion call. Zero values mean provider defaults,
// except Temperature, which is always sent.
type CompletionOptions struct {
	Logprobs    bool
	TopLogprobs int
	MaxTokens   int
	Temperature float64
}

// Completion is the result of one completion call. Logprobs is nil when the
// provider did not return any; it is never filled with zeros.
type Completion struct {
	Content  string
	Logprobs []domain.TokenLogprob
}

// LLM represents a language model for text generation.
type LLM interface {
	// Complete generates text for prompt. systemPrompt may be empty.
	Complete(ctx context.Context, prompt, systemPrompt string, opts CompletionOptions) (Completion, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// RelevanceScorer assigns each chunk a query-conditioned relevance score.
// Higher is more relevant. Implementations are chosen at construction.
type RelevanceScorer interface {
	// Score scores a single chunk for query.
	Score(ctx context.Context, query string, chunk domain.ScoredChunk) (float64, error)

	// WorstScore is the score assigned to a chunk whose scoring call failed.
	WorstScore() float64

	// Name identifies the scorer in logs and stats.
	Name() string
}
