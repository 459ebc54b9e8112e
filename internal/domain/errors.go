package domain

import "errors"

var (
	// ErrEmbeddingFailure wraps any failure from the embedding provider.
	ErrEmbeddingFailure = errors.New("embedding failure")

	// ErrVectorStoreFailure wraps any failure from the vector store.
	ErrVectorStoreFailure = errors.New("vector store failure")

	// ErrLogprobsUnavailable is returned when the LLM returned no logprobs.
	// It is recoverable: callers fall back to similarity-based relevance.
	ErrLogprobsUnavailable = errors.New("logprobs unavailable")

	// ErrDimensionMismatch means query and stored vectors disagree in length.
	// This is a configuration error and is never padded over.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownMode is returned when parsing an unrecognized retrieval mode.
	ErrUnknownMode = errors.New("unknown retrieval mode")

	// ErrDeadlineExceeded is returned when a deadline check aborts work.
	ErrDeadlineExceeded = errors.New("deadline exceeded")
)

// DeadlineCheck is evaluated between pruning iterations and before each
// network call of a retrieval mode. A non-nil error aborts the operation.
type DeadlineCheck func() error
