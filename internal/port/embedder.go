package port

import (
	"context"

	"ragcore/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts, returning one vector per input in order.
	// All vectors share the same dimension.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// VectorStore stores chunks with their embeddings and answers similarity
// queries over them.
type VectorStore interface {
	// QueryByVector returns up to topK chunks most similar to vector that
	// pass filter, highest DenseScore first.
	QueryByVector(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error)

	// GetChunksByID returns the chunks with the given ids. Missing ids are skipped.
	GetChunksByID(ctx context.Context, ids []string) ([]domain.Chunk, error)

	// GetChunksByParentID returns every chunk whose parent is parentID.
	GetChunksByParentID(ctx context.Context, parentID string) ([]domain.Chunk, error)
}

// VectorItem is a chunk and its embedding, as written by ingestion.
type VectorItem struct {
	Chunk  domain.Chunk
	Vector []float32
}

// VectorWriter is implemented by stores that accept new items.
type VectorWriter interface {
	Upsert(ctx context.Context, items []VectorItem) error
	Count() (int, error)
}

// ChunkRemover is implemented by stores that can list and delete chunks.
type ChunkRemover interface {
	ChunkIDs(ctx context.Context, match func(domain.ChunkMetadata) bool) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}
