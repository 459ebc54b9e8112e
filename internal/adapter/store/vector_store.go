package store

import (
	"context"
	"fmt"
	"math"

	"ragcore/internal/domain"
)

// QueryByVector returns up to topK chunks passing filter, most similar to
// vector first. Ties are broken by chunk id.
func (s *BoltStore) QueryByVector(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query has %d dimensions, store holds %d: %w",
			len(vector), s.dimension, domain.ErrDimensionMismatch)
	}

	return SearchVectors(vector, topK, filter, s.chunks, s.vectors), nil
}

// SearchVectors ranks every chunk in vectors that passes filter by cosine
// similarity to query and keeps the best topK. It is the brute-force
// search shared by the bolt and in-memory stores.
func SearchVectors(query []float32, topK int, filter domain.Filter, chunks map[string]domain.Chunk, vectors map[string][]float32) []domain.ScoredChunk {
	if topK <= 0 || len(vectors) == 0 {
		return []domain.ScoredChunk{}
	}

	scored := make([]domain.ScoredChunk, 0, len(vectors))
	for id, vec := range vectors {
		chunk, ok := chunks[id]
		if !ok {
			continue
		}
		if !filter.IsEmpty() && !filter.Matches(chunk.Metadata) {
			continue
		}
		sim := CosineSimilarity(query, vec)
		scored = append(scored, domain.ScoredChunk{
			Chunk:      chunk,
			DenseScore: sim,
			Score:      sim,
		})
	}

	domain.SortByScore(scored)
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
