package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"ragcore/internal/adapter/analyzer"
)

// MockEmbedder produces deterministic vectors without a network call. Each
// word maps to a fixed pseudo-random direction and a text embeds as the
// normalized sum of its words, so texts sharing words land close together.
type MockEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockEmbedder{dimension: dimension, tokenizer: analyzer.NewTokenizer(true)}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.vector(text)
	}
	return embeddings, nil
}

func (e *MockEmbedder) vector(text string) []float32 {
	sum := make([]float64, e.dimension)
	words := e.tokenizer.Tokenize(text)
	if len(words) == 0 {
		words = []string{"empty"}
	}
	for _, w := range words {
		seed := []byte(w)
		for i := range sum {
			h := sha256.Sum256(append(seed, byte(i%251), byte(i/251)))
			u := binary.BigEndian.Uint32(h[:4])
			sum[i] += float64(u%2000)/1000.0 - 1.0
		}
	}

	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	for i, x := range sum {
		if norm > 0 {
			vec[i] = float32(x / norm)
		}
	}
	return vec
}

func (e *MockEmbedder) Dimension() int {
	return e.dimension
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
