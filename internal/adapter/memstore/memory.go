// Package memstore is an in-memory vector store for tests and one-shot
// CLI runs that should not touch disk.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"ragcore/internal/adapter/store"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]domain.Chunk
	vectors   map[string][]float32
	children  map[string][]string
}

// NewMemoryStore creates an empty store. A zero dimension is fixed by the
// first upsert.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		chunks:    make(map[string]domain.Chunk),
		vectors:   make(map[string][]float32),
		children:  make(map[string][]string),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if s.dimension == 0 {
			s.dimension = len(item.Vector)
		}
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("chunk %s: expected %d dimensions, got %d: %w",
				item.Chunk.ID, s.dimension, len(item.Vector), domain.ErrDimensionMismatch)
		}
	}

	for _, item := range items {
		id := item.Chunk.ID
		parent := item.Chunk.Metadata.ParentChunkID
		if old, exists := s.chunks[id]; exists && old.Metadata.ParentChunkID != parent {
			s.unlink(old.Metadata.ParentChunkID, id)
		}
		if parent != "" && !slices.Contains(s.children[parent], id) {
			s.children[parent] = append(s.children[parent], id)
		}
		s.chunks[id] = item.Chunk
		s.vectors[id] = item.Vector
	}
	return nil
}

// Delete removes chunks by id. Unknown ids are ignored.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			s.unlink(c.Metadata.ParentChunkID, id)
		}
		delete(s.chunks, id)
		delete(s.vectors, id)
	}
	return nil
}

// ChunkIDs returns the ids of chunks whose metadata satisfies match, sorted.
func (s *MemoryStore) ChunkIDs(_ context.Context, match func(domain.ChunkMetadata) bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, c := range s.chunks {
		if match(c.Metadata) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) unlink(parent, id string) {
	if parent == "" {
		return
	}
	kids := slices.DeleteFunc(slices.Clone(s.children[parent]), func(k string) bool { return k == id })
	if len(kids) == 0 {
		delete(s.children, parent)
		return
	}
	s.children[parent] = kids
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *MemoryStore) QueryByVector(_ context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query has %d dimensions, store holds %d: %w",
			len(vector), s.dimension, domain.ErrDimensionMismatch)
	}
	return store.SearchVectors(vector, topK, filter, s.chunks, s.vectors), nil
}

func (s *MemoryStore) GetChunksByID(_ context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetChunksByParentID(_ context.Context, parentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(s.children[parentID]))
	for _, id := range s.children[parentID] {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Metadata.ChunkIndex != out[j].Metadata.ChunkIndex {
			return out[i].Metadata.ChunkIndex < out[j].Metadata.ChunkIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
