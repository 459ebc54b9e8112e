// Package store persists chunks and their embeddings in BoltDB.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.etcd.io/bbolt"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

var (
	bucketChunks       = []byte("chunks")
	bucketVectors      = []byte("vectors")
	bucketParentChunks = []byte("parent_chunks")
	bucketMeta         = []byte("meta")
)

// BoltStore implements port.VectorStore and port.VectorWriter on BoltDB.
// Vectors are mirrored in memory and searched by brute force.
type BoltStore struct {
	db        *bbolt.DB
	mu        sync.RWMutex
	dimension int
	model     string
	chunks    map[string]domain.Chunk
	vectors   map[string][]float32
	children  map[string][]string
}

// Options configures NewBoltStore.
type Options struct {
	// Dimension is the expected vector length. Zero adopts whatever the
	// database already holds, or the first upserted vector's length.
	Dimension int
	// Model is the embedding model name recorded alongside the vectors.
	Model string
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, opts Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketChunks, bucketVectors, bucketParentChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:        db,
		dimension: opts.Dimension,
		model:     opts.Model,
		chunks:    make(map[string]domain.Chunk),
		vectors:   make(map[string][]float32),
		children:  make(map[string][]string),
	}

	if err := s.reconcileSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}

	return s, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Dimension returns the vector length the store enforces, or 0 if unset.
func (s *BoltStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

type storedVector struct {
	Vector []float32 `json:"v"`
}

func (s *BoltStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketChunks).ForEach(func(k, v []byte) error {
			var c domain.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return nil // Skip corrupted entries
			}
			s.chunks[string(k)] = c
			return nil
		})
		if err != nil {
			return err
		}

		err = tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var stored storedVector
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil
			}
			s.vectors[string(k)] = stored.Vector
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(bucketParentChunks).ForEach(func(k, v []byte) error {
			var ids []string
			if err := json.Unmarshal(v, &ids); err != nil {
				return nil
			}
			s.children[string(k)] = ids
			return nil
		})
	})
}

// Upsert adds or replaces chunks and their vectors in one transaction. A
// chunk re-upserted under a different parent moves to that parent's list.
func (s *BoltStore) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for _, item := range items {
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return fmt.Errorf("chunk %s: expected %d dimensions, got %d: %w",
				item.Chunk.ID, dim, len(item.Vector), domain.ErrDimensionMismatch)
		}
	}

	links := newParentLinks(s.children)
	parentOf := make(map[string]string, len(items))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chunksB := tx.Bucket(bucketChunks)
		vectorsB := tx.Bucket(bucketVectors)

		for _, item := range items {
			id := item.Chunk.ID
			chunkData, err := json.Marshal(item.Chunk)
			if err != nil {
				return err
			}
			if err := chunksB.Put([]byte(id), chunkData); err != nil {
				return err
			}

			vecData, err := json.Marshal(storedVector{Vector: item.Vector})
			if err != nil {
				return err
			}
			if err := vectorsB.Put([]byte(id), vecData); err != nil {
				return err
			}

			prev, seen := parentOf[id]
			if !seen {
				prev = s.chunks[id].Metadata.ParentChunkID
			}
			parent := item.Chunk.Metadata.ParentChunkID
			if prev != "" && prev != parent {
				links.remove(prev, id)
			}
			if parent != "" {
				links.add(parent, id)
			}
			parentOf[id] = parent
		}

		if err := links.persist(tx.Bucket(bucketParentChunks)); err != nil {
			return err
		}
		if s.dimension == 0 && dim > 0 {
			return putMeta(tx, keyDimension, dim)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	s.dimension = dim
	for _, item := range items {
		s.chunks[item.Chunk.ID] = item.Chunk
		s.vectors[item.Chunk.ID] = item.Vector
	}
	links.apply(s.children)
	return nil
}

// Delete removes chunks and their vectors by id. Unknown ids are ignored.
func (s *BoltStore) Delete(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	links := newParentLinks(s.children)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, id := range ids {
			if err := tx.Bucket(bucketChunks).Delete([]byte(id)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketVectors).Delete([]byte(id)); err != nil {
				return err
			}
			if parent := s.chunks[id].Metadata.ParentChunkID; parent != "" {
				links.remove(parent, id)
			}
		}
		return links.persist(tx.Bucket(bucketParentChunks))
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	for _, id := range ids {
		delete(s.chunks, id)
		delete(s.vectors, id)
	}
	links.apply(s.children)
	return nil
}

// ChunkIDs returns the ids of stored chunks whose metadata satisfies match,
// in ascending order.
func (s *BoltStore) ChunkIDs(ctx context.Context, match func(domain.ChunkMetadata) bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

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

// Count returns the number of stored vectors.
func (s *BoltStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

// GetChunksByID returns chunks in the order of ids, skipping unknown ids.
func (s *BoltStore) GetChunksByID(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

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

// GetChunksByParentID returns the children of parentID ordered by
// ChunkIndex, then id.
func (s *BoltStore) GetChunksByParentID(ctx context.Context, parentID string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.children[parentID]
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sortByChunkIndex(out)
	return out, nil
}

func sortByChunkIndex(chunks []domain.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Metadata.ChunkIndex != chunks[j].Metadata.ChunkIndex {
			return chunks[i].Metadata.ChunkIndex < chunks[j].Metadata.ChunkIndex
		}
		return chunks[i].ID < chunks[j].ID
	})
}
