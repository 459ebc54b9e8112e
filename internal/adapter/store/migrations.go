package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"ragcore/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var (
	keySchemaVersion = []byte("schema_version")
	keyDimension     = []byte("dimension")
	keyModel         = []byte("model")
)

// SchemaInfo is what the meta bucket records about the stored vectors.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		if err := getMeta(b, keySchemaVersion, &info.Version); err != nil {
			return err
		}
		if err := getMeta(b, keyDimension, &info.Dimension); err != nil {
			return err
		}
		if model := b.Get(keyModel); model != nil {
			info.Model = string(model)
		}
		return nil
	})
	return &info, err
}

// reconcileSchema stamps a fresh database and checks that an existing one
// was written with a compatible schema, dimension and model.
func (s *BoltStore) reconcileSchema() error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return fmt.Errorf("failed to get schema info: %w", err)
	}

	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}

	if info.Dimension != 0 {
		if s.dimension != 0 && s.dimension != info.Dimension {
			return fmt.Errorf("store holds %d-dimensional vectors, configured for %d: %w",
				info.Dimension, s.dimension, domain.ErrDimensionMismatch)
		}
		s.dimension = info.Dimension
	}

	if info.Model != "" && s.model != "" && info.Model != s.model {
		return fmt.Errorf("store was built with embedding model %q, configured for %q; reload the collection", info.Model, s.model)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if info.Version < CurrentSchemaVersion {
			if err := putMeta(tx, keySchemaVersion, CurrentSchemaVersion); err != nil {
				return err
			}
		}
		if info.Dimension == 0 && s.dimension != 0 {
			if err := putMeta(tx, keyDimension, s.dimension); err != nil {
				return err
			}
		}
		if info.Model == "" && s.model != "" {
			return tx.Bucket(bucketMeta).Put(keyModel, []byte(s.model))
		}
		return nil
	})
}

func getMeta(b *bbolt.Bucket, key []byte, v *int) error {
	data := b.Get(key)
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt meta key %s: %w", key, err)
	}
	return nil
}

func putMeta(tx *bbolt.Tx, key []byte, v int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(key, data)
}

// Clear removes all chunks and vectors. Schema metadata is kept.
func (s *BoltStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketChunks, bucketVectors, bucketParentChunks} {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.chunks = make(map[string]domain.Chunk)
	s.vectors = make(map[string][]float32)
	s.children = make(map[string][]string)
	return nil
}
