package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

func openTestStore(t *testing.T, opts Options) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path, opts)
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	return s, path
}

func item(id, collection, path, parent string, index int, vec ...float32) port.VectorItem {
	return port.VectorItem{
		Chunk: domain.Chunk{
			ID:      id,
			Content: "content of " + id,
			Metadata: domain.ChunkMetadata{
				CollectionID:  collection,
				FilePath:      path,
				ParentChunkID: parent,
				ChunkIndex:    index,
			},
		},
		Vector: vec,
	}
}

func seed(t *testing.T, s *BoltStore) {
	t.Helper()
	items := []port.VectorItem{
		item("p1", "docs", "guide/auth.md", "", 0, 1, 1, 0),
		item("a", "docs", "guide/auth.md", "p1", 0, 1, 0, 0),
		item("b", "docs", "guide/auth.md", "p1", 1, 0.9, 0.1, 0),
		item("c", "code", "src/auth.go", "", 0, 0, 1, 0),
		item("d", "code", "src/db.go", "", 1, 0, 0, 1),
	}
	if err := s.Upsert(context.Background(), items); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
}

func TestBoltStore_QueryByVector(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()
	seed(t, s)

	results, err := s.QueryByVector(context.Background(), []float32{1, 0, 0}, 3, domain.Filter{})
	if err != nil {
		t.Fatalf("QueryByVector() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Chunk.ID != "a" {
		t.Errorf("top result = %s, want a", results[0].Chunk.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].DenseScore > results[i-1].DenseScore {
			t.Errorf("results not sorted at %d", i)
		}
	}
	if results[0].Score != results[0].DenseScore {
		t.Errorf("Score = %v, want DenseScore %v", results[0].Score, results[0].DenseScore)
	}
}

func TestBoltStore_QueryFilter(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()
	seed(t, s)

	results, err := s.QueryByVector(context.Background(), []float32{1, 0, 0}, 10, domain.Filter{
		CollectionIDs: []string{"code"},
		PathGlobs:     []string{"src/*.go"},
	})
	if err != nil {
		t.Fatalf("QueryByVector() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Chunk.Metadata.CollectionID != "code" {
			t.Errorf("unexpected collection %s", r.Chunk.Metadata.CollectionID)
		}
	}
}

func TestBoltStore_DimensionMismatch(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()

	err := s.Upsert(context.Background(), []port.VectorItem{item("x", "docs", "", "", 0, 1, 2)})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("Upsert() error = %v, want ErrDimensionMismatch", err)
	}

	_, err = s.QueryByVector(context.Background(), []float32{1, 2, 3, 4}, 1, domain.Filter{})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("QueryByVector() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestBoltStore_AdoptsDimensionAndPersists(t *testing.T) {
	s, path := openTestStore(t, Options{Model: "mock"})
	seed(t, s)
	if s.Dimension() != 3 {
		t.Fatalf("Dimension() = %d, want 3", s.Dimension())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewBoltStore(path, Options{})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	count, _ := reopened.Count()
	if count != 5 {
		t.Errorf("Count() = %d, want 5", count)
	}
	info, err := reopened.GetSchemaInfo()
	if err != nil {
		t.Fatalf("GetSchemaInfo() error = %v", err)
	}
	if info.Version != CurrentSchemaVersion || info.Dimension != 3 || info.Model != "mock" {
		t.Errorf("schema info = %+v", info)
	}

	children, err := reopened.GetChunksByParentID(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetChunksByParentID() error = %v", err)
	}
	if len(children) != 2 || children[0].ID != "a" || children[1].ID != "b" {
		t.Errorf("children = %v", children)
	}
}

func TestBoltStore_ReopenWithWrongDimension(t *testing.T) {
	s, path := openTestStore(t, Options{Dimension: 3})
	seed(t, s)
	s.Close()

	_, err := NewBoltStore(path, Options{Dimension: 8})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("NewBoltStore() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestBoltStore_ReopenWithOtherModel(t *testing.T) {
	s, path := openTestStore(t, Options{Dimension: 3, Model: "a"})
	s.Close()

	if _, err := NewBoltStore(path, Options{Dimension: 3, Model: "b"}); err == nil {
		t.Error("NewBoltStore() with a different model should fail")
	}
}

func TestBoltStore_GetChunksByID(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()
	seed(t, s)

	chunks, err := s.GetChunksByID(context.Background(), []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("GetChunksByID() error = %v", err)
	}
	if len(chunks) != 2 || chunks[0].ID != "c" || chunks[1].ID != "a" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestBoltStore_DeleteAndClear(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()
	seed(t, s)

	if err := s.Delete(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	children, _ := s.GetChunksByParentID(context.Background(), "p1")
	if len(children) != 1 || children[0].ID != "b" {
		t.Errorf("children after delete = %v", children)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	count, _ := s.Count()
	if count != 0 {
		t.Errorf("Count() after Clear = %d, want 0", count)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0},
		{[]float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("CosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func childIDs(t *testing.T, s *BoltStore, parent string) []string {
	t.Helper()
	kids, err := s.GetChunksByParentID(context.Background(), parent)
	if err != nil {
		t.Fatalf("GetChunksByParentID(%s) error = %v", parent, err)
	}
	ids := make([]string, len(kids))
	for i, k := range kids {
		ids[i] = k.ID
	}
	return ids
}

func TestBoltStore_ReparentMovesChild(t *testing.T) {
	s, path := openTestStore(t, Options{Dimension: 3})
	ctx := context.Background()

	if err := s.Upsert(ctx, []port.VectorItem{
		item("x", "docs", "a.md", "P1", 0, 1, 0, 0),
		item("y", "docs", "a.md", "P1", 1, 0, 1, 0),
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Upsert(ctx, []port.VectorItem{item("x", "docs", "a.md", "P2", 0, 1, 0, 0)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if got := childIDs(t, s, "P1"); len(got) != 1 || got[0] != "y" {
		t.Errorf("children(P1) = %v, want [y]", got)
	}
	if got := childIDs(t, s, "P2"); len(got) != 1 || got[0] != "x" {
		t.Errorf("children(P2) = %v, want [x]", got)
	}

	// moving the last child away drops the parent entry, also on disk
	if err := s.Upsert(ctx, []port.VectorItem{item("y", "docs", "a.md", "", 1, 0, 1, 0)}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewBoltStore(path, Options{})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if got := childIDs(t, reopened, "P1"); len(got) != 0 {
		t.Errorf("children(P1) after reopen = %v, want none", got)
	}
	if got := childIDs(t, reopened, "P2"); len(got) != 1 || got[0] != "x" {
		t.Errorf("children(P2) after reopen = %v, want [x]", got)
	}
}

func TestBoltStore_ReparentWithinOneBatch(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()

	err := s.Upsert(context.Background(), []port.VectorItem{
		item("x", "docs", "a.md", "P1", 0, 1, 0, 0),
		item("x", "docs", "a.md", "P2", 0, 1, 0, 0),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if got := childIDs(t, s, "P1"); len(got) != 0 {
		t.Errorf("children(P1) = %v, want none", got)
	}
	if got := childIDs(t, s, "P2"); len(got) != 1 {
		t.Errorf("children(P2) = %v, want [x]", got)
	}
}

func TestBoltStore_FailedDeleteKeepsMirror(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	seed(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := s.Delete(context.Background(), []string{"a"}); err == nil {
		t.Fatal("Delete() on a closed store should fail")
	}
	if count, _ := s.Count(); count != 5 {
		t.Errorf("Count() after failed delete = %d, want 5", count)
	}
	if got := childIDs(t, s, "p1"); len(got) != 2 {
		t.Errorf("children(p1) after failed delete = %v, want [a b]", got)
	}
}

func TestBoltStore_ChunkIDs(t *testing.T) {
	s, _ := openTestStore(t, Options{Dimension: 3})
	defer s.Close()
	seed(t, s)

	ids, err := s.ChunkIDs(context.Background(), func(md domain.ChunkMetadata) bool {
		return md.FilePath == "guide/auth.md"
	})
	if err != nil {
		t.Fatalf("ChunkIDs() error = %v", err)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "p1" {
		t.Errorf("ChunkIDs() = %v, want [a b p1]", ids)
	}
}
