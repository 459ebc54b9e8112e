package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragcore/internal/adapter/memstore"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return len(f.vector) }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type failingStore struct {
	port.VectorStore
	err error
}

func (s failingStore) QueryByVector(context.Context, []float32, int, domain.Filter) ([]domain.ScoredChunk, error) {
	return nil, s.err
}

// corpus builds n chunks whose cosine similarity to the query {1, 0}
// decreases with the index. Chunk i has content contents[i] when given.
func corpus(t *testing.T, n int, contents map[int]string) *memstore.MemoryStore {
	t.Helper()
	st := memstore.NewMemoryStore(2)
	items := make([]port.VectorItem, n)
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("filler passage number %d about unrelated things", i)
		if c, ok := contents[i]; ok {
			content = c
		}
		items[i] = port.VectorItem{
			Chunk: domain.Chunk{
				ID:       fmt.Sprintf("c%02d", i),
				Content:  content,
				Metadata: domain.ChunkMetadata{CollectionID: "docs", ChunkIndex: i},
			},
			Vector: []float32{1, float32(i) * 0.05},
		}
	}
	require.NoError(t, st.Upsert(context.Background(), items))
	return st
}

func TestParseMode(t *testing.T) {
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, got)

	_, err = ParseMode("graph")
	assert.True(t, errors.Is(err, domain.ErrUnknownMode))
}

func TestHybridPoolSize(t *testing.T) {
	assert.Equal(t, 10, hybridPoolSize(5))
	assert.Equal(t, 50, hybridPoolSize(25))
	assert.Equal(t, 50, hybridPoolSize(40))
	assert.Equal(t, 60, hybridPoolSize(60))
}

func TestRetrieve_NaiveReturnsStoreOrder(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 8, nil), nil, 0, nil)

	res, err := o.Retrieve(context.Background(), "anything", ModeNaive, 3, domain.Filter{}, DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"c00", "c01", "c02"}, domain.ChunkIDs(res.Chunks))
	assert.Equal(t, "naive", res.Mode)
	assert.False(t, res.RerankApplied)
}

func TestRetrieve_LocalMatchesNaive(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 8, nil), nil, 0, nil)

	naive, err := o.Retrieve(context.Background(), "q", ModeNaive, 4, domain.Filter{}, DefaultRetrieveOptions())
	require.NoError(t, err)
	local, err := o.Retrieve(context.Background(), "q", ModeLocal, 4, domain.Filter{}, DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Equal(t, naive.Chunks, local.Chunks)
	assert.Equal(t, "local", local.Mode)
}

func TestRetrieve_HybridPromotesExactMetricMatch(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	st := corpus(t, 20, map[int]string{9: "alert when checkout_latency_p99 exceeds 250ms"})
	o := NewOrchestrator(emb, st, retriever.NewHybridReranker(nil, 16, nil), 0, nil)

	opts := DefaultRetrieveOptions()
	opts.Hybrid.Enabled = retriever.EnableAuto

	res, err := o.Retrieve(context.Background(), "what is checkout_latency_p99", ModeHybrid, 5, domain.Filter{}, opts)
	require.NoError(t, err)
	require.Len(t, res.Chunks, 5)
	assert.True(t, res.RerankApplied)
	assert.Equal(t, 10, res.RerankStats.CandidateCount)
	assert.Contains(t, domain.ChunkIDs(res.Chunks), "c09")

	naive, err := o.Retrieve(context.Background(), "what is checkout_latency_p99", ModeNaive, 5, domain.Filter{}, opts)
	require.NoError(t, err)
	assert.NotContains(t, domain.ChunkIDs(naive.Chunks), "c09")
}

func TestRetrieve_HybridDisabledIsDenseOrder(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 10, nil), nil, 0, nil)

	opts := DefaultRetrieveOptions()
	opts.Hybrid.Enabled = retriever.EnableNever

	res, err := o.Retrieve(context.Background(), "q", ModeHybrid, 4, domain.Filter{}, opts)
	require.NoError(t, err)
	assert.False(t, res.RerankApplied)
	assert.Equal(t, []string{"c00", "c01", "c02", "c03"}, domain.ChunkIDs(res.Chunks))
	for _, c := range res.Chunks {
		assert.Equal(t, c.DenseScore, c.HybridScore)
	}
}

func TestRetrieve_EmptyQueryCallsNothing(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 3, nil), nil, 0, nil)

	res, err := o.Retrieve(context.Background(), "", ModeHybrid, 5, domain.Filter{}, DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Zero(t, emb.calls)
}

func TestRetrieve_EmbeddingCache(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 3, nil), nil, 8, nil)

	for i := 0; i < 3; i++ {
		_, err := o.Retrieve(context.Background(), "same query", ModeNaive, 2, domain.Filter{}, DefaultRetrieveOptions())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, emb.calls)
}

func TestRetrieve_EmbeddingFailure(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("connection refused")}
	o := NewOrchestrator(emb, corpus(t, 3, nil), nil, 0, nil)

	res, err := o.Retrieve(context.Background(), "q", ModeNaive, 2, domain.Filter{}, DefaultRetrieveOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbeddingFailure))
	assert.Nil(t, res.Chunks)
}

func TestRetrieve_VectorStoreFailure(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, failingStore{err: errors.New("disk gone")}, nil, 0, nil)

	_, err := o.Retrieve(context.Background(), "q", ModeHybrid, 2, domain.Filter{}, DefaultRetrieveOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrVectorStoreFailure))
}

func TestRetrieve_DimensionMismatchSurfaces(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	o := NewOrchestrator(emb, corpus(t, 3, nil), nil, 0, nil)

	_, err := o.Retrieve(context.Background(), "q", ModeNaive, 2, domain.Filter{}, DefaultRetrieveOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestRetrieve_DeadlineBeforeNetworkCall(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, corpus(t, 3, nil), nil, 0, nil)

	opts := DefaultRetrieveOptions()
	opts.Deadline = func() error { return errors.New("too late") }

	_, err := o.Retrieve(context.Background(), "q", ModeNaive, 2, domain.Filter{}, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDeadlineExceeded))
	assert.Zero(t, emb.calls)
}

func TestRetrieve_Filter(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	st := memstore.NewMemoryStore(2)
	require.NoError(t, st.Upsert(context.Background(), []port.VectorItem{
		{Chunk: domain.Chunk{ID: "a", Metadata: domain.ChunkMetadata{CollectionID: "x"}}, Vector: []float32{1, 0}},
		{Chunk: domain.Chunk{ID: "b", Metadata: domain.ChunkMetadata{CollectionID: "y"}}, Vector: []float32{1, 0.1}},
	}))
	o := NewOrchestrator(emb, st, nil, 0, nil)

	res, err := o.Retrieve(context.Background(), "q", ModeNaive, 5, domain.Filter{CollectionIDs: []string{"y"}}, DefaultRetrieveOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, domain.ChunkIDs(res.Chunks))
}

func hierarchy(t *testing.T) *memstore.MemoryStore {
	t.Helper()
	st := memstore.NewMemoryStore(2)
	child := func(id string, index int, vec ...float32) port.VectorItem {
		return port.VectorItem{
			Chunk:  domain.Chunk{ID: id, Metadata: domain.ChunkMetadata{ParentChunkID: "sec", ChunkIndex: index}},
			Vector: vec,
		}
	}
	require.NoError(t, st.Upsert(context.Background(), []port.VectorItem{
		{Chunk: domain.Chunk{ID: "sec", Metadata: domain.ChunkMetadata{Granularity: domain.GranularitySection}}, Vector: []float32{0, 1}},
		child("p1", 0, 0.2, 1),
		child("p2", 1, 1, 0),
		child("p3", 2, 0.1, 1),
	}))
	return st
}

func TestRetrieve_ExpandToParentAndSiblings(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, hierarchy(t), nil, 0, nil)

	opts := DefaultRetrieveOptions()
	opts.ExpandToParent = true
	opts.ExpandToSiblings = true

	res, err := o.Retrieve(context.Background(), "q", ModeNaive, 1, domain.Filter{}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"p2", "sec", "p1", "p3"}, domain.ChunkIDs(res.Chunks))
	assert.Equal(t, 3, res.ExpandedCount)
	assert.InDelta(t, DefaultParentScore, res.Chunks[1].Score, 1e-9)
	assert.InDelta(t, DefaultSiblingScore, res.Chunks[2].Score, 1e-9)
}

func TestRetrieve_ExpansionDeduplicates(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0}}
	o := NewOrchestrator(emb, hierarchy(t), nil, 0, nil)

	opts := DefaultRetrieveOptions()
	opts.ExpandToSiblings = true

	// top 3 already holds p2, p1 and p3
	res, err := o.Retrieve(context.Background(), "q", ModeNaive, 3, domain.Filter{}, opts)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, id := range domain.ChunkIDs(res.Chunks) {
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	assert.Equal(t, 0, res.ExpandedCount)
}
