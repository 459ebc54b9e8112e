package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ragcore/internal/adapter/cache"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

const (
	DefaultParentScore  = 0.7
	DefaultSiblingScore = 0.6
)

// RetrieveOptions tunes one retrieval call.
type RetrieveOptions struct {
	ExpandToParent   bool
	ExpandToSiblings bool
	ParentScore      float64 // score given to expanded parents; 0 means DefaultParentScore
	SiblingScore     float64 // score given to expanded siblings; 0 means DefaultSiblingScore
	Hybrid           retriever.RerankOptions
	// Deadline is checked before every network call.
	Deadline domain.DeadlineCheck
}

// DefaultRetrieveOptions enables auto hybrid reranking and no expansion.
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{
		ParentScore:  DefaultParentScore,
		SiblingScore: DefaultSiblingScore,
		Hybrid:       retriever.DefaultRerankOptions(),
	}
}

// RetrieveResult is the output of one retrieval call.
type RetrieveResult struct {
	Chunks        []domain.ScoredChunk `json:"chunks"`
	Mode          string               `json:"mode"`
	RerankApplied bool                 `json:"rerank_applied"`
	RerankStats   domain.RerankStats   `json:"rerank_stats"`
	ExpandedCount int                  `json:"expanded_count"`
	Duration      time.Duration        `json:"duration"`
}

// Orchestrator executes retrieval modes over an embedder and a vector store.
// It never prunes; callers prune explicitly before generation.
type Orchestrator struct {
	embedder   port.Embedder
	store      port.VectorStore
	reranker   *retriever.HybridReranker
	expander   *ContextExpander
	embedCache *cache.LRU[[]float32]
	log        *slog.Logger
}

// NewOrchestrator wires the orchestrator. embedCacheSize bounds the query
// embedding cache; 0 disables it. A nil reranker gets a default one.
func NewOrchestrator(embedder port.Embedder, store port.VectorStore, reranker *retriever.HybridReranker, embedCacheSize int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if reranker == nil {
		reranker = retriever.NewHybridReranker(nil, 0, logger)
	}
	return &Orchestrator{
		embedder:   embedder,
		store:      store,
		reranker:   reranker,
		expander:   NewContextExpander(store),
		embedCache: cache.NewLRU[[]float32](embedCacheSize),
		log:        logger,
	}
}

type retrieveRequest struct {
	query  string
	topK   int
	filter domain.Filter
	opts   RetrieveOptions
}

// Retrieve runs mode for query and returns at most topK primary chunks,
// followed by any hierarchical expansion requested in opts. Embedding and
// store failures abort with no partial result.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, mode Mode, topK int, filter domain.Filter, opts RetrieveOptions) (RetrieveResult, error) {
	start := time.Now()
	if mode == nil {
		mode = DefaultMode
	}

	result := RetrieveResult{Chunks: []domain.ScoredChunk{}, Mode: mode.String()}
	if query == "" || topK <= 0 {
		return result, nil
	}

	req := &retrieveRequest{query: query, topK: topK, filter: filter, opts: opts}
	out, err := mode.run(ctx, o, req)
	if err != nil {
		return RetrieveResult{}, err
	}

	chunks := out.chunks
	if opts.ExpandToParent || opts.ExpandToSiblings {
		expanded, err := o.expander.Expand(ctx, chunks, expandOptions{
			parents:      opts.ExpandToParent,
			siblings:     opts.ExpandToSiblings,
			parentScore:  orDefault(opts.ParentScore, DefaultParentScore),
			siblingScore: orDefault(opts.SiblingScore, DefaultSiblingScore),
			deadline:     opts.Deadline,
		})
		if err != nil {
			return RetrieveResult{}, err
		}
		result.ExpandedCount = len(expanded) - len(chunks)
		chunks = expanded
	}

	result.Chunks = chunks
	result.RerankApplied = out.rerankApplied
	result.RerankStats = out.rerankStats
	result.Duration = time.Since(start)

	o.log.Debug("retrieval complete",
		slog.String("mode", result.Mode),
		slog.Int("top_k", topK),
		slog.Int("results", len(result.Chunks)),
		slog.Int("expanded", result.ExpandedCount),
		slog.Bool("rerank_applied", result.RerankApplied),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// denseSearch embeds the query (cached) and issues one filtered top-k query.
func (o *Orchestrator) denseSearch(ctx context.Context, req *retrieveRequest, k int) ([]domain.ScoredChunk, error) {
	vector, err := o.embedQuery(ctx, req.query, req.opts.Deadline)
	if err != nil {
		return nil, err
	}

	if err := checkDeadline(ctx, req.opts.Deadline); err != nil {
		return nil, err
	}
	chunks, err := o.store.QueryByVector(ctx, vector, k, req.filter)
	if err != nil {
		return nil, fmt.Errorf("%w: query by vector: %w", domain.ErrVectorStoreFailure, err)
	}
	return chunks, nil
}

func (o *Orchestrator) embedQuery(ctx context.Context, query string, deadline domain.DeadlineCheck) ([]float32, error) {
	key := o.embedder.ModelName() + "\x00" + query
	if v, ok := o.embedCache.Get(key); ok {
		return v, nil
	}

	if err := checkDeadline(ctx, deadline); err != nil {
		return nil, err
	}
	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrEmbeddingFailure, err)
	}
	if dim := o.embedder.Dimension(); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: embedder returned %d dimensions, declared %d: %w",
			domain.ErrEmbeddingFailure, len(vector), dim, domain.ErrDimensionMismatch)
	}

	o.embedCache.Put(key, vector)
	return vector, nil
}

// checkDeadline reports cancellation of ctx or a failing deadline check as
// domain.ErrDeadlineExceeded.
func checkDeadline(ctx context.Context, deadline domain.DeadlineCheck) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeadlineExceeded, err)
	}
	if deadline == nil {
		return nil
	}
	if err := deadline(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeadlineExceeded, err)
	}
	return nil
}

// DeadlineAt returns a check that fails once t has passed.
func DeadlineAt(t time.Time) domain.DeadlineCheck {
	return func() error {
		if time.Now().After(t) {
			return fmt.Errorf("passed %s", t.Format(time.RFC3339))
		}
		return nil
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
