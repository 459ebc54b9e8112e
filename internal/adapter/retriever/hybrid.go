package retriever

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"ragcore/internal/adapter/cache"
	"ragcore/internal/adapter/sparse"
	"ragcore/internal/domain"
)

// Enablement controls whether the sparse rerank pass runs.
type Enablement string

const (
	EnableAlways Enablement = "true"
	EnableNever  Enablement = "false"
	EnableAuto   Enablement = "auto"
)

// ParseEnablement accepts true|false|auto (case-insensitive).
func ParseEnablement(s string) (Enablement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes":
		return EnableAlways, nil
	case "false", "off", "no":
		return EnableNever, nil
	case "auto", "":
		return EnableAuto, nil
	}
	return "", fmt.Errorf("invalid hybrid enablement %q (want true, false or auto)", s)
}

// UnmarshalYAML accepts a YAML boolean or one of the ParseEnablement
// spellings.
func (e *Enablement) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseEnablement(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*e = parsed
	return nil
}

const DefaultDenseWeight = 0.7

// RerankOptions configures a single rerank call.
type RerankOptions struct {
	Enabled     Enablement
	DenseWeight float64 // fusion weight for the dense score, clamped to [0, 1]
	MinScore    float64 // drop chunks whose hybrid score is below this; 0 keeps all
}

// DefaultRerankOptions returns auto enablement with the default dense weight.
func DefaultRerankOptions() RerankOptions {
	return RerankOptions{
		Enabled:     EnableAuto,
		DenseWeight: DefaultDenseWeight,
	}
}

// RerankResult is the outcome of one rerank call.
type RerankResult struct {
	Chunks  []domain.ScoredChunk
	Applied bool
	Stats   domain.RerankStats
}

// HybridReranker fuses dense similarity with a hashed n-gram lexical score.
type HybridReranker struct {
	index      *sparse.HashingIndex
	queryCache *cache.LRU[domain.SparseVector]
	log        *slog.Logger
}

// NewHybridReranker creates a reranker. cacheSize bounds the per-instance
// cache of hashed query vectors; 0 disables it.
func NewHybridReranker(index *sparse.HashingIndex, cacheSize int, logger *slog.Logger) *HybridReranker {
	if index == nil {
		index = sparse.NewHashingIndex(sparse.Options{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridReranker{
		index:      index,
		queryCache: cache.NewLRU[domain.SparseVector](cacheSize),
		log:        logger,
	}
}

// Rerank reorders chunks by hybridScore = w*dense + (1-w)*sparse.
// When reranking does not apply, chunks are returned in their original order
// with sparseScore 0 and hybridScore equal to the dense score.
func (r *HybridReranker) Rerank(query string, chunks []domain.ScoredChunk, opts RerankOptions) RerankResult {
	if len(chunks) == 0 {
		return RerankResult{Chunks: []domain.ScoredChunk{}}
	}

	if !r.shouldApply(query, opts.Enabled) {
		return RerankResult{
			Chunks: passthrough(chunks),
			Stats:  domain.RerankStats{CandidateCount: len(chunks)},
		}
	}

	start := time.Now()
	w := math.Max(0, math.Min(1, opts.DenseWeight))

	queryVec := r.queryCache.GetOrCompute(query, func() domain.SparseVector {
		return r.index.Hash(query)
	})
	hadTerms := hasMagnitude(queryVec)

	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		sparseScore := 0.0
		if hadTerms {
			// lexical similarity is reported in [0, 1]
			sparseScore = math.Max(0, sparse.CosineSimilarity(queryVec, r.index.Hash(c.Chunk.Content)))
		}
		c.SparseScore = sparseScore
		c.HybridScore = w*c.DenseScore + (1-w)*sparseScore
		c.Score = c.HybridScore
		out = append(out, c)
	}

	domain.SortByScore(out)

	filtered := 0
	if opts.MinScore > 0 {
		kept := out[:0]
		for _, c := range out {
			if c.HybridScore >= opts.MinScore {
				kept = append(kept, c)
			}
		}
		filtered = len(out) - len(kept)
		out = kept
	}

	stats := domain.RerankStats{
		Duration:       time.Since(start),
		QueryHadTerms:  hadTerms,
		CandidateCount: len(chunks),
		FilteredCount:  filtered,
	}
	r.log.Debug("hybrid rerank applied",
		slog.Int("candidates", len(chunks)),
		slog.Int("filtered", filtered),
		slog.Float64("dense_weight", w),
		slog.Bool("query_had_terms", hadTerms),
		slog.Duration("duration", stats.Duration))

	return RerankResult{Chunks: out, Applied: true, Stats: stats}
}

func (r *HybridReranker) shouldApply(query string, enabled Enablement) bool {
	switch enabled {
	case EnableAlways:
		return true
	case EnableAuto:
		return sparse.ShouldUseNgramMatching(query)
	default:
		return false
	}
}

// passthrough copies chunks, resetting lexical fields to the dense-only values.
func passthrough(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		c.SparseScore = 0
		c.HybridScore = c.DenseScore
		c.Score = c.DenseScore
		out[i] = c
	}
	return out
}

func hasMagnitude(v domain.SparseVector) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
