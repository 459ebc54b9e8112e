package pruner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"text/template"

	"ragcore/internal/adapter/sparse"
	"ragcore/internal/adapter/uncertainty"
	"ragcore/internal/domain"
)

// DefaultPromptTemplate asks the model to answer from a single passage. A
// confident answer means the passage carries the information needed.
const DefaultPromptTemplate = `Answer the question using only the passage below.
If the passage does not contain the answer, reply "unknown".

Question: {{.Query}}

Passage:
{{.Content}}

Answer:`

// PromptData is the data passed to relevance prompt templates.
type PromptData struct {
	Query   string
	Content string
	Heading string
	Path    string
}

// UncertaintyScorer scores a chunk as 1 - NU of an answer conditioned on
// that chunk alone. Lower uncertainty means a more informative chunk.
type UncertaintyScorer struct {
	nu     *uncertainty.Scorer
	prompt *template.Template
	opts   uncertainty.Options
}

// NewUncertaintyScorer parses promptTemplate (DefaultPromptTemplate when
// empty) and returns a scorer driving nu with opts.
func NewUncertaintyScorer(nu *uncertainty.Scorer, promptTemplate string, opts uncertainty.Options) (*UncertaintyScorer, error) {
	if strings.TrimSpace(promptTemplate) == "" {
		promptTemplate = DefaultPromptTemplate
	}
	tmpl, err := template.New("relevance").Option("missingkey=error").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse relevance prompt: %w", err)
	}
	return &UncertaintyScorer{nu: nu, prompt: tmpl, opts: opts}, nil
}

// Score implements port.RelevanceScorer.
func (s *UncertaintyScorer) Score(ctx context.Context, query string, chunk domain.ScoredChunk) (float64, error) {
	prompt, err := s.render(query, chunk)
	if err != nil {
		return s.WorstScore(), err
	}
	result, err := s.nu.ComputeNU(ctx, prompt, s.opts)
	if err != nil {
		return s.WorstScore(), err
	}
	return 1 - result.NU, nil
}

func (s *UncertaintyScorer) render(query string, chunk domain.ScoredChunk) (string, error) {
	var b strings.Builder
	err := s.prompt.Execute(&b, PromptData{
		Query:   query,
		Content: chunk.Chunk.Content,
		Heading: chunk.Chunk.Metadata.SectionHeading,
		Path:    chunk.Chunk.Metadata.FilePath,
	})
	if err != nil {
		return "", fmt.Errorf("render relevance prompt: %w", err)
	}
	return b.String(), nil
}

// WorstScore corresponds to maximal uncertainty.
func (s *UncertaintyScorer) WorstScore() float64 { return 0 }

func (s *UncertaintyScorer) Name() string { return "uncertainty" }

// SimilarityScorer scores chunks without an LLM by fusing the retrieval
// dense score with a hashed n-gram similarity to the query.
type SimilarityScorer struct {
	index       *sparse.HashingIndex
	denseWeight float64
}

// NewSimilarityScorer returns a scorer weighting the dense score by
// denseWeight, clamped to [0,1]. A nil index gets the default index.
func NewSimilarityScorer(index *sparse.HashingIndex, denseWeight float64) *SimilarityScorer {
	if index == nil {
		index = sparse.NewHashingIndex(sparse.Options{})
	}
	return &SimilarityScorer{index: index, denseWeight: math.Max(0, math.Min(1, denseWeight))}
}

// Score implements port.RelevanceScorer. It never fails.
func (s *SimilarityScorer) Score(_ context.Context, query string, chunk domain.ScoredChunk) (float64, error) {
	sim := sparse.CosineSimilarity(s.index.Hash(query), s.index.Hash(chunk.Chunk.Content))
	if sim < 0 {
		sim = 0
	}
	return s.denseWeight*chunk.DenseScore + (1-s.denseWeight)*sim, nil
}

// WorstScore is the lowest score the fusion can produce.
func (s *SimilarityScorer) WorstScore() float64 { return -1 }

func (s *SimilarityScorer) Name() string { return "similarity" }
