package domain

import "time"

// Granularity describes how coarse a chunk is within its source document.
type Granularity string

const (
	GranularityDocument  Granularity = "document"
	GranularitySection   Granularity = "section"
	GranularityParagraph Granularity = "paragraph"
	GranularitySentence  Granularity = "sentence"
)

// Chunk is an immutable, identified fragment of source text.
type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries provenance for a chunk. Owned by ingestion.
type ChunkMetadata struct {
	CollectionID   string      `json:"collection_id"`
	RepoID         string      `json:"repo_id,omitempty"`
	FilePath       string      `json:"file_path,omitempty"`
	PageIndex      int         `json:"page_index,omitempty"`
	ChunkIndex     int         `json:"chunk_index"`
	ParentChunkID  string      `json:"parent_chunk_id,omitempty"`
	SectionHeading string      `json:"section_heading,omitempty"`
	HeadingPath    []string    `json:"heading_path,omitempty"`
	Granularity    Granularity `json:"granularity,omitempty"`
}

// ScoredChunk is a Chunk ranked for one query. Never persisted.
type ScoredChunk struct {
	Chunk       Chunk   `json:"chunk"`
	DenseScore  float64 `json:"dense_score"`
	SparseScore float64 `json:"sparse_score"`
	HybridScore float64 `json:"hybrid_score"`
	Score       float64 `json:"score"` // generic sort score
}

// SparseVector is a fixed-length hashed n-gram vector.
type SparseVector []float64

// TopLogprob is one alternative token considered at a generation step.
type TopLogprob struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// TokenLogprob is the realized token at one generation step plus its
// top-K alternatives.
type TokenLogprob struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	TopLogprobs []TopLogprob `json:"top_logprobs,omitempty"`
}

// UncertaintyResult is the output of one normalized-uncertainty computation.
type UncertaintyResult struct {
	NU              float64   `json:"nu"`
	TokenCount      int       `json:"token_count"`
	AvgEntropy      float64   `json:"avg_entropy"`
	PerTokenEntropy []float64 `json:"per_token_entropy,omitempty"`
	GeneratedText   string    `json:"generated_text"`
	UsedFilteredSeq bool      `json:"used_filtered_sequence"`
}

// Filter restricts a vector query by chunk metadata. Empty fields match all.
type Filter struct {
	CollectionIDs []string `json:"collection_ids,omitempty" yaml:"collection_ids"`
	RepoID        string   `json:"repo_id,omitempty" yaml:"repo_id"`
	PathGlobs     []string `json:"path_globs,omitempty" yaml:"path_globs"`
}

// RerankStats records one hybrid rerank pass.
type RerankStats struct {
	Duration       time.Duration `json:"duration"`
	QueryHadTerms  bool          `json:"query_had_terms"`
	CandidateCount int           `json:"candidate_count"`
	FilteredCount  int           `json:"filtered_count"`
}

// StopReason explains why a pruning run terminated.
type StopReason string

const (
	StopDisabled      StopReason = "disabled"
	StopEmpty         StopReason = "empty"
	StopConverged     StopReason = "converged"
	StopMaxIterations StopReason = "max_iterations"
	StopMinFloor      StopReason = "min_floor"
)

// NotPrunedRatio marks PruneStats.Ratio when pruning was skipped, so that
// "not pruned" is distinguishable from "pruned to the same size" (ratio 1).
const NotPrunedRatio = -1.0

// PruneStats records one pruning run.
type PruneStats struct {
	OriginalCount   int           `json:"original_count"`
	PrunedCount     int           `json:"pruned_count"`
	Ratio           float64       `json:"ratio"`
	Iterations      int           `json:"iterations"`
	Duration        time.Duration `json:"duration"`
	ScoringFailures int           `json:"scoring_failures"`
	StopReason      StopReason    `json:"stop_reason"`
}
