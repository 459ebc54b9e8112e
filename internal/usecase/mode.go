package usecase

import (
	"context"
	"fmt"
	"strings"

	"ragcore/internal/domain"
)

// Mode is one of the closed set of retrieval strategies. The set is sealed
// by the unexported run method: every mode carries its own handler.
type Mode interface {
	String() string
	run(ctx context.Context, o *Orchestrator, req *retrieveRequest) (modeOutput, error)
}

// NaiveMode embeds the query once and returns one filtered top-K dense query.
type NaiveMode struct{}

// LocalMode behaves exactly like NaiveMode. The name is kept for callers that
// still send it; no graph expansion is performed.
type LocalMode struct{}

// HybridMode over-fetches dense candidates, applies the hybrid reranker and
// truncates to top-K.
type HybridMode struct{}

var (
	ModeNaive  Mode = NaiveMode{}
	ModeLocal  Mode = LocalMode{}
	ModeHybrid Mode = HybridMode{}
)

// DefaultMode is used when no mode is configured.
var DefaultMode = ModeHybrid

// maxHybridCandidates caps the hybrid over-fetch.
const maxHybridCandidates = 50

func (NaiveMode) String() string  { return "naive" }
func (LocalMode) String() string  { return "local" }
func (HybridMode) String() string { return "hybrid" }

// Modes lists every retrieval mode.
func Modes() []Mode {
	return []Mode{ModeNaive, ModeLocal, ModeHybrid}
}

// ParseMode resolves a mode name. The empty string selects DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultMode, nil
	case "naive":
		return ModeNaive, nil
	case "local":
		return ModeLocal, nil
	case "hybrid":
		return ModeHybrid, nil
	}
	return nil, fmt.Errorf("%w: %q (want naive, local or hybrid)", domain.ErrUnknownMode, s)
}

type modeOutput struct {
	chunks        []domain.ScoredChunk
	rerankApplied bool
	rerankStats   domain.RerankStats
}

func (NaiveMode) run(ctx context.Context, o *Orchestrator, req *retrieveRequest) (modeOutput, error) {
	chunks, err := o.denseSearch(ctx, req, req.topK)
	if err != nil {
		return modeOutput{}, err
	}
	return modeOutput{chunks: chunks}, nil
}

func (LocalMode) run(ctx context.Context, o *Orchestrator, req *retrieveRequest) (modeOutput, error) {
	return NaiveMode{}.run(ctx, o, req)
}

func (HybridMode) run(ctx context.Context, o *Orchestrator, req *retrieveRequest) (modeOutput, error) {
	candidates, err := o.denseSearch(ctx, req, hybridPoolSize(req.topK))
	if err != nil {
		return modeOutput{}, err
	}

	reranked := o.reranker.Rerank(req.query, candidates, req.opts.Hybrid)
	chunks := reranked.Chunks
	if len(chunks) > req.topK {
		chunks = chunks[:req.topK]
	}
	return modeOutput{
		chunks:        chunks,
		rerankApplied: reranked.Applied,
		rerankStats:   reranked.Stats,
	}, nil
}

// hybridPoolSize is min(2*topK, 50), never below topK itself.
func hybridPoolSize(topK int) int {
	return max(topK, min(2*topK, maxHybridCandidates))
}
