package usecase

import (
	"context"
	"errors"
	"log/slog"

	"ragcore/internal/adapter/pruner"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// PruneUseCase is the explicit pre-generation pruning step.
type PruneUseCase struct {
	primary  *pruner.Pruner
	fallback *pruner.Pruner
	log      *slog.Logger
}

// PruneResult is a pruner result plus which scorer produced it.
type PruneResult struct {
	pruner.Result
	Scorer   string `json:"scorer"`
	FellBack bool   `json:"fell_back"`
}

// NewPruneUseCase prunes with primary and switches to fallback when the
// primary reports domain.ErrLogprobsUnavailable. fallback may be nil, in
// which case such chunks are returned unpruned.
func NewPruneUseCase(primary, fallback port.RelevanceScorer, logger *slog.Logger) *PruneUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	u := &PruneUseCase{primary: pruner.New(primary, logger), log: logger}
	if fallback != nil {
		u.fallback = pruner.New(fallback, logger)
	}
	return u
}

// PruneForGeneration narrows chunks right before they are handed to a
// generator. If relevance cannot be computed, the input order is kept.
func (u *PruneUseCase) PruneForGeneration(ctx context.Context, query string, chunks []domain.ScoredChunk, opts pruner.Options) (PruneResult, error) {
	res, err := u.primary.Prune(ctx, query, chunks, opts)
	if err == nil {
		return PruneResult{Result: res, Scorer: u.primary.Scorer().Name()}, nil
	}
	if !errors.Is(err, domain.ErrLogprobsUnavailable) {
		return PruneResult{}, err
	}

	if u.fallback == nil {
		u.log.Warn("relevance scorer unavailable, skipping pruning",
			slog.String("scorer", u.primary.Scorer().Name()),
			slog.String("error", err.Error()))
		skipped := opts
		skipped.Enabled = false
		res, err := u.primary.Prune(ctx, query, chunks, skipped)
		if err != nil {
			return PruneResult{}, err
		}
		return PruneResult{Result: res, Scorer: "none", FellBack: true}, nil
	}

	u.log.Warn("relevance scorer unavailable, falling back",
		slog.String("scorer", u.primary.Scorer().Name()),
		slog.String("fallback", u.fallback.Scorer().Name()),
		slog.String("error", err.Error()))

	res, err = u.fallback.Prune(ctx, query, chunks, opts)
	if err != nil {
		return PruneResult{}, err
	}
	return PruneResult{Result: res, Scorer: u.fallback.Scorer().Name(), FellBack: true}, nil
}
