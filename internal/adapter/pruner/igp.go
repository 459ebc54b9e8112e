// Package pruner narrows a candidate chunk set by repeatedly re-scoring it
// against the query and keeping the most relevant survivors until the set
// stops shrinking or a bound is hit.
package pruner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// Strategy selects which scored candidates survive an iteration.
type Strategy string

const (
	StrategyTopK      Strategy = "topK"
	StrategyRatio     Strategy = "ratio"
	StrategyThreshold Strategy = "threshold"
)

// ParseStrategy accepts topK|ratio|threshold (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "topk", "top_k", "":
		return StrategyTopK, nil
	case "ratio":
		return StrategyRatio, nil
	case "threshold":
		return StrategyThreshold, nil
	}
	return "", fmt.Errorf("invalid prune strategy %q (want topK, ratio or threshold)", s)
}

// Options configures one pruning call.
type Options struct {
	Enabled       bool
	Strategy      Strategy
	TopK          int
	KeepRatio     float64
	Threshold     float64
	MaxIterations int
	MinChunks     int
	BatchSize     int
	Deadline      domain.DeadlineCheck
}

// DefaultOptions returns an enabled topK=5 pruner with three iterations.
func DefaultOptions() Options {
	return Options{
		Enabled:       true,
		Strategy:      StrategyTopK,
		TopK:          5,
		KeepRatio:     0.5,
		Threshold:     0.5,
		MaxIterations: 3,
		MinChunks:     1,
		BatchSize:     4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Strategy == "" {
		o.Strategy = d.Strategy
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.KeepRatio <= 0 || o.KeepRatio > 1 {
		o.KeepRatio = d.KeepRatio
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.MinChunks <= 0 {
		o.MinChunks = d.MinChunks
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	return o
}

// Result is the outcome of a pruning call.
type Result struct {
	Chunks     []domain.ScoredChunk
	Iterations int
	Stats      domain.PruneStats
	Scores     map[string]float64 // last per-chunk relevance snapshot
}

// Pruner runs iterative relevance pruning with a fixed RelevanceScorer.
type Pruner struct {
	scorer port.RelevanceScorer
	log    *slog.Logger
}

// New creates a Pruner using scorer for every iteration.
func New(scorer port.RelevanceScorer, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{scorer: scorer, log: logger}
}

// Scorer returns the relevance scorer this pruner was built with.
func (p *Pruner) Scorer() port.RelevanceScorer {
	return p.scorer
}

// pruningState is scoped to one Prune call.
type pruningState struct {
	iteration int
	current   []domain.ScoredChunk
	scores    map[string]float64
	failures  int
}

// Prune narrows chunks for query. The result never holds more chunks than
// the input and never fewer than MinChunks (unless the input was smaller).
// Individual scoring failures degrade to the scorer's worst score. An error
// is returned only when the deadline check fails or the scorer reports
// domain.ErrLogprobsUnavailable.
func (p *Pruner) Prune(ctx context.Context, query string, chunks []domain.ScoredChunk, opts Options) (Result, error) {
	start := time.Now()

	if !opts.Enabled {
		return Result{
			Chunks: chunks,
			Stats: domain.PruneStats{
				OriginalCount: len(chunks),
				PrunedCount:   len(chunks),
				Ratio:         domain.NotPrunedRatio,
				StopReason:    domain.StopDisabled,
			},
		}, nil
	}
	if len(chunks) == 0 {
		return Result{
			Chunks: []domain.ScoredChunk{},
			Stats:  domain.PruneStats{Ratio: domain.NotPrunedRatio, StopReason: domain.StopEmpty},
		}, nil
	}

	opts = opts.withDefaults()
	state := &pruningState{
		current: append([]domain.ScoredChunk(nil), chunks...),
		scores:  make(map[string]float64, len(chunks)),
	}

	var reason domain.StopReason
	for {
		if state.iteration >= opts.MaxIterations {
			reason = domain.StopMaxIterations
			break
		}
		if len(state.current) <= opts.MinChunks {
			reason = domain.StopMinFloor
			break
		}
		if opts.Strategy == StrategyTopK && opts.TopK >= len(state.current) {
			reason = domain.StopConverged
			break
		}
		if err := checkDeadline(ctx, opts.Deadline); err != nil {
			return Result{}, err
		}

		ranked, err := p.scoreAll(ctx, query, state, opts.BatchSize)
		if err != nil {
			return Result{}, err
		}
		state.iteration++

		selected := selectSurvivors(ranked, opts)
		floorHit := false
		if len(selected) < opts.MinChunks {
			selected = ranked[:min(opts.MinChunks, len(ranked))]
			floorHit = true
		}

		converged := len(selected) == len(state.current)
		state.current = selected

		p.log.Debug("pruning iteration",
			slog.Int("iteration", state.iteration),
			slog.Int("candidates", len(ranked)),
			slog.Int("survivors", len(selected)),
			slog.String("strategy", string(opts.Strategy)))

		if floorHit {
			reason = domain.StopMinFloor
			break
		}
		if converged {
			reason = domain.StopConverged
			break
		}
	}

	stats := domain.PruneStats{
		OriginalCount:   len(chunks),
		PrunedCount:     len(state.current),
		Ratio:           float64(len(state.current)) / float64(len(chunks)),
		Iterations:      state.iteration,
		Duration:        time.Since(start),
		ScoringFailures: state.failures,
		StopReason:      reason,
	}
	p.log.Debug("pruning finished",
		slog.Int("original", stats.OriginalCount),
		slog.Int("pruned", stats.PrunedCount),
		slog.Int("iterations", stats.Iterations),
		slog.String("stop_reason", string(reason)),
		slog.String("scorer", p.scorer.Name()))

	return Result{
		Chunks:     state.current,
		Iterations: state.iteration,
		Stats:      stats,
		Scores:     state.scores,
	}, nil
}

// scoreAll scores every current candidate with at most batchSize calls in
// flight and returns them ordered by relevance.
func (p *Pruner) scoreAll(ctx context.Context, query string, state *pruningState, batchSize int) ([]domain.ScoredChunk, error) {
	scored := make([]domain.ScoredChunk, len(state.current))
	errs := make([]error, len(state.current))

	var g errgroup.Group
	g.SetLimit(batchSize)
	for i, c := range state.current {
		i, c := i, c
		g.Go(func() error {
			score, err := p.scorer.Score(ctx, query, c)
			if err != nil {
				errs[i] = err
				score = p.scorer.WorstScore()
			}
			c.Score = score
			scored[i] = c
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, domain.ErrLogprobsUnavailable) {
			return nil, fmt.Errorf("scorer %s: %w", p.scorer.Name(), err)
		}
		state.failures++
		p.log.Warn("chunk scoring failed, using worst-case score",
			slog.String("chunk_id", state.current[i].Chunk.ID),
			slog.Int("iteration", state.iteration+1),
			slog.String("error", err.Error()))
	}

	for _, c := range scored {
		state.scores[c.Chunk.ID] = c.Score
	}
	domain.SortByScore(scored)
	return scored, nil
}

// selectSurvivors applies the strategy to candidates ranked best first.
func selectSurvivors(ranked []domain.ScoredChunk, opts Options) []domain.ScoredChunk {
	switch opts.Strategy {
	case StrategyRatio:
		keep := int(math.Ceil(opts.KeepRatio * float64(len(ranked))))
		keep = max(1, min(keep, len(ranked)))
		return ranked[:keep]
	case StrategyThreshold:
		keep := 0
		for keep < len(ranked) && ranked[keep].Score >= opts.Threshold {
			keep++
		}
		return ranked[:keep]
	default:
		return ranked[:min(opts.TopK, len(ranked))]
	}
}

func checkDeadline(ctx context.Context, deadline domain.DeadlineCheck) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeadlineExceeded, err)
	}
	if deadline != nil {
		if err := deadline(); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDeadlineExceeded, err)
		}
	}
	return nil
}
