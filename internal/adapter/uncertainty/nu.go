// Package uncertainty computes Normalized Uncertainty (NU): the mean Shannon
// entropy of an LLM's per-token top-K distributions divided by ln(K).
package uncertainty

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"

	"ragcore/internal/domain"
	"ragcore/internal/port"
)

// Options configures one NU computation.
type Options struct {
	TopK         int     // alternatives per token, at least 2
	MaxTokens    int     // generation length
	Temperature  float64 // 0 means deterministic decoding
	SystemPrompt string
}

// DefaultOptions returns topK=5, maxTokens=50, temperature=0.
func DefaultOptions() Options {
	return Options{
		TopK:        5,
		MaxTokens:   50,
		Temperature: 0,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopK < 2 {
		o.TopK = d.TopK
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Temperature < 0 {
		o.Temperature = 0
	}
	return o
}

// Scorer computes NU for prompts through an LLM that exposes logprobs.
type Scorer struct {
	llm port.LLM
	log *slog.Logger
}

// NewScorer creates a Scorer backed by llm.
func NewScorer(llm port.LLM, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{llm: llm, log: logger}
}

// ComputeNU generates a completion for prompt and returns its normalized
// uncertainty. It returns domain.ErrLogprobsUnavailable when the provider
// returned no logprobs; callers should fall back to similarity scoring.
func (s *Scorer) ComputeNU(ctx context.Context, prompt string, opts Options) (domain.UncertaintyResult, error) {
	opts = opts.withDefaults()

	completion, err := s.llm.Complete(ctx, prompt, opts.SystemPrompt, port.CompletionOptions{
		Logprobs:    true,
		TopLogprobs: opts.TopK,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return domain.UncertaintyResult{}, fmt.Errorf("uncertainty completion: %w", err)
	}
	if len(completion.Logprobs) == 0 {
		return domain.UncertaintyResult{}, fmt.Errorf("model %s: %w", s.llm.ModelName(), domain.ErrLogprobsUnavailable)
	}

	result := FromLogprobs(completion.Logprobs, opts.TopK)
	result.GeneratedText = completion.Content

	s.log.Debug("computed normalized uncertainty",
		slog.Float64("nu", result.NU),
		slog.Int("tokens", result.TokenCount),
		slog.Bool("filtered", result.UsedFilteredSeq))

	return result, nil
}

// FromLogprobs computes NU over a token sequence. Control tokens are dropped
// first unless that would leave nothing to score.
func FromLogprobs(logprobs []domain.TokenLogprob, topK int) domain.UncertaintyResult {
	if topK < 2 {
		topK = 2
	}

	seq := filterControlTokens(logprobs)
	filtered := len(seq) > 0
	if !filtered {
		seq = logprobs
	}
	if len(seq) == 0 {
		return domain.UncertaintyResult{}
	}

	maxEntropy := math.Log(float64(topK))
	entropies := make([]float64, len(seq))
	var total float64
	for i, tok := range seq {
		entropies[i] = TokenEntropy(tok, topK)
		total += entropies[i]
	}
	avg := total / float64(len(seq))

	return domain.UncertaintyResult{
		NU:              clamp01(avg / maxEntropy),
		TokenCount:      len(seq),
		AvgEntropy:      avg,
		PerTokenEntropy: entropies,
		UsedFilteredSeq: filtered && len(seq) != len(logprobs),
	}
}

// TokenEntropy is the Shannon entropy (nats) of the softmax over a token's
// realized logprob and its distinct top alternatives, keeping at most topK.
// With fewer than two distinct candidates it returns ln(topK), treating the
// step as maximally uncertain.
func TokenEntropy(tok domain.TokenLogprob, topK int) float64 {
	candidates := distinctCandidates(tok)
	if len(candidates) < 2 {
		return math.Log(float64(topK))
	}
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	maxLP := candidates[0]
	var z float64
	for _, lp := range candidates {
		z += math.Exp(lp - maxLP)
	}

	var h float64
	for _, lp := range candidates {
		p := math.Exp(lp-maxLP) / z
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// distinctCandidates returns de-duplicated logprobs sorted high to low.
func distinctCandidates(tok domain.TokenLogprob) []float64 {
	seen := make(map[string]float64, len(tok.TopLogprobs)+1)
	add := func(token string, lp float64) {
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return
		}
		if prev, ok := seen[token]; !ok || lp > prev {
			seen[token] = lp
		}
	}
	add(tok.Token, tok.Logprob)
	for _, alt := range tok.TopLogprobs {
		add(alt.Token, alt.Logprob)
	}

	out := make([]float64, 0, len(seen))
	for _, lp := range seen {
		out = append(out, lp)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(out)))
	return out
}

// controlToken matches structurally delimited sentinels such as <|eot_id|>,
// </s>, <pad> and [INST].
var controlToken = regexp.MustCompile(`^\s*(<\|[^|]*\|>|</?[A-Za-z_][A-Za-z0-9_]*>|\[/?[A-Z_]+\])\s*$`)

func filterControlTokens(seq []domain.TokenLogprob) []domain.TokenLogprob {
	out := make([]domain.TokenLogprob, 0, len(seq))
	for _, tok := range seq {
		if controlToken.MatchString(tok.Token) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
