package cli

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragcore/config"
	"ragcore/internal/adapter/pruner"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/usecase"
)

func TestRenderPrompt(t *testing.T) {
	packed := usecase.PackedContext{
		Query: "how do retries work",
		Snippets: []usecase.Snippet{
			{Source: "docs/retry.md", Heading: "Backoff", Why: "score 0.91", Text: "Retries back off exponentially."},
			{Source: "docs/client.md", Why: "score 0.40", Text: "The client wraps transport errors."},
		},
	}

	out, err := renderPrompt("templates/answer_prompt.txt", packed)
	require.NoError(t, err)
	assert.Contains(t, out, "Question: how do retries work")
	assert.Contains(t, out, "### [1] docs/retry.md - Backoff")
	assert.Contains(t, out, "### [2] docs/client.md\n")
	assert.Contains(t, out, "Retries back off exponentially.")

	out, err = renderPrompt("templates/review_prompt.txt", packed)
	require.NoError(t, err)
	assert.Contains(t, out, "worth keeping")

	_, err = renderPrompt("templates/missing.txt", packed)
	assert.Error(t, err)
}

func TestRetrieveOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retrieve.ExpandToParent = true
	cfg.Hybrid.DenseWeight = 0.4

	opts, err := retrieveOptions(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, retriever.EnableAuto, opts.Hybrid.Enabled)
	assert.Equal(t, 0.4, opts.Hybrid.DenseWeight)
	assert.True(t, opts.ExpandToParent)

	opts, err = retrieveOptions(cfg, "false")
	require.NoError(t, err)
	assert.Equal(t, retriever.EnableNever, opts.Hybrid.Enabled)

	_, err = retrieveOptions(cfg, "sometimes")
	assert.Error(t, err)
}

func TestPruneOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prune.Strategy = "threshold"
	cfg.Prune.Threshold = 0.65

	opts, err := pruneOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, pruner.StrategyThreshold, opts.Strategy)
	assert.Equal(t, 0.65, opts.Threshold)
	assert.Equal(t, cfg.Prune.MinChunks, opts.MinChunks)
}

func TestNewEmbedder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 16

	e, err := newEmbedder(cfg)
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimension())

	cfg.Embedding.Provider = "carrier-pigeon"
	_, err = newEmbedder(cfg)
	assert.ErrorContains(t, err, "unsupported embedding provider")
}

func TestNewPruneUseCase_SimilarityWithoutLLM(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Prune.Scorer = "similarity"

	uc, err := newPruneUseCase(cfg, GetLogger())
	require.NoError(t, err)
	assert.NotNil(t, uc)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "<1s", formatDuration(0))
	assert.Equal(t, "42s", formatDuration(42_000_000_000))
	assert.Equal(t, "2m5s", formatDuration(125_000_000_000))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "abc...", truncateRunes("abcdef", 3))

	got := truncateRunes("héllo wörld", 2)
	assert.Equal(t, "hé...", got)
	assert.True(t, utf8.ValidString(got))

	cjk := truncateRunes("検索拡張生成", 4)
	assert.Equal(t, "検索拡張...", cjk)
}
