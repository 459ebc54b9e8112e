package cli

import (
	"fmt"
	"log/slog"
	"os"

	"ragcore/config"
	"ragcore/internal/adapter/embedding"
	"ragcore/internal/adapter/llm"
	"ragcore/internal/adapter/pruner"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/adapter/sparse"
	"ragcore/internal/adapter/store"
	"ragcore/internal/adapter/uncertainty"
	"ragcore/internal/port"
	"ragcore/internal/usecase"
)

func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	ec := cfg.Embedding

	var (
		e   *embedding.OpenAIEmbedder
		err error
	)
	switch ec.Provider {
	case "mock":
		return embedding.NewMockEmbedder(ec.Dimension), nil
	case "ollama":
		e, err = embedding.NewOllamaEmbedder(ec.Model, ec.BaseURL)
	case "jina":
		e, err = embedding.NewJinaEmbedder(ec.APIKeyEnv, ec.Model)
	case "openai":
		if ec.BaseURL != "" {
			e, err = embedding.NewOpenAICompatibleEmbedder(ec.APIKeyEnv, ec.Model, ec.BaseURL)
		} else {
			e, err = embedding.NewOpenAIEmbedder(ec.APIKeyEnv, ec.Model)
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embedder init failed: %w", err)
	}
	return e.WithDimension(ec.Dimension), nil
}

func newLLM(cfg *config.Config) (*llm.Client, error) {
	apiKey := ""
	if cfg.LLM.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.LLM.APIKeyEnv)
	}
	return llm.NewClient(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL, apiKey)
}

func openStore(cfg *config.Config, embedder port.Embedder) (*store.BoltStore, error) {
	if err := cfg.EnsureStoreDir(rootDir); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	st, err := store.NewBoltStore(cfg.StorePath(rootDir), store.Options{
		Dimension: embedder.Dimension(),
		Model:     embedder.ModelName(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func newSparseIndex(cfg *config.Config) *sparse.HashingIndex {
	return sparse.NewHashingIndex(sparse.Options{
		Dimension: cfg.Hybrid.Dimension,
		NgramSize: cfg.Hybrid.NgramSize,
		Mode:      sparse.NgramMode(cfg.Hybrid.NgramMode),
	})
}

func newOrchestrator(cfg *config.Config, embedder port.Embedder, vs port.VectorStore, log *slog.Logger) *usecase.Orchestrator {
	reranker := retriever.NewHybridReranker(newSparseIndex(cfg), cfg.Hybrid.CacheSize, log)
	return usecase.NewOrchestrator(embedder, vs, reranker, cfg.Retrieve.EmbeddingCacheSize, log)
}

func retrieveOptions(cfg *config.Config, hybridOverride string) (usecase.RetrieveOptions, error) {
	e := cfg.Hybrid.Enabled
	if hybridOverride != "" {
		var err error
		if e, err = retriever.ParseEnablement(hybridOverride); err != nil {
			return usecase.RetrieveOptions{}, err
		}
	}
	return usecase.RetrieveOptions{
		ExpandToParent:   cfg.Retrieve.ExpandToParent,
		ExpandToSiblings: cfg.Retrieve.ExpandToSiblings,
		ParentScore:      cfg.Retrieve.ParentScore,
		SiblingScore:     cfg.Retrieve.SiblingScore,
		Hybrid: retriever.RerankOptions{
			Enabled:     e,
			DenseWeight: cfg.Hybrid.DenseWeight,
			MinScore:    cfg.Hybrid.MinScore,
		},
	}, nil
}

func pruneOptions(cfg *config.Config) (pruner.Options, error) {
	pc := cfg.Prune
	strategy, err := pruner.ParseStrategy(pc.Strategy)
	if err != nil {
		return pruner.Options{}, err
	}
	return pruner.Options{
		Enabled:       pc.Enabled,
		Strategy:      strategy,
		TopK:          pc.TopK,
		KeepRatio:     pc.KeepRatio,
		Threshold:     pc.Threshold,
		MaxIterations: pc.MaxIterations,
		MinChunks:     pc.MinChunks,
		BatchSize:     pc.BatchSize,
	}, nil
}

func uncertaintyOptions(cfg *config.Config) uncertainty.Options {
	return uncertainty.Options{
		TopK:        cfg.Uncertainty.TopK,
		MaxTokens:   cfg.Uncertainty.MaxTokens,
		Temperature: cfg.Uncertainty.Temperature,
	}
}

// newPruneUseCase prefers the uncertainty scorer and falls back to the
// similarity scorer. Without a usable LLM it prunes by similarity alone.
func newPruneUseCase(cfg *config.Config, log *slog.Logger) (*usecase.PruneUseCase, error) {
	similarity := pruner.NewSimilarityScorer(newSparseIndex(cfg), cfg.Hybrid.DenseWeight)
	if cfg.Prune.Scorer == "similarity" {
		return usecase.NewPruneUseCase(similarity, nil, log), nil
	}

	client, err := newLLM(cfg)
	if err != nil {
		log.Warn("LLM unavailable, pruning by similarity", slog.String("error", err.Error()))
		return usecase.NewPruneUseCase(similarity, nil, log), nil
	}
	scorer, err := pruner.NewUncertaintyScorer(uncertainty.NewScorer(client, log), cfg.Prune.PromptTemplate, uncertaintyOptions(cfg))
	if err != nil {
		return nil, err
	}
	return usecase.NewPruneUseCase(scorer, similarity, log), nil
}
