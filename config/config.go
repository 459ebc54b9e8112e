package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"ragcore/internal/adapter/retriever"
)

// Config holds all configuration for ragcore.
type Config struct {
	Retrieve    RetrieveConfig    `yaml:"retrieve"`
	Hybrid      HybridConfig      `yaml:"hybrid"`
	Prune       PruneConfig       `yaml:"prune"`
	Uncertainty UncertaintyConfig `yaml:"uncertainty"`
	Pack        PackConfig        `yaml:"pack"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Store       StoreConfig       `yaml:"store"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	Mode               string  `yaml:"mode"` // "naive", "local", "hybrid"
	TopK               int     `yaml:"top_k"`
	ExpandToParent     bool    `yaml:"expand_to_parent"`
	ExpandToSiblings   bool    `yaml:"expand_to_siblings"`
	ParentScore        float64 `yaml:"parent_score"`
	SiblingScore       float64 `yaml:"sibling_score"`
	EmbeddingCacheSize int     `yaml:"embedding_cache_size"`
}

// HybridConfig configures the sparse rerank pass.
type HybridConfig struct {
	Enabled     retriever.Enablement `yaml:"enabled"` // true, false or auto
	DenseWeight float64              `yaml:"dense_weight"`
	MinScore    float64              `yaml:"min_score"`
	NgramSize   int                  `yaml:"ngram_size"`
	NgramMode   string               `yaml:"ngram_mode"` // "char" or "word"
	Dimension   int                  `yaml:"dimension"`
	CacheSize   int                  `yaml:"cache_size"`
}

// PruneConfig configures the iterative relevance pruner.
type PruneConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Strategy       string  `yaml:"strategy"` // "topK", "ratio", "threshold"
	TopK           int     `yaml:"top_k"`
	KeepRatio      float64 `yaml:"keep_ratio"`
	Threshold      float64 `yaml:"threshold"`
	MaxIterations  int     `yaml:"max_iterations"`
	MinChunks      int     `yaml:"min_chunks"`
	BatchSize      int     `yaml:"batch_size"`
	Scorer         string  `yaml:"scorer"` // "uncertainty" or "similarity"
	PromptTemplate string  `yaml:"prompt_template"`
}

// UncertaintyConfig tunes normalized-uncertainty generation.
type UncertaintyConfig struct {
	TopK        int     `yaml:"top_k"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// PackConfig holds context packing configuration.
type PackConfig struct {
	TokenBudget int `yaml:"token_budget"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`    // "openai", "jina", "ollama", "mock"
	Model     string `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"` // 0 uses the model's known size
	BatchSize int    `yaml:"batch_size"`
}

// LLMConfig holds the completion provider used for uncertainty scoring.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "deepseek", "local"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
}

// StoreConfig holds vector store configuration.
type StoreConfig struct {
	Path string `yaml:"path"` // relative paths resolve against the project dir
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Retrieve: RetrieveConfig{
			Mode:               "hybrid",
			TopK:               10,
			ParentScore:        0.7,
			SiblingScore:       0.6,
			EmbeddingCacheSize: 256,
		},
		Hybrid: HybridConfig{
			Enabled:     retriever.EnableAuto,
			DenseWeight: 0.7,
			NgramSize:   3,
			NgramMode:   "char",
			Dimension:   2048,
			CacheSize:   256,
		},
		Prune: PruneConfig{
			Enabled:       false,
			Strategy:      "topK",
			TopK:          5,
			KeepRatio:     0.5,
			Threshold:     0.5,
			MaxIterations: 3,
			MinChunks:     1,
			BatchSize:     4,
			Scorer:        "uncertainty",
		},
		Uncertainty: UncertaintyConfig{
			TopK:      5,
			MaxTokens: 50,
		},
		Pack: PackConfig{
			TokenBudget: 4000,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			BatchSize: 100,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Store: StoreConfig{
			Path: filepath.Join(".ragcore", "vectors.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Retrieve.Mode) {
	case "", "naive", "local", "hybrid":
	default:
		errs = append(errs, fmt.Errorf("retrieve.mode: unknown mode %q", c.Retrieve.Mode))
	}
	if c.Retrieve.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be at least 1, got %d", c.Retrieve.TopK))
	}
	if _, err := retriever.ParseEnablement(string(c.Hybrid.Enabled)); err != nil {
		errs = append(errs, fmt.Errorf("hybrid.enabled: %w", err))
	}
	if c.Hybrid.DenseWeight < 0 || c.Hybrid.DenseWeight > 1 {
		errs = append(errs, fmt.Errorf("hybrid.dense_weight must be in [0,1], got %g", c.Hybrid.DenseWeight))
	}
	switch c.Hybrid.NgramMode {
	case "", "char", "word":
	default:
		errs = append(errs, fmt.Errorf("hybrid.ngram_mode: want char or word, got %q", c.Hybrid.NgramMode))
	}
	switch strings.ToLower(c.Prune.Strategy) {
	case "", "topk", "ratio", "threshold":
	default:
		errs = append(errs, fmt.Errorf("prune.strategy: want topK, ratio or threshold, got %q", c.Prune.Strategy))
	}
	if c.Prune.KeepRatio <= 0 || c.Prune.KeepRatio > 1 {
		errs = append(errs, fmt.Errorf("prune.keep_ratio must be in (0,1], got %g", c.Prune.KeepRatio))
	}
	if c.Prune.MinChunks < 1 {
		errs = append(errs, fmt.Errorf("prune.min_chunks must be at least 1, got %d", c.Prune.MinChunks))
	}
	if c.Prune.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("prune.max_iterations must be at least 1, got %d", c.Prune.MaxIterations))
	}
	switch c.Prune.Scorer {
	case "", "uncertainty", "similarity":
	default:
		errs = append(errs, fmt.Errorf("prune.scorer: want uncertainty or similarity, got %q", c.Prune.Scorer))
	}
	if c.Uncertainty.TopK < 2 {
		errs = append(errs, fmt.Errorf("uncertainty.top_k must be at least 2, got %d", c.Uncertainty.TopK))
	}

	return errors.Join(errs...)
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for ragcore.yaml).
func LoadFromDir(dir string) (*Config, error) {
	// Try ragcore.yaml in the directory
	path := filepath.Join(dir, "ragcore.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Try .ragcore/config.yaml
	path = filepath.Join(dir, ".ragcore", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	// Return defaults
	return DefaultConfig(), nil
}

// LoadEnv loads dir/.env into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath resolves the vector store path against dir.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// EnsureStoreDir ensures the directory holding the store file exists.
func (c *Config) EnsureStoreDir(dir string) error {
	return os.MkdirAll(filepath.Dir(c.StorePath(dir)), 0755)
}
