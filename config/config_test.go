package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ragcore/internal/adapter/retriever"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retrieve.Mode != "hybrid" {
		t.Errorf("expected mode hybrid, got %s", cfg.Retrieve.Mode)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected top_k 10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Hybrid.Enabled != retriever.EnableAuto {
		t.Errorf("expected hybrid auto, got %s", cfg.Hybrid.Enabled)
	}
	if cfg.Hybrid.DenseWeight != 0.7 {
		t.Errorf("expected dense_weight 0.7, got %f", cfg.Hybrid.DenseWeight)
	}
	if cfg.Prune.Enabled {
		t.Error("expected pruning disabled by default")
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("expected provider openai, got %s", cfg.Embedding.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/ragcore.yaml")
	if err != nil {
		t.Fatalf("expected no error for nonexistent file, got %v", err)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Error("expected default config")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragcore.yaml")

	content := `
retrieve:
  mode: naive
  top_k: 20
  expand_to_parent: true
hybrid:
  enabled: true
  dense_weight: 0.5
prune:
  enabled: true
  strategy: ratio
  keep_ratio: 0.25
embedding:
  provider: ollama
  model: nomic-embed-text
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Retrieve.Mode != "naive" {
		t.Errorf("expected mode naive, got %s", cfg.Retrieve.Mode)
	}
	if cfg.Retrieve.TopK != 20 {
		t.Errorf("expected top_k 20, got %d", cfg.Retrieve.TopK)
	}
	if !cfg.Retrieve.ExpandToParent {
		t.Error("expected expand_to_parent true")
	}
	if cfg.Hybrid.Enabled != retriever.EnableAlways {
		t.Errorf("expected hybrid on, got %s", cfg.Hybrid.Enabled)
	}
	if cfg.Hybrid.DenseWeight != 0.5 {
		t.Errorf("expected dense_weight 0.5, got %f", cfg.Hybrid.DenseWeight)
	}
	if cfg.Prune.Strategy != "ratio" || cfg.Prune.KeepRatio != 0.25 {
		t.Errorf("unexpected prune config: %+v", cfg.Prune)
	}
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("expected provider ollama, got %s", cfg.Embedding.Provider)
	}
	// untouched sections keep defaults
	if cfg.Prune.MinChunks != 1 {
		t.Errorf("expected default min_chunks 1, got %d", cfg.Prune.MinChunks)
	}
}

func TestLoad_HybridEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  retriever.Enablement
	}{
		{"true", retriever.EnableAlways},
		{"false", retriever.EnableNever},
		{"auto", retriever.EnableAuto},
		{`"auto"`, retriever.EnableAuto},
		{"yes", retriever.EnableAlways},
		{"sometimes", ""},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "ragcore.yaml")
			content := "hybrid:\n  enabled: " + tt.value + "\n"
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.want == "" {
				if err == nil {
					t.Fatalf("expected error for %s", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Hybrid.Enabled != tt.want {
				t.Errorf("got %s, want %s", cfg.Hybrid.Enabled, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"dense weight above one", func(c *Config) { c.Hybrid.DenseWeight = 1.5 }, "dense_weight"},
		{"dense weight negative", func(c *Config) { c.Hybrid.DenseWeight = -0.1 }, "dense_weight"},
		{"keep ratio zero", func(c *Config) { c.Prune.KeepRatio = 0 }, "keep_ratio"},
		{"min chunks zero", func(c *Config) { c.Prune.MinChunks = 0 }, "min_chunks"},
		{"unknown mode", func(c *Config) { c.Retrieve.Mode = "graph" }, "retrieve.mode"},
		{"unknown strategy", func(c *Config) { c.Prune.Strategy = "random" }, "prune.strategy"},
		{"unknown ngram mode", func(c *Config) { c.Hybrid.NgramMode = "byte" }, "ngram_mode"},
		{"unknown scorer", func(c *Config) { c.Prune.Scorer = "oracle" }, "prune.scorer"},
		{"unknown hybrid enablement", func(c *Config) { c.Hybrid.Enabled = "maybe" }, "hybrid.enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention %s", err, tt.field)
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()

	// No config file, should return defaults
	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Error("expected default config")
	}

	// Create .ragcore/config.yaml
	if err := os.MkdirAll(filepath.Join(dir, ".ragcore"), 0755); err != nil {
		t.Fatal(err)
	}
	content := "retrieve:\n  top_k: 30\n"
	if err := os.WriteFile(filepath.Join(dir, ".ragcore", "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err = LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieve.TopK != 30 {
		t.Errorf("expected top_k 30, got %d", cfg.Retrieve.TopK)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragcore.yaml")
	cfg := DefaultConfig()
	cfg.Hybrid.Enabled = retriever.EnableNever
	cfg.Prune.Threshold = 0.8

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Hybrid.Enabled != retriever.EnableNever {
		t.Errorf("expected hybrid off after round trip, got %s", loaded.Hybrid.Enabled)
	}
	if loaded.Prune.Threshold != 0.8 {
		t.Errorf("expected threshold 0.8, got %f", loaded.Prune.Threshold)
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}

	const key = "RAGCORE_TEST_LOADENV"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(dir); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv(key); got != "from-file" {
		t.Errorf("expected from-file, got %q", got)
	}
}

func TestStorePath(t *testing.T) {
	cfg := DefaultConfig()
	path := cfg.StorePath("/home/user/project")
	expected := "/home/user/project/.ragcore/vectors.db"
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}

	cfg.Store.Path = "/var/lib/ragcore.db"
	if got := cfg.StorePath("/home/user/project"); got != "/var/lib/ragcore.db" {
		t.Errorf("absolute path should be kept, got %s", got)
	}
}
