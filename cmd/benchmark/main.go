package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"ragcore/internal/adapter/embedding"
	"ragcore/internal/adapter/memstore"
	"ragcore/internal/adapter/retriever"
	"ragcore/internal/domain"
	"ragcore/internal/eval"
	"ragcore/internal/logging"
	"ragcore/internal/usecase"
)

// benchCase is one labelled query.
type benchCase struct {
	Query    string   `yaml:"query"`
	Relevant []string `yaml:"relevant"`
}

type benchFile struct {
	Cases []benchCase `yaml:"cases"`
}

type modeScore struct {
	precision, recall, mrr, ndcg float64
}

func main() {
	corpusPath := flag.String("corpus", "", "chunks JSONL file")
	casesPath := flag.String("cases", "", "YAML file with cases: [{query, relevant: [chunk ids]}]")
	topK := flag.Int("k", 5, "Number of results")
	dim := flag.Int("dim", 256, "Mock embedding dimension")
	weight := flag.Float64("dense-weight", retriever.DefaultDenseWeight, "Hybrid dense weight")
	verbose := flag.Bool("v", false, "Print per-query results")
	flag.Parse()

	if *corpusPath == "" || *casesPath == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -corpus chunks.jsonl -cases cases.yaml [-k 5]")
		fmt.Println("\nReports per retrieval mode:")
		fmt.Println("  P@k, R@k, MRR and nDCG@k against labelled relevant chunk ids")
		os.Exit(1)
	}

	ctx := context.Background()
	log := logging.New(os.Stderr, logLevel(*verbose))

	f, err := os.Open(*corpusPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening corpus: %v\n", err)
		os.Exit(1)
	}
	chunks, err := usecase.ReadChunksJSONL(f, "bench")
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading corpus: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(*casesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading cases: %v\n", err)
		os.Exit(1)
	}
	var bench benchFile
	if err := yaml.Unmarshal(data, &bench); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing cases: %v\n", err)
		os.Exit(1)
	}
	if len(bench.Cases) == 0 {
		fmt.Fprintln(os.Stderr, "No cases found")
		os.Exit(1)
	}

	embedder := embedding.NewMockEmbedder(*dim)
	st := memstore.NewMemoryStore(embedder.Dimension())
	if _, err := usecase.NewLoadUseCase(embedder, st, 100, log).Load(ctx, chunks, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading corpus: %v\n", err)
		os.Exit(1)
	}
	orchestrator := usecase.NewOrchestrator(embedder, st, nil, 0, log)

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Chunks: %d  Cases: %d  k: %d  Embedder: %s (%d dims)\n\n",
		len(chunks), len(bench.Cases), *topK, embedder.ModelName(), embedder.Dimension())

	fmt.Printf("%-8s %8s %8s %8s %8s\n", "mode", "P@k", "R@k", "MRR", "nDCG@k")
	fmt.Println(strings.Repeat("-", 70))

	for _, mode := range usecase.Modes() {
		opts := usecase.DefaultRetrieveOptions()
		opts.Hybrid.DenseWeight = *weight
		if mode == usecase.ModeHybrid {
			opts.Hybrid.Enabled = retriever.EnableAlways
		}

		var total modeScore
		for _, c := range bench.Cases {
			res, err := orchestrator.Retrieve(ctx, c.Query, mode, *topK, domain.Filter{}, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error in %s for %q: %v\n", mode, c.Query, err)
				os.Exit(1)
			}
			ids := domain.ChunkIDs(res.Chunks)
			gains, ideal := eval.BinaryGains(ids, c.Relevant)

			total.precision += eval.PrecisionAtK(ids, c.Relevant)
			total.recall += eval.RecallAtK(ids, c.Relevant)
			total.mrr += eval.ReciprocalRank(ids, c.Relevant)
			total.ndcg += eval.NDCG(gains, ideal)

			if *verbose {
				fmt.Printf("  %-6s %q -> %s\n", mode, c.Query, strings.Join(ids, ", "))
			}
		}

		n := float64(len(bench.Cases))
		fmt.Printf("%-8s %8.3f %8.3f %8.3f %8.3f\n", mode,
			total.precision/n, total.recall/n, total.mrr/n, total.ndcg/n)
	}
	fmt.Println(strings.Repeat("=", 70))
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}
