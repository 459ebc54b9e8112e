package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"ragcore/internal/domain"
	"ragcore/internal/usecase"
)

// retrievalFlags are shared by query and pack.
type retrievalFlags struct {
	query          string
	mode           string
	topK           int
	hybrid         string
	prune          bool
	expandParent   bool
	expandSiblings bool
	collections    []string
	repo           string
	paths          []string
	timeout        time.Duration
}

func (f *retrievalFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "search query (required)")
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "retrieval mode: naive, local or hybrid (default from config)")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringVar(&f.hybrid, "hybrid", "", "hybrid rerank: true, false or auto (default from config)")
	cmd.Flags().BoolVar(&f.prune, "prune", false, "prune results by relevance before output")
	cmd.Flags().BoolVar(&f.expandParent, "expand-parent", false, "append parent chunks of each result")
	cmd.Flags().BoolVar(&f.expandSiblings, "expand-siblings", false, "append sibling chunks of each result")
	cmd.Flags().StringSliceVar(&f.collections, "collection", nil, "restrict to collection IDs")
	cmd.Flags().StringVar(&f.repo, "repo", "", "restrict to a repository ID")
	cmd.Flags().StringSliceVar(&f.paths, "path", nil, "restrict to file path globs (doublestar syntax)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "overall deadline, e.g. 30s (0 disables)")
	cmd.MarkFlagRequired("query")
}

// retrieval is the outcome of retrieve plus optional pruning.
type retrieval struct {
	result usecase.RetrieveResult
	pruned *usecase.PruneResult
}

func (r retrieval) chunks() []domain.ScoredChunk {
	if r.pruned != nil {
		return r.pruned.Chunks
	}
	return r.result.Chunks
}

func (f *retrievalFlags) run(ctx context.Context) (retrieval, error) {
	cfg := GetConfig()
	log := GetLogger()

	modeName := cfg.Retrieve.Mode
	if f.mode != "" {
		modeName = f.mode
	}
	mode, err := usecase.ParseMode(modeName)
	if err != nil {
		return retrieval{}, err
	}

	topK := cfg.Retrieve.TopK
	if f.topK > 0 {
		topK = f.topK
	}

	filter := domain.Filter{CollectionIDs: f.collections, RepoID: f.repo, PathGlobs: f.paths}
	if err := filter.Validate(); err != nil {
		return retrieval{}, err
	}

	opts, err := retrieveOptions(cfg, f.hybrid)
	if err != nil {
		return retrieval{}, err
	}
	opts.ExpandToParent = opts.ExpandToParent || f.expandParent
	opts.ExpandToSiblings = opts.ExpandToSiblings || f.expandSiblings

	var deadline domain.DeadlineCheck
	if f.timeout > 0 {
		deadline = usecase.DeadlineAt(time.Now().Add(f.timeout))
		opts.Deadline = deadline
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return retrieval{}, err
	}

	dbPath := cfg.StorePath(rootDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return retrieval{}, fmt.Errorf("no store found at %s. Run 'ragcore load' first", dbPath)
	}
	st, err := openStore(cfg, embedder)
	if err != nil {
		return retrieval{}, err
	}
	defer st.Close()

	orchestrator := newOrchestrator(cfg, embedder, st, log)
	result, err := orchestrator.Retrieve(ctx, f.query, mode, topK, filter, opts)
	if err != nil {
		return retrieval{}, fmt.Errorf("retrieval failed: %w", err)
	}
	out := retrieval{result: result}

	if !f.prune && !cfg.Prune.Enabled {
		return out, nil
	}

	pruneOpts, err := pruneOptions(cfg)
	if err != nil {
		return retrieval{}, err
	}
	pruneOpts.Enabled = true
	pruneOpts.Deadline = deadline

	pruneUC, err := newPruneUseCase(cfg, log)
	if err != nil {
		return retrieval{}, err
	}
	pruned, err := pruneUC.PruneForGeneration(ctx, f.query, result.Chunks, pruneOpts)
	if err != nil {
		return retrieval{}, fmt.Errorf("pruning failed: %w", err)
	}
	out.pruned = &pruned
	return out, nil
}

var (
	queryFlags retrievalFlags
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve chunks for a query",
	Long: `Retrieve relevant chunks with dense (naive) or hybrid ranking, optionally
expanded to parent and sibling chunks and pruned by relevance.

Examples:
  ragcore query -q "authentication handler"
  ragcore query -q "database connection" --mode naive --top-k 5 --json
  ragcore query -q "retry policy" --expand-parent --prune`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryFlags.register(queryCmd)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

type queryOutput struct {
	usecase.RetrieveResult
	Prune *usecase.PruneResult `json:"prune,omitempty"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	r, err := queryFlags.run(cmd.Context())
	if err != nil {
		return err
	}

	if queryJSON {
		output, err := json.MarshalIndent(queryOutput{RetrieveResult: r.result, Prune: r.pruned}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	chunks := r.chunks()
	if len(chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Printf("Found %d results for: %s", len(chunks), queryFlags.query)
	fmt.Printf(" (mode %s, rerank %v", r.result.Mode, r.result.RerankApplied)
	if r.pruned != nil {
		fmt.Printf(", pruned %d -> %d by %s", r.pruned.Stats.OriginalCount, r.pruned.Stats.PrunedCount, r.pruned.Scorer)
	}
	fmt.Print(")\n\n")

	for i, c := range chunks {
		md := c.Chunk.Metadata
		location := md.FilePath
		if location == "" {
			location = md.CollectionID
		}
		color.New(color.FgYellow).Printf("--- [%d] %s#%d (score: %.3f", i+1, location, md.ChunkIndex, c.Score)
		if c.SparseScore != 0 {
			color.New(color.FgYellow).Printf(", dense %.3f, sparse %.3f", c.DenseScore, c.SparseScore)
		}
		color.New(color.FgYellow).Println(") ---")
		if md.SectionHeading != "" {
			fmt.Printf("## %s\n", md.SectionHeading)
		}
		fmt.Println(strings.TrimSpace(truncateRunes(c.Chunk.Content, 500)))
		fmt.Println()
	}

	return nil
}

// truncateRunes shortens text to at most n runes, marking the cut with "...".
func truncateRunes(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
