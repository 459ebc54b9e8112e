package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ragcore/internal/adapter/analyzer"
	"ragcore/internal/usecase"
)

var (
	packFlags  retrievalFlags
	packBudget int
	packOutput string
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack relevant context for LLM consumption",
	Long: `Retrieve, optionally prune, and pack chunks into a context that fits
within a token budget, with a citation for every snippet.

Examples:
  ragcore pack -q "how does authentication work"
  ragcore pack -q "database layer" --prune -b 2000 -o context.json`,
	RunE: runPack,
}

func init() {
	rootCmd.AddCommand(packCmd)
	packFlags.register(packCmd)
	packCmd.Flags().IntVarP(&packBudget, "budget", "b", 0, "token budget (default from config)")
	packCmd.Flags().StringVarP(&packOutput, "output", "o", "", "output file (default: stdout)")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	budget := cfg.Pack.TokenBudget
	if packBudget > 0 {
		budget = packBudget
	}

	r, err := packFlags.run(cmd.Context())
	if err != nil {
		return err
	}

	chunks := r.chunks()
	if len(chunks) == 0 {
		fmt.Fprintln(os.Stderr, "No relevant content found.")
		return nil
	}

	packUC := usecase.NewPackUseCase(analyzer.NewTokenizer(false))
	packed := packUC.Pack(packFlags.query, chunks, budget)

	output, err := json.MarshalIndent(packed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if packOutput != "" {
		if err := os.WriteFile(packOutput, output, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Context packed to: %s\n", packOutput)
		fmt.Printf("  Snippets: %d\n", len(packed.Snippets))
		fmt.Printf("  Tokens:   %d / %d\n", packed.UsedTokens, packed.BudgetTokens)
		if r.pruned != nil {
			fmt.Printf("  Pruned:   %d -> %d (%s)\n", r.pruned.Stats.OriginalCount, r.pruned.Stats.PrunedCount, r.pruned.Scorer)
		}
	} else {
		fmt.Println(string(output))
	}

	return nil
}
