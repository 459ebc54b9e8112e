package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"ragcore/internal/adapter/uncertainty"
)

var (
	nuPrompt string
	nuSystem string
	nuJSON   bool
	nuTokens bool
)

var nuCmd = &cobra.Command{
	Use:   "nu",
	Short: "Measure normalized answer uncertainty for a prompt",
	Long: `Generate a short answer with token logprobs and report its normalized
uncertainty (NU): the mean per-token entropy of the top-K alternatives,
divided by log K. 0 means fully confident, 1 means uniformly unsure.

Reads the prompt from stdin when --prompt is "-".

Examples:
  ragcore nu -p "What is the capital of France?"
  echo "Summarize: ..." | ragcore nu -p - --json`,
	RunE: runNU,
}

func init() {
	rootCmd.AddCommand(nuCmd)
	nuCmd.Flags().StringVarP(&nuPrompt, "prompt", "p", "", "prompt text, or - for stdin (required)")
	nuCmd.Flags().StringVar(&nuSystem, "system", "", "system prompt")
	nuCmd.Flags().BoolVar(&nuJSON, "json", false, "output as JSON")
	nuCmd.Flags().BoolVar(&nuTokens, "tokens", false, "print per-token entropy")
	nuCmd.MarkFlagRequired("prompt")
}

func runNU(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	prompt := nuPrompt
	if prompt == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	client, err := newLLM(cfg)
	if err != nil {
		return err
	}
	scorer := uncertainty.NewScorer(client, GetLogger())

	opts := uncertaintyOptions(cfg)
	opts.SystemPrompt = nuSystem
	result, err := scorer.ComputeNU(cmd.Context(), prompt, opts)
	if err != nil {
		return fmt.Errorf("uncertainty failed: %w", err)
	}

	if nuJSON {
		if !nuTokens {
			result.PerTokenEntropy = nil
		}
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	level := color.New(color.FgGreen, color.Bold)
	switch {
	case result.NU >= 0.6:
		level = color.New(color.FgRed, color.Bold)
	case result.NU >= 0.3:
		level = color.New(color.FgYellow, color.Bold)
	}
	level.Printf("NU: %.4f\n", result.NU)
	fmt.Printf("  Tokens:      %d\n", result.TokenCount)
	fmt.Printf("  Avg entropy: %.4f nats\n", result.AvgEntropy)
	fmt.Printf("  Filtered:    %v\n", result.UsedFilteredSeq)
	fmt.Printf("  Answer:      %s\n", strings.TrimSpace(result.GeneratedText))
	if nuTokens {
		for i, h := range result.PerTokenEntropy {
			fmt.Printf("  [%d] %.4f\n", i, h)
		}
	}

	stats := client.GetStats()
	GetLogger().Debug("llm usage",
		"calls", stats.TotalCalls,
		"input_tokens", stats.TotalInputTokens,
		"output_tokens", stats.TotalOutputTokens)
	return nil
}
