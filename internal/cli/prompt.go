package cli

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"ragcore/internal/usecase"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var (
	promptReview bool
	promptCtx    string
	promptQuery  string
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render a generation prompt from packed context",
	Long: `Render a prompt from a context file written by 'ragcore pack -o'.

The default template asks an LLM to answer with numbered citations.
Use --review for a prompt that asks the LLM to judge each snippet.

Examples:
  ragcore prompt --ctx context.json
  ragcore prompt --ctx context.json -q "How does auth work?"
  ragcore prompt --ctx context.json --review`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().BoolVar(&promptReview, "review", false, "use the snippet review template")
	promptCmd.Flags().StringVar(&promptCtx, "ctx", "", "path to packed context JSON file (required)")
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "override the packed query")
	promptCmd.MarkFlagRequired("ctx")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctxData, err := os.ReadFile(promptCtx)
	if err != nil {
		return fmt.Errorf("failed to read context file: %w", err)
	}

	var packed usecase.PackedContext
	if err := json.Unmarshal(ctxData, &packed); err != nil {
		return fmt.Errorf("failed to parse context file: %w", err)
	}
	if promptQuery != "" {
		packed.Query = promptQuery
	}

	templateName := "templates/answer_prompt.txt"
	if promptReview {
		templateName = "templates/review_prompt.txt"
	}

	out, err := renderPrompt(templateName, packed)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// PromptData is passed to the embedded prompt templates.
type PromptData struct {
	Query    string
	Snippets []usecase.Snippet
}

func renderPrompt(templateName string, packed usecase.PackedContext) (string, error) {
	tmplContent, err := promptTemplates.ReadFile(templateName)
	if err != nil {
		return "", fmt.Errorf("template not found: %w", err)
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs()).Parse(string(tmplContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, PromptData{Query: packed.Query, Snippets: packed.Snippets}); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"formatSnippets": func(snippets []usecase.Snippet) string {
			var sb strings.Builder
			for i, s := range snippets {
				if s.Heading != "" {
					sb.WriteString(fmt.Sprintf("### [%d] %s - %s\n", i+1, s.Source, s.Heading))
				} else {
					sb.WriteString(fmt.Sprintf("### [%d] %s\n", i+1, s.Source))
				}
				sb.WriteString(fmt.Sprintf("Relevance: %s\n\n", s.Why))
				sb.WriteString(s.Text)
				sb.WriteString("\n\n")
			}
			return sb.String()
		},
	}
}
