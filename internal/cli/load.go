package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"ragcore/internal/usecase"
)

var (
	loadCollection string
	loadReset      bool
	loadClear      bool
	loadSync       bool
)

var loadCmd = &cobra.Command{
	Use:   "load <chunks.jsonl>...",
	Short: "Embed chunks and store them for retrieval",
	Long: `Load pre-chunked documents from JSON Lines files, one chunk per line:

  {"id": "...", "content": "...", "metadata": {"collection_id": "docs", "file_path": "a.md",
   "chunk_index": 0, "parent_chunk_id": "...", "section_heading": "Intro"}}

Chunks without an id get a stable id derived from their metadata, so
reloading a file replaces its chunks. The store lives at store.path
(default .ragcore/vectors.db) within the project directory.

Examples:
  ragcore load chunks.jsonl
  ragcore load --collection handbook --reset part1.jsonl part2.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().StringVarP(&loadCollection, "collection", "c", "default", "collection for chunks that name none")
	loadCmd.Flags().BoolVar(&loadSync, "sync", false, "delete stored chunks of each loaded file that the file no longer contains")
	loadCmd.Flags().BoolVar(&loadClear, "clear", false, "remove stored chunks before loading, keeping model and dimension")
	loadCmd.Flags().BoolVar(&loadReset, "reset", false, "delete the store, including its model and dimension, before loading")
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	log := GetLogger()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	// Reset drops the schema metadata too, so a new model or dimension can
	// take over the store.
	if loadReset {
		fmt.Println("Removing existing store...")
		if err := os.Remove(cfg.StorePath(rootDir)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove store: %w", err)
		}
	}

	st, err := openStore(cfg, embedder)
	if err != nil {
		return err
	}
	defer st.Close()

	if loadClear {
		fmt.Println("Clearing existing chunks...")
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear store: %w", err)
		}
	}

	loadUC := usecase.NewLoadUseCase(embedder, st, cfg.Embedding.BatchSize, log)
	fmt.Printf("Embedding config: provider=%s, model=%s\n", cfg.Embedding.Provider, embedder.ModelName())

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		chunks, err := usecase.ReadChunksJSONL(f, loadCollection)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if len(chunks) == 0 {
			fmt.Printf("%s: no chunks\n", path)
			continue
		}

		bar := newProgressBar(len(chunks), filepath.Base(path))
		start := time.Now()
		result, err := loadUC.Load(cmd.Context(), chunks, func(done, total int) {
			bar.Set(done)
			if elapsed := time.Since(start); done > 0 && done < total {
				rate := float64(done) / elapsed.Seconds()
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", filepath.Base(path), formatDuration(eta)))
			}
		})
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}

		removed := 0
		if loadSync {
			removed, err = loadUC.Sync(cmd.Context(), chunks)
			if err != nil {
				return fmt.Errorf("sync %s: %w", path, err)
			}
		}

		fmt.Printf("\n%s:\n", path)
		fmt.Printf("  Chunks loaded: %d\n", result.ChunksLoaded)
		if loadSync {
			fmt.Printf("  Stale removed: %d\n", removed)
		}
		fmt.Printf("  Batches:       %d\n", result.Batches)
		fmt.Printf("  Store total:   %d\n", result.TotalStored)
		fmt.Printf("  Took:          %s\n", formatDuration(result.Duration))
	}

	info, err := st.GetSchemaInfo()
	if err == nil && info != nil {
		fmt.Printf("\nStore: %s (model %s, %d dimensions)\n", cfg.StorePath(rootDir), orNone(info.Model), info.Dimension)
	}
	return nil
}

func newProgressBar(total int, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]"+name+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
