package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"ragcore/config"
	"ragcore/internal/logging"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ragcore",
	Short: "Retrieval core - hybrid retrieval, uncertainty scoring and context pruning",
	Long: `ragcore loads pre-chunked documents into a local vector store, retrieves
them with dense or hybrid (dense + hashed n-gram) ranking, optionally expands
results to parent and sibling chunks, and prunes the candidate set by LLM
answer uncertainty before packing it for generation.

Example usage:
  ragcore load chunks.jsonl               # Embed and store chunks
  ragcore query -q "authentication"       # Retrieve relevant chunks
  ragcore pack -q "how auth works" --prune # Prune and pack context for an LLM
  ragcore nu -p "What is 2+2?"            # Measure answer uncertainty`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := config.LoadEnv(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		levelName := cfg.Logging.Level
		if logLevel != "" {
			levelName = logLevel
		}
		level, err := logging.ParseLevel(levelName)
		if err != nil {
			return err
		}
		logger = logging.New(os.Stderr, level).With(
			slog.String("request_id", uuid.NewString()),
			slog.String("command", cmd.Name()),
		)
		slog.SetDefault(logger)

		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ragcore.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "project directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default from config)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

func GetLogger() *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
