package cli

import (
	"autoservice/internal/config"
	"autoservice/internal/log"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg *config.Config

	flagEnvFile string // value of --env-file flag
	flagVerbose bool   // value of --verbose flag
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("autoservice failed", "error", err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autoservice",
		Short: "Run maintenance and diagnostic services and estimate how long they take",
		Long: `autoservice runs a queue of maintenance and diagnostic tools one at a time,
streams their progress and learns from past runs how long each tool takes on
machines like this one.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initAutoservice,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newCatalogCmd(),
		newPredictCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func initAutoservice(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(flagEnvFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	cfg = loaded

	// --verbose has a precedence over LOG_LEVEL
	level := log.ParseLevel(cfg.LogLevel)
	if flagVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(os.Stderr, level))
	return nil
}
