package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathmine/cmd/mathmine/ui"
	"mathmine/internal/config"
	"mathmine/internal/logging"
	"mathmine/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
	styles ui.Styles
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mathmine",
	Short: "Mine arXiv LaTeX sources for theorems with a single definitive answer",
	Long: `mathmine builds a dataset of theorem statements from arXiv papers.

It retrieves papers of a category, downloads their LaTeX sources, extracts
theorem environments and asks a language model which of them have a single
unique answer. The dataset lives in a local SQLite store and can be exported
as Parquet or JSONL, uploaded to S3-compatible storage, or served over HTTP.

The manifest commands lint and check the requirements file describing the
research toolchain.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Store.DatabasePath = dbPath
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Verbose: verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		styles = ui.DefaultStyles()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Dataset database (default from config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(theoremsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured dataset store.
func openStore() (*store.Store, error) {
	return store.Open(cfg.Store.DatabasePath, logging.For(logger, logging.CategoryStore))
}

// initCmd writes a default configuration file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Writes the effective configuration to --config so it can be edited.
API keys and S3 credentials are never written; they are read from the
environment or a .env file.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", configPath)
		return nil
	}
	out := *cfg
	out.LLM.APIKey = ""
	out.Export.S3.AccessKey = ""
	out.Export.S3.SecretKey = ""
	if err := out.Save(configPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", styles.Success.Render("✓"), configPath)
	return nil
}
