// Package main implements the her CLI: a thin cobra wrapper over
// internal/pipeline for running steps against a driven page, inspecting
// the promotion store and metrics, and resetting learned selectors.
//
// File index:
//   - main.go    - entry point, rootCmd, global flags, shared setup
//   - run.go     - runCmd: drives a browser session through a step script
//   - inspect.go - inspectCmd: promotions/metrics subcommands
//   - promote.go - promoteCmd: reset subcommand
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/her-retrieval/her/internal/config"
	"github.com/her-retrieval/her/internal/logging"
	"github.com/her-retrieval/her/internal/store"
)

var (
	verbose    bool
	configPath string
	cacheDir   string

	logger *zap.Logger
)

// rootCmd is the her CLI entry point.
var rootCmd = &cobra.Command{
	Use:   "her",
	Short: "her - deterministic element retrieval for browser automation",
	Long: `her resolves natural-language steps (e.g. click "Login") into
xpath selectors against a live page, using a deterministic matcher and an
optional hybrid semantic retriever, and remembers what worked.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a her.yaml config file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Override the configured cache directory")

	rootCmd.AddCommand(runCmd, inspectCmd, promoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves configPath/cacheDir against config.Load, initialising
// the category file logger against the resolved cache directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cacheDir != "" {
		cfg.CacheDir = cacheDir
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", cfg.CacheDir, err)
	}

	logCfg := logging.Config{DebugMode: cfg.Logging.DebugMode || verbose, Categories: cfg.Logging.Categories, Level: cfg.Logging.Level}
	if err := logging.Initialize(cfg.CacheDir, logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
	}
	return cfg, nil
}

// openStore opens the promotion/embedding-cache SQLite database under
// cfg.CacheDir.
func openStore(cfg *config.Config) (*store.Store, error) {
	dbPath := filepath.Join(cfg.CacheDir, "her.db")
	return store.Open(dbPath, cfg.Store.CacheSizeMB, cfg.Store.RequireVec)
}
