// Package cli provides the command-line interface for applyflow.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmelchner/applyflow/internal/api"
	"github.com/jmelchner/applyflow/internal/config"
	"github.com/jmelchner/applyflow/internal/metrics"
	"github.com/jmelchner/applyflow/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global state shared by commands
	cfg       config.Config
	apiClient *api.Client
	logger    *slog.Logger
	collector = metrics.NewCollector()

	logCleanup func() error

	// Lazy-opened local cache
	cache *store.Store
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "applyflow",
	Short: "Terminal client for the ApplyFlow orchestrator",
	Long: `Applyflow is a terminal client for the ApplyFlow AI document backend.

Chat with the orchestrator to build resumes and cover letters, manage
conversation pages, download generated PDFs, and inspect your account,
all from the terminal.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, logCleanup = config.SetupLogger(cfg.LogFile, cfg.LogLevel)

		// A token stored via `applyflow auth login` backs up the
		// environment/config file.
		if cfg.Token == "" {
			if st, err := openCache(cmd.Context()); err == nil {
				if tok, err := st.GetSetting(cmd.Context(), store.SettingSessionToken); err == nil {
					cfg.Token = tok
				}
			}
		}

		apiClient = api.New(cfg.ServerURL, cfg.Token, api.WithCollector(collector))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cache != nil {
			if err := cache.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
			}
		}
		if logCleanup != nil {
			if err := logCleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// openCache opens the local cache database on first use.
func openCache(ctx context.Context) (*store.Store, error) {
	if cache != nil {
		return cache, nil
	}
	st, err := store.Open(ctx, cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	cache = st
	return cache, nil
}

// requireToken fails early for commands that cannot work anonymously.
func requireToken() error {
	if cfg.Token == "" {
		return errors.New("no token configured: set APPLYFLOW_TOKEN or run 'applyflow auth login'")
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(pagesCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(pdfCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(statsCmd)
}
