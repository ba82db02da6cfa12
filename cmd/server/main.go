// Package main is the entry point for the GitHub explorer API.
//
// The main package stays thin: read configuration, build a logger, hand
// both to internal/server. All real logic lives in imported packages.
//
// COMMANDS:
//
//	github-explorer            same as "serve"
//	github-explorer serve      run the HTTP API
//	github-explorer migrate    apply database migrations and exit
//
// Every command accepts --config (default config/config.yml). Environment
// variables override the file; see internal/config.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/github-explorer/internal/config"
	"github.com/sakif/github-explorer/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}

	root := &cobra.Command{
		Use:           "github-explorer",
		Short:         "Cache and explore GitHub users through a REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	root.AddCommand(serve, &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, configPath)
		},
	})
	return root
}

// setup loads configuration and builds the process-wide logger. Errors are
// logged here so callers only need to return them.
func setup(configPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Log.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServe(configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}
	if cfg.GitHub.Token == "" {
		logger.Warn("GITHUB_TOKEN not set, GitHub allows 60 unauthenticated requests per hour")
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, logger, err := setup(configPath)
	if err != nil {
		return err
	}

	db, err := server.OpenDB(cfg.DB.Path)
	if err != nil {
		logger.Error("migration failed", slog.String("error", err.Error()))
		return err
	}
	defer db.Close()

	version, err := db.Version()
	if err != nil {
		logger.Error("reading schema version failed", slog.String("error", err.Error()))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema version %d\n", cfg.DB.Path, version)
	return nil
}
