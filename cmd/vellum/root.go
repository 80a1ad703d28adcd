package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvanholl/vellum/pkg/expansion"
	"github.com/mvanholl/vellum/pkg/registry"
	"github.com/mvanholl/vellum/pkg/vault"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	VaultDir   string
	LogLevel   string
	NoIndex    bool
}

// NewRootCommand creates the root command for the vellum CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "vellum",
		Short: "Dynamic template expansion for note vaults",
		Long: `Vellum expands dynamic-template references embedded in markdown notes.

A note marks a region with an opening marker naming a template script and
arguments, for example:

  %%{ template: 'greet.tmpl', name: 'Nate' }%%
  %%%%

Running "vellum expand" replaces each marked region's body with the script's
rendered output, leaving the markers intact for future re-expansion.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./vellum.json", "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.VaultDir, "vault", "", "vault root directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.NoIndex, "no-index", false, "run scripts without the document index")

	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewScriptsCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))

	return cmd
}

// app bundles the collaborators every command needs: config, logger, vault,
// optional document index, expansion engine, and the registry store.
type app struct {
	config   *Config
	logger   *slog.Logger
	vault    *vault.Vault
	index    vault.Index
	engine   *expansion.Engine
	db       *sql.DB
	registry *registry.Registry
}

// newApp loads configuration and wires the collaborators together.
func newApp(opts *RootOptions) (*app, error) {
	config, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.VaultDir != "" {
		config.App.VaultDir = opts.VaultDir
	}
	if opts.LogLevel != "" {
		config.App.LogLevel = opts.LogLevel
	}

	logger := newLogger(config.App.LogLevel)

	v, err := vault.New(config.App.VaultDir, logger)
	if err != nil {
		return nil, err
	}

	var index vault.Index
	if !opts.NoIndex {
		ix, err := vault.NewDocumentIndex(v, logger)
		if err != nil {
			// The index is an optional capability; scripts that don't use it
			// still work without one.
			logger.Warn("Document index unavailable", "error", err)
		} else {
			index = ix
		}
	}

	db, err := initDB(config.App.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = registry.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup registry schema: %w", err)
	}
	reg, err := registry.New(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	reg.SetLogger(logger)

	return &app{
		config:   config,
		logger:   logger,
		vault:    v,
		index:    index,
		engine:   expansion.NewEngine(logger, v, index, config.Engine),
		db:       db,
		registry: reg,
	}, nil
}

// close releases the registry statements and the database connection.
func (a *app) close() {
	a.registry.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
