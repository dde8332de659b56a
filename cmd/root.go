// Package cmd defines and implements the CLI commands for the forum-archiver executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/forum-archiver/internal/app"
	"github.com/JakeFAU/forum-archiver/internal/config"
	"github.com/JakeFAU/forum-archiver/internal/logging"
	"github.com/JakeFAU/forum-archiver/internal/storage"
)

// These are variables so tests can replace the service factories.
var (
	newApp      = app.New
	newLogger   = logging.New
	newRegistry = storage.DefaultRegistry
)

type rootOptions struct {
	cfgFile string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "forum-archiver",
		Short: "Archives Facepunch forum threads post by post.",
		Long: `forum-archiver walks every page of one or more Facepunch threads,
solves the interstitial challenge when it appears, and exports each post
as a structured record to the selected sink.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(
		newArchiveCmd(opts),
		newMonitorCmd(opts),
		newInspectCmd(opts),
		newSinksCmd(),
	)
	return cmd
}

// addSinkFlags registers the flags shared by every command that opens a sink.
func addSinkFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("sink", "p", "", "sink short name (see 'sinks')")
	cmd.Flags().StringP("output", "o", "", "output directory for the json sink")
	cmd.Flags().String("database", "", "database path or DSN for the sqlite and postgres sinks")
}

// loadConfig resolves configuration with the command's flags taking precedence.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, error) {
	flags := cmd.Flags()
	cfg, err := config.Load(opts.cfgFile,
		config.Binding{Key: "sink.name", Flag: flags.Lookup("sink")},
		config.Binding{Key: "sink.output", Flag: flags.Lookup("output")},
		config.Binding{Key: "sink.database", Flag: flags.Lookup("database")},
	)
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openApp loads configuration and builds the logger and services for cmd.
// The returned cleanup closes the services and flushes the logger.
func openApp(cmd *cobra.Command, opts *rootOptions, readOnly bool) (*app.App, config.Config, func(), error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.Logging.Development)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	a, err := newApp(cmd.Context(), cfg, logger, app.Options{ReadOnly: readOnly, Registry: newRegistry()})
	if err != nil {
		_ = logging.Sync(logger)
		return nil, config.Config{}, nil, err
	}
	cleanup := func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("Failed to close services", zap.Error(cerr))
		}
		_ = logging.Sync(logger)
	}
	return a, cfg, cleanup, nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
