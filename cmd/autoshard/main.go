// Package main provides the autoshard CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"autoshard/internal/app"
	"autoshard/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rootOptions carries the persistent flags and what PersistentPreRunE builds from them.
type rootOptions struct {
	envFile      string
	manifestPath string
	verbose      bool

	manifest *config.Manifest
	logger   *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "autoshard",
		Short: "Keep non-sharded tables free of foreign keys to the user table",
		Long: `autoshard removes foreign key constraints that reference the user table from
every table that is not sharded, so the user table can live on shard databases.

Configuration comes from the environment (and --env-file). Which tables are
sharded comes from the manifest (--manifest, AUTOSHARD_MANIFEST_* and the
--sharded/--shard-related flags).`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			return opts.init(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "env file to load settings from")
	flags.StringVar(&opts.manifestPath, "manifest", config.DefaultManifestFile, "YAML manifest listing sharded tables")
	flags.StringSlice("sharded", nil, "additional sharded tables")
	flags.StringSlice("shard-related", nil, "additional shard-related tables")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newDropConstraintsCmd(opts))
	rootCmd.AddCommand(newScheduleCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))

	return rootCmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return err
	}
	if err := config.Init(cfg); err != nil && !errors.Is(err, config.ErrAlreadyInitialized) {
		return err
	}

	o.logger, err = newLogger(cfg.Log.Level, o.verbose)
	if err != nil {
		return err
	}

	o.manifest, err = config.LoadManifest(o.manifestPath, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	o.logger.Debug("manifest loaded",
		zap.Strings("sharded", o.manifest.Sharded),
		zap.Strings("shard_related", o.manifest.ShardRelated))
	return nil
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// newApplication connects to every configured database and wires the
// reconcilers. The caller must Close the result.
func (o *rootOptions) newApplication(ctx context.Context, out io.Writer) (*app.Application, error) {
	cfg := config.Settings()

	targets, err := config.InitDatabases(ctx, cfg, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	return app.NewApplication(cfg, o.manifest, targets, out, o.logger), nil
}
