package main

import (
	"autoshard/internal/output"
	"autoshard/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDropConstraintsCmd(opts *rootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "drop-constraints",
		Short: "Drop foreign keys to the user table from non-sharded tables",
		Long: `Visit every table that is neither sharded nor shard-related and drop each
foreign key that references the user table.

With --list the DROP statements are printed instead of executed.`,
		Example: `  # Print the statements that would run
  autoshard drop-constraints --list

  # Drop the constraints
  autoshard drop-constraints`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDropConstraints(cmd, opts, list)
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list the SQL statements without executing them")

	return cmd
}

func runDropConstraints(cmd *cobra.Command, opts *rootOptions, list bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	application, err := opts.newApplication(ctx, out)
	if err != nil {
		return err
	}
	defer application.Close()

	reports, err := application.Fleet.Reconcile(ctx, list, out)

	if application.Journal != nil {
		for _, report := range reports {
			if report.StartedAt.IsZero() {
				continue
			}
			if _, recErr := application.Journal.RecordRun(ctx, report); recErr != nil {
				opts.logger.Warn("failed to journal run", zap.String("database", report.Database), zap.Error(recErr))
			}
		}
	}

	// the summary goes to stderr, apart from the per-table output on stdout
	output.NewPrinter(cmd.ErrOrStderr()).Summary(reports)

	if err != nil {
		return err
	}
	if services.AnyFailed(reports) {
		return services.ErrReconcileFailed
	}
	return nil
}
