package main

import (
	"fmt"
	"time"

	"autoshard/internal/config"
	"autoshard/internal/journal"
	"autoshard/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit     int
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journaled reconciliation runs",
		Example: `  # Last 20 runs
  autoshard history

  # Delete runs older than 30 days
  autoshard history --prune 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Settings()
			if !cfg.Journal.Enabled {
				return fmt.Errorf("journal is disabled (JOURNAL_ENABLED=false)")
			}

			store, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if olderThan > 0 {
				n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d runs.\n", n)
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().DurationVar(&olderThan, "prune", 0, "delete runs older than this instead of listing")

	return cmd
}

func renderHistory(cmd *cobra.Command, runs []models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Database", "Mode", "Started", "Duration", "Listed", "Dropped", "Failed", "Empty", "Unreadable"})

	for _, r := range runs {
		mode := "execute"
		if r.DryRun {
			mode = "list"
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		t.AppendRow(table.Row{
			id,
			r.Database,
			mode,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Planned,
			r.Dropped,
			r.Failed,
			r.EmptyTables,
			r.IntrospectionFailures,
		})
	}

	t.Render()
}
