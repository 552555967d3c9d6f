package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"autoshard/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run reconciliation on a cron schedule and serve the control API",
		Long: `Start the cron scheduler (RECONCILE_SCHEDULE) and the HTTP API on SERVER_PORT.
Scheduled runs only list statements unless RECONCILE_SCHEDULED_DRY_RUN=false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSchedule(cmd.Context(), cmd, opts)
		},
	}
}

func runSchedule(ctx context.Context, cmd *cobra.Command, opts *rootOptions) error {
	cfg := config.Settings()
	logger := opts.logger

	application, err := opts.newApplication(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Scheduler.Start(); err != nil {
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: application.Handler().Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
