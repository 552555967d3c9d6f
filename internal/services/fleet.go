package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"autoshard/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fleet reconciles several databases. Databases run in parallel; work inside
// one database stays sequential.
type Fleet struct {
	reconcilers []*ConstraintReconciler
	parallelism int
	newReporter func(w io.Writer) Reporter
	logger      *zap.Logger
}

func NewFleet(reconcilers []*ConstraintReconciler, parallelism int, newReporter func(w io.Writer) Reporter, logger *zap.Logger) *Fleet {
	if parallelism < 1 {
		parallelism = 1
	}
	if newReporter == nil {
		newReporter = func(io.Writer) Reporter { return NopReporter{} }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fleet{
		reconcilers: reconcilers,
		parallelism: parallelism,
		newReporter: newReporter,
		logger:      logger,
	}
}

func (f *Fleet) Databases() []string {
	names := make([]string, 0, len(f.reconcilers))
	for _, r := range f.reconcilers {
		names = append(names, r.Database())
	}
	return names
}

// Reconcile runs every database and writes their output to out in
// configuration order. Reports come back in the same order. One database
// failing does not stop the others. Output is buffered per database only when
// databases actually run concurrently; otherwise it streams to out.
func (f *Fleet) Reconcile(ctx context.Context, dryRun bool, out io.Writer) ([]models.ExecutionReport, error) {
	n := len(f.reconcilers)
	reports := make([]models.ExecutionReport, n)
	errs := make([]error, n)
	bufs := make([]bytes.Buffer, n)
	if out == nil {
		out = io.Discard
	}
	// SetLimit(1) starts members one after another in order
	stream := n == 1 || f.parallelism == 1

	var g errgroup.Group
	g.SetLimit(f.parallelism)

	for i, r := range f.reconcilers {
		g.Go(func() error {
			var w io.Writer = &bufs[i]
			if stream {
				w = out
			}
			rep := f.newReporter(w)
			if h, ok := rep.(interface{ Heading(string) }); ok && n > 1 {
				h.Heading(fmt.Sprintf("Database %s", r.Database()))
			}

			report, err := r.WithReporter(rep).Run(ctx, dryRun)
			reports[i] = report
			if err != nil {
				f.logger.Error("reconciliation aborted", zap.String("database", r.Database()), zap.Error(err))
				errs[i] = fmt.Errorf("database %s: %w", r.Database(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !stream {
		for i := range bufs {
			if _, err := bufs[i].WriteTo(out); err != nil {
				return reports, fmt.Errorf("failed to write output: %w", err)
			}
		}
	}

	return reports, errors.Join(errs...)
}

// AnyFailed reports whether any report has failures.
func AnyFailed(reports []models.ExecutionReport) bool {
	for i := range reports {
		if reports[i].Failed() {
			return true
		}
	}
	return false
}
