package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"autoshard/internal/dialect"
	"autoshard/internal/models"

	"go.uber.org/zap"
)

// Introspector reads schema metadata.
type Introspector interface {
	ListTables(ctx context.Context) ([]string, error)
	GetConstraints(ctx context.Context, table string) (map[string]models.ConstraintDescriptor, error)
}

// Executor runs a DDL statement.
type Executor interface {
	Exec(ctx context.Context, stmt string) error
}

// SchemaSession is an Introspector and Executor bound to one connection.
type SchemaSession interface {
	Introspector
	Executor
	Close() error
}

// SessionSource is implemented by introspectors that can pin a connection for
// the length of a run.
type SessionSource interface {
	Session(ctx context.Context) (SchemaSession, error)
}

// Classifier tags a table with its sharding kind.
type Classifier interface {
	Classify(table string) models.TableKind
}

// Reporter receives progress of a reconciliation pass.
type Reporter interface {
	NoConstraints(table string)
	Listing(entry models.PlanEntry)
	Executing(entry models.PlanEntry)
	Done(entry models.PlanEntry)
	Failed(entry models.PlanEntry, err error)
	IntrospectionFailed(table string, err error)
}

// DefaultExclusions are the table kinds a reconciliation never visits.
func DefaultExclusions() models.KindSet {
	return models.NewKindSet(models.Sharded, models.ShardRelated)
}

type ReconcilerOptions struct {
	// Database names the database in reports and logs.
	Database     string
	Introspector Introspector
	Executor     Executor
	Classifier   Classifier
	Dialect      *dialect.Dialect
	TargetTable  string
	Reporter     Reporter
	Logger       *zap.Logger
}

// ConstraintReconciler removes foreign keys that point at the target table
// from every table that is not sharded.
type ConstraintReconciler struct {
	database     string
	introspector Introspector
	executor     Executor
	classifier   Classifier
	dialect      *dialect.Dialect
	target       string
	exclude      models.KindSet
	reporter     Reporter
	logger       *zap.Logger
}

func NewConstraintReconciler(opts ReconcilerOptions) *ConstraintReconciler {
	r := &ConstraintReconciler{
		database:     opts.Database,
		introspector: opts.Introspector,
		executor:     opts.Executor,
		classifier:   opts.Classifier,
		dialect:      opts.Dialect,
		target:       opts.TargetTable,
		exclude:      DefaultExclusions(),
		reporter:     opts.Reporter,
		logger:       opts.Logger,
	}
	if r.classifier == nil {
		r.classifier = plainClassifier{}
	}
	if r.reporter == nil {
		r.reporter = NopReporter{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("database", r.database))
	return r
}

func (r *ConstraintReconciler) Database() string { return r.database }

// WithReporter returns a copy of r that reports to rep.
func (r *ConstraintReconciler) WithReporter(rep Reporter) *ConstraintReconciler {
	cp := *r
	cp.reporter = rep
	return &cp
}

// ListCandidateTables returns every table whose kind is not in exclude,
// sorted by name. Constraints are not loaded yet.
func (r *ConstraintReconciler) ListCandidateTables(ctx context.Context, exclude models.KindSet) ([]models.TableDescriptor, error) {
	names, err := r.introspector.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	tables := make([]models.TableDescriptor, 0, len(names))
	for _, name := range names {
		kind := r.classifier.Classify(name)
		if exclude.Has(kind) {
			r.logger.Debug("skipping table", zap.String("table", name), zap.Stringer("kind", kind))
			continue
		}
		tables = append(tables, models.TableDescriptor{Name: name, Kind: kind})
	}
	return tables, nil
}

// Introspect loads the constraints of table.
func (r *ConstraintReconciler) Introspect(ctx context.Context, table *models.TableDescriptor) error {
	constraints, err := r.introspector.GetConstraints(ctx, table.Name)
	if err != nil {
		return &IntrospectionError{Table: table.Name, Err: err}
	}
	table.Constraints = constraints
	return nil
}

// FindForeignKeyConstraintsTo returns the foreign keys of table that
// reference target, sorted by constraint name.
func FindForeignKeyConstraintsTo(table models.TableDescriptor, target string) []models.ConstraintDescriptor {
	var matches []models.ConstraintDescriptor
	for name, c := range table.Constraints {
		if c.Name == "" {
			c.Name = name
		}
		if c.References(target) {
			matches = append(matches, c)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}

// BuildDropPlan renders one drop statement per constraint, in order.
func (r *ConstraintReconciler) BuildDropPlan(table models.TableDescriptor, constraints []models.ConstraintDescriptor) models.ReconciliationPlan {
	plan := make(models.ReconciliationPlan, 0, len(constraints))
	for _, c := range constraints {
		plan = append(plan, models.PlanEntry{
			Table:          table.Name,
			ConstraintName: c.Name,
			DropStatement:  r.dialect.DropForeignKeySQL(table.Name, c.Name),
		})
	}
	return plan
}

// Execute runs plan sequentially. A failed statement is recorded and the
// remaining statements still run. In dry-run mode nothing is executed.
func (r *ConstraintReconciler) Execute(ctx context.Context, plan models.ReconciliationPlan, dryRun bool) models.ExecutionReport {
	report := models.ExecutionReport{Database: r.database, DryRun: dryRun}

	for _, entry := range plan {
		if dryRun {
			r.reporter.Listing(entry)
			report.Entries = append(report.Entries, models.ReportEntry{PlanEntry: entry, Status: models.StatusPlanned})
			continue
		}

		r.reporter.Executing(entry)
		if err := r.executor.Exec(ctx, entry.DropStatement); err != nil {
			execErr := &ExecutionError{Table: entry.Table, Constraint: entry.ConstraintName, Statement: entry.DropStatement, Err: err}
			r.logger.Warn("drop statement failed", zap.String("statement", entry.DropStatement), zap.Error(execErr))
			r.reporter.Failed(entry, err)
			report.Entries = append(report.Entries, models.ReportEntry{PlanEntry: entry, Status: models.StatusFailed, Error: err.Error()})
			continue
		}

		r.logger.Info("dropped constraint", zap.String("table", entry.Table), zap.String("constraint", entry.ConstraintName))
		r.reporter.Done(entry)
		report.Entries = append(report.Entries, models.ReportEntry{PlanEntry: entry, Status: models.StatusSucceeded})
	}

	return report
}

// Run performs a full pass table by table. When the introspector is a
// SessionSource the whole pass runs on one connection, released on return.
// It only returns an error when no connection can be had, the table list
// cannot be read or ctx is done; every other failure is in the report.
func (r *ConstraintReconciler) Run(ctx context.Context, dryRun bool) (models.ExecutionReport, error) {
	report := models.ExecutionReport{
		Database:    r.database,
		DryRun:      dryRun,
		StartedAt:   time.Now(),
		Entries:     []models.ReportEntry{},
		EmptyTables: []string{},
	}

	if src, ok := r.introspector.(SessionSource); ok {
		session, err := src.Session(ctx)
		if err != nil {
			report.FinishedAt = time.Now()
			return report, fmt.Errorf("failed to open schema session: %w", err)
		}
		defer func() {
			if err := session.Close(); err != nil {
				r.logger.Warn("failed to release schema session", zap.Error(err))
			}
		}()

		bound := *r
		bound.introspector = session
		bound.executor = session
		return bound.run(ctx, report)
	}

	return r.run(ctx, report)
}

func (r *ConstraintReconciler) run(ctx context.Context, report models.ExecutionReport) (models.ExecutionReport, error) {
	dryRun := report.DryRun
	tables, err := r.ListCandidateTables(ctx, r.exclude)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, fmt.Errorf("failed to list tables: %w", err)
	}

	r.logger.Debug("reconciling", zap.Int("tables", len(tables)), zap.String("target", r.target), zap.Bool("dry_run", dryRun))

	for i := range tables {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now()
			return report, err
		}

		table := &tables[i]
		if err := r.Introspect(ctx, table); err != nil {
			r.logger.Warn("introspection failed", zap.String("table", table.Name), zap.Error(err))
			r.reporter.IntrospectionFailed(table.Name, err)
			report.IntrospectionFailures = append(report.IntrospectionFailures, models.TableFailure{Table: table.Name, Error: err.Error()})
			continue
		}

		matches := FindForeignKeyConstraintsTo(*table, r.target)
		if len(matches) == 0 {
			r.reporter.NoConstraints(table.Name)
			report.EmptyTables = append(report.EmptyTables, table.Name)
			continue
		}

		report.Merge(r.Execute(ctx, r.BuildDropPlan(*table, matches), dryRun))
	}

	report.FinishedAt = time.Now()
	return report, nil
}

type plainClassifier struct{}

func (plainClassifier) Classify(string) models.TableKind { return models.Plain }

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) NoConstraints(string)              {}
func (NopReporter) Listing(models.PlanEntry)          {}
func (NopReporter) Executing(models.PlanEntry)        {}
func (NopReporter) Done(models.PlanEntry)             {}
func (NopReporter) Failed(models.PlanEntry, error)    {}
func (NopReporter) IntrospectionFailed(string, error) {}
