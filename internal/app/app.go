package app

import (
	"io"

	"autoshard/internal/config"
	"autoshard/internal/handlers"
	"autoshard/internal/journal"
	"autoshard/internal/output"
	"autoshard/internal/services"

	"go.uber.org/zap"
)

type Application struct {
	Config    *config.AppConfig
	Targets   []config.Target
	Fleet     *services.Fleet
	Journal   *journal.Store
	Scheduler *services.SchedulerService
	Logger    *zap.Logger
}

// NewApplication wires one reconciler per target into a fleet and, when
// enabled, opens the run journal. A journal that fails to open is logged and
// left nil. out receives the scheduler's printed output.
func NewApplication(cfg *config.AppConfig, manifest *config.Manifest, targets []config.Target, out io.Writer, logger *zap.Logger) *Application {
	if logger == nil {
		logger = zap.NewNop()
	}
	if manifest == nil {
		manifest = &config.Manifest{}
	}

	app := &Application{
		Config:  cfg,
		Targets: targets,
		Logger:  logger,
	}

	classifier := services.NewManifestClassifier(manifest.Sharded, manifest.ShardRelated)
	reconcilers := make([]*services.ConstraintReconciler, 0, len(targets))
	for _, t := range targets {
		schema := services.NewSchemaService(t.DB, t.Dialect, logger)
		reconcilers = append(reconcilers, services.NewConstraintReconciler(services.ReconcilerOptions{
			Database:     t.Name,
			Introspector: schema,
			Executor:     schema,
			Classifier:   classifier,
			Dialect:      t.Dialect,
			TargetTable:  cfg.Reconcile.TargetTable,
			Logger:       logger,
		}))
	}

	app.Fleet = services.NewFleet(reconcilers, cfg.Reconcile.Parallelism, func(w io.Writer) services.Reporter {
		return output.NewPrinter(w)
	}, logger)

	var recorder services.RunRecorder
	if cfg.Journal.Enabled {
		// runs go ahead unjournaled when the journal cannot be opened
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable, runs will not be recorded",
				zap.String("path", cfg.Journal.Path), zap.Error(err))
		} else {
			app.Journal = store
			recorder = store
		}
	}

	app.Scheduler = services.NewSchedulerService(
		app.Fleet,
		recorder,
		cfg.Reconcile.Schedule,
		cfg.Reconcile.ScheduledDryRun,
		out,
		logger,
	)

	return app
}

// Handler builds the HTTP API over the scheduler and journal.
func (app *Application) Handler() *handlers.Handler {
	var history handlers.History
	if app.Journal != nil {
		history = app.Journal
	}
	return handlers.NewHandler(app.Scheduler, history, app.Logger)
}

func (app *Application) Close() {
	if app.Scheduler != nil && app.Scheduler.IsRunning() {
		if err := app.Scheduler.Stop(); err != nil {
			app.Logger.Warn("failed to stop scheduler", zap.Error(err))
		}
	}

	if app.Journal != nil {
		if err := app.Journal.Close(); err != nil {
			app.Logger.Warn("failed to close journal", zap.Error(err))
		}
	}

	config.CloseTargets(app.Targets)
}
