package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"autoshard/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunRecorder persists finished reports.
type RunRecorder interface {
	RecordRun(ctx context.Context, report models.ExecutionReport) (string, error)
}

const timeLayout = "2006-01-02 15:04:05"

// SchedulerService runs the fleet on a cron schedule.
type SchedulerService struct {
	fleet    *Fleet
	recorder RunRecorder
	out      io.Writer
	logger   *zap.Logger

	mutex        sync.RWMutex
	cron         *cron.Cron
	entryID      cron.EntryID
	cronSchedule string
	dryRun       bool
	isRunning    bool
	runCtx       context.Context
	cancel       context.CancelFunc
	lastRunTime  time.Time
	nextRunTime  time.Time
	lastReports  map[string]models.ExecutionReport
	lastError    string

	runMu sync.Mutex
	wg    sync.WaitGroup
}

// NewSchedulerService creates a scheduler. recorder and out may be nil.
func NewSchedulerService(fleet *Fleet, recorder RunRecorder, cronSchedule string, dryRun bool, out io.Writer, logger *zap.Logger) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &SchedulerService{
		fleet:        fleet,
		recorder:     recorder,
		out:          out,
		logger:       logger,
		cronSchedule: cronSchedule,
		dryRun:       dryRun,
		lastReports:  make(map[string]models.ExecutionReport),
	}
}

// Start schedules the fleet and runs it once right away.
func (s *SchedulerService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()
	entryID, err := c.AddFunc(s.cronSchedule, func() { s.runScheduled(ctx) })
	if err != nil {
		cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	c.Start()
	s.cron = c
	s.entryID = entryID
	s.runCtx = ctx
	s.cancel = cancel
	s.isRunning = true
	s.refreshNextRunLocked()

	s.logger.Info("scheduler started",
		zap.String("schedule", s.cronSchedule),
		zap.Bool("dry_run", s.dryRun),
		zap.String("next_run", s.nextRunTime.Format(timeLayout)))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("running initial reconciliation")
		s.runScheduled(ctx)
	}()

	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (s *SchedulerService) Stop() error {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	c := s.cron
	cancel := s.cancel
	s.isRunning = false
	s.nextRunTime = time.Time{}
	s.mutex.Unlock()

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()

	s.logger.Info("scheduler stopped")
	return nil
}

func (s *SchedulerService) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRunning
}

func (s *SchedulerService) runScheduled(ctx context.Context) {
	s.mutex.RLock()
	dryRun := s.dryRun
	s.mutex.RUnlock()

	if _, err := s.execute(ctx, dryRun); err != nil {
		s.logger.Warn("scheduled reconciliation finished with errors", zap.Error(err))
	}
}

// TriggerRun runs the fleet immediately, independent of the schedule.
func (s *SchedulerService) TriggerRun(ctx context.Context, dryRun bool) ([]models.ExecutionReport, error) {
	s.logger.Info("manual reconciliation triggered", zap.Bool("dry_run", dryRun))
	return s.execute(ctx, dryRun)
}

func (s *SchedulerService) execute(ctx context.Context, dryRun bool) ([]models.ExecutionReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mutex.Lock()
	s.lastRunTime = time.Now()
	s.mutex.Unlock()

	reports, err := s.fleet.Reconcile(ctx, dryRun, s.out)

	s.mutex.Lock()
	for _, report := range reports {
		if report.Database != "" {
			s.lastReports[report.Database] = report
		}
	}
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	} else if AnyFailed(reports) {
		s.lastError = ErrReconcileFailed.Error()
	}
	s.refreshNextRunLocked()
	s.mutex.Unlock()

	if s.recorder != nil {
		for _, report := range reports {
			if report.StartedAt.IsZero() {
				continue
			}
			if _, recErr := s.recorder.RecordRun(context.WithoutCancel(ctx), report); recErr != nil {
				s.logger.Warn("failed to journal run", zap.String("database", report.Database), zap.Error(recErr))
			}
		}
	}

	return reports, err
}

func (s *SchedulerService) refreshNextRunLocked() {
	if s.cron == nil || !s.isRunning {
		return
	}
	if entry := s.cron.Entry(s.entryID); entry.Valid() {
		s.nextRunTime = entry.Next
	}
}

func (s *SchedulerService) GetStatus() models.SchedulerStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var lastRun, nextRun string
	if !s.lastRunTime.IsZero() {
		lastRun = s.lastRunTime.Format(timeLayout)
	}
	if !s.nextRunTime.IsZero() {
		nextRun = s.nextRunTime.Format(timeLayout)
	}

	databases := make(map[string]models.ReportSummary, len(s.lastReports))
	for name, report := range s.lastReports {
		databases[name] = report.Summary()
	}

	return models.SchedulerStatus{
		IsRunning:    s.isRunning,
		CronSchedule: s.cronSchedule,
		DryRun:       s.dryRun,
		LastRun:      lastRun,
		NextRun:      nextRun,
		LastError:    s.lastError,
		Databases:    databases,
	}
}

// UpdateConfig changes the schedule and dry-run mode. A running scheduler is
// rescheduled in place.
func (s *SchedulerService) UpdateConfig(cronSchedule string, dryRun *bool) error {
	if cronSchedule != "" {
		if _, err := cron.ParseStandard(cronSchedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cronSchedule, err)
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if cronSchedule != "" && cronSchedule != s.cronSchedule {
		if s.isRunning {
			// Stop cancels runCtx, so the new entry stays covered.
			ctx := s.runCtx
			entryID, err := s.cron.AddFunc(cronSchedule, func() { s.runScheduled(ctx) })
			if err != nil {
				return fmt.Errorf("failed to reschedule: %w", err)
			}
			s.cron.Remove(s.entryID)
			s.entryID = entryID
		}
		s.cronSchedule = cronSchedule
		s.refreshNextRunLocked()
	}

	if dryRun != nil {
		s.dryRun = *dryRun
	}

	s.logger.Info("scheduler configuration updated",
		zap.String("schedule", s.cronSchedule), zap.Bool("dry_run", s.dryRun))
	return nil
}
