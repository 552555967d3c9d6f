package models

import "time"

// RunRecord is a journaled reconciliation pass.
type RunRecord struct {
	ID                    string        `json:"id"`
	Database              string        `json:"database"`
	DryRun                bool          `json:"dry_run"`
	StartedAt             time.Time     `json:"started_at"`
	FinishedAt            time.Time     `json:"finished_at"`
	Planned               int           `json:"planned"`
	Dropped               int           `json:"dropped"`
	Failed                int           `json:"failed"`
	EmptyTables           int           `json:"empty_tables"`
	IntrospectionFailures int           `json:"introspection_failures"`
	Entries               []ReportEntry `json:"entries,omitempty"`
}

type SchedulerStatus struct {
	IsRunning    bool                     `json:"isRunning"`
	CronSchedule string                   `json:"cronSchedule"`
	DryRun       bool                     `json:"dryRun"`
	LastRun      string                   `json:"lastRun"`
	NextRun      string                   `json:"nextRun"`
	LastError    string                   `json:"lastError,omitempty"`
	Databases    map[string]ReportSummary `json:"databases"`
}
