package models

import "time"

type EntryStatus string

const (
	StatusPlanned   EntryStatus = "planned"
	StatusSucceeded EntryStatus = "succeeded"
	StatusFailed    EntryStatus = "failed"
)

type ReportEntry struct {
	PlanEntry
	Status EntryStatus `json:"status"`
	Error  string      `json:"error,omitempty"`
}

// TableFailure records a table whose constraints could not be read.
type TableFailure struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

// ExecutionReport is the outcome of one reconciliation pass over a database.
type ExecutionReport struct {
	Database              string         `json:"database"`
	DryRun                bool           `json:"dry_run"`
	StartedAt             time.Time      `json:"started_at"`
	FinishedAt            time.Time      `json:"finished_at"`
	Entries               []ReportEntry  `json:"entries"`
	EmptyTables           []string       `json:"empty_tables"`
	IntrospectionFailures []TableFailure `json:"introspection_failures,omitempty"`
}

type ReportSummary struct {
	Planned               int `json:"planned"`
	Succeeded             int `json:"succeeded"`
	Failed                int `json:"failed"`
	EmptyTables           int `json:"empty_tables"`
	IntrospectionFailures int `json:"introspection_failures"`
}

func (r *ExecutionReport) Summary() ReportSummary {
	s := ReportSummary{
		EmptyTables:           len(r.EmptyTables),
		IntrospectionFailures: len(r.IntrospectionFailures),
	}
	for _, e := range r.Entries {
		switch e.Status {
		case StatusPlanned:
			s.Planned++
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Failed reports whether any statement or table introspection failed.
func (r *ExecutionReport) Failed() bool {
	s := r.Summary()
	return s.Failed > 0 || s.IntrospectionFailures > 0
}

// Merge appends the entries and notices of other into r.
func (r *ExecutionReport) Merge(other ExecutionReport) {
	r.Entries = append(r.Entries, other.Entries...)
	r.EmptyTables = append(r.EmptyTables, other.EmptyTables...)
	r.IntrospectionFailures = append(r.IntrospectionFailures, other.IntrospectionFailures...)
}
