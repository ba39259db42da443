package store

import "time"

// #region run-record
// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID          string
	SchemaVersion  string
	MeasureVersion string
	ConfigHash     string
	MacroValue     *float64
	Status         string // "ok" | "failed"
	Violations     int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunMeta is what the caller knows about a run beyond the run itself.
type RunMeta struct {
	SchemaVersion  string
	MeasureVersion string
	ConfigHash     string
	Failed         bool
}

// #endregion run-record

// #region event
// Event is a single row in the provenance_log table.
type Event struct {
	RunID     string
	Kind      string // "run" | "replay" | "baseline" | "calibrate"
	Detail    string
	CreatedAt time.Time
}

// #endregion event
