package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of an import run.
type RunStatus string

const (
	RunStatusPending RunStatus = "PENDING"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusAborted RunStatus = "ABORTED"
)

// IsTerminal reports whether the status is a final state. A terminal
// run is never picked up by the worker or the watchdog again.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusPartial, RunStatusSuccess, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// ImportRun tracks one execution attempt of a catalog import. A run is
// created PENDING, claimed RUNNING by the worker, advanced segment by
// segment, and closed with exactly one terminal status.
type ImportRun struct {
	ID             string     `json:"id"`
	IntegrationID  string     `json:"integration_id"`
	Status         RunStatus  `json:"status"`
	Cursor         string     `json:"cursor,omitempty"`
	ProcessedCount int        `json:"processed_count"`
	CreatedCount   int        `json:"created_count"`
	UpdatedCount   int        `json:"updated_count"`
	FailedCount    int        `json:"failed_count"`
	Errors         []string   `json:"errors,omitempty"`
	AbortRequested bool       `json:"abort_requested"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	LastProgressAt time.Time  `json:"last_progress_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RunProgress is the per-segment delta persisted after each batch.
type RunProgress struct {
	Cursor         string
	ProcessedDelta int
	CreatedDelta   int
	UpdatedDelta   int
	FailedDelta    int
}

// String returns the JSON representation of the run, used in logs.
func (r *ImportRun) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal import run: %v"}`, err)
	}
	return string(data)
}
