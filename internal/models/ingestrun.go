package models

import "time"

// IngestStatus is the terminal (or in-flight) state of an IngestRun.
type IngestStatus string

const (
	IngestRunning IngestStatus = "RUNNING"
	IngestOK      IngestStatus = "OK"
	IngestPartial IngestStatus = "PARTIAL"
	IngestFailed  IngestStatus = "FAILED"
)

// IngestCounts tallies how many items of each kind a run ingested.
type IngestCounts struct {
	News      int `json:"news"`
	Gov       int `json:"gov"`
	FactCheck int `json:"factcheck"`
	Social    int `json:"social"`
}

// IngestRun is one execution of the ingestion orchestrator (C6).
type IngestRun struct {
	RunID       string       `json:"run_id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	TriggeredBy string       `json:"triggered_by"`
	Forced      bool         `json:"forced"`
	Status      IngestStatus `json:"status"`
	Counts      IngestCounts `json:"counts"`
	Errors      []string     `json:"errors,omitempty"`
}
