package models

import "time"

// CycleResult summarizes one repeat of the test matrix. Immutable once created.
type CycleResult struct {
	CycleNumber       int               `json:"cycle_number"`
	TotalCycles       int               `json:"total_cycles"`
	Passed            bool              `json:"passed"`
	Measurements      *TestMeasurements `json:"measurements"`
	ExecutionDuration time.Duration     `json:"execution_duration"`
	CompletedAt       time.Time         `json:"completed_at"`
	Notes             string            `json:"notes,omitempty"`
}

// CycleRecord is one persisted cycle row as read back from storage.
type CycleRecord struct {
	ID           int64             `json:"id"`
	SerialNumber string            `json:"serial_number"`
	CycleNumber  int               `json:"cycle_number"`
	TotalCycles  int               `json:"total_cycles"`
	SavedAt      time.Time         `json:"saved_at"`
	Measurements *TestMeasurements `json:"measurements"`
}

// DUTInfo identifies the device under test for a run.
type DUTInfo struct {
	SerialNumber string `json:"serial_number"`
	Model        string `json:"model,omitempty"`
	Operator     string `json:"operator,omitempty"`
}
