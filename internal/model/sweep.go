package model

import "time"

// SweepStatus represents the state of a notification sweep.
type SweepStatus string

const (
	SweepStatusRunning  SweepStatus = "running"
	SweepStatusComplete SweepStatus = "complete"
	SweepStatusSkipped  SweepStatus = "skipped" // lock not acquired
	SweepStatusFailed   SweepStatus = "failed"
)

// Sweep is one recorded run of the notifier.
type Sweep struct {
	ID        string       `json:"id"`
	Status    SweepStatus  `json:"status"`
	Result    *SweepResult `json:"result,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SweepResult summarizes what a sweep did.
type SweepResult struct {
	SweepID      string        `json:"sweep_id"`
	Status       SweepStatus   `json:"status"`
	RowsScanned  int           `json:"rows_scanned"`
	RowsSkipped  int           `json:"rows_skipped"`
	Processed    int           `json:"processed"`
	Notified     int           `json:"notified"`
	SendFailures int           `json:"send_failures"`
	Duration     time.Duration `json:"duration"`
}
