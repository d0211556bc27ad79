package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/store"
)

// HealthSnapshot holds a point-in-time view of sweep health.
type HealthSnapshot struct {
	// Sweep metrics (within lookback window).
	SweepTotal    int     `json:"sweep_total"`
	SweepComplete int     `json:"sweep_complete"`
	SweepFailed   int     `json:"sweep_failed"`
	SweepSkipped  int     `json:"sweep_skipped"`
	SweepFailRate float64 `json:"sweep_fail_rate"`
	Notified      int     `json:"notified"`
	SendFailures  int     `json:"send_failures"`

	// LastSuccess is the newest complete sweep in the window; zero if none.
	LastSuccess time.Time `json:"last_success"`

	// Undelivered notifications still waiting for redelivery.
	DeadLetters int `json:"dead_letters"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// HistoryReader is the part of store.Store the collector reads.
type HistoryReader interface {
	ListSweeps(ctx context.Context, filter store.SweepFilter) ([]model.Sweep, error)
	ListFailed(ctx context.Context, filter store.FailedFilter) ([]model.FailedNotification, error)
}

// Collector gathers sweep health from the history store.
type Collector struct {
	store HistoryReader
}

// NewCollector creates a new health collector.
func NewCollector(st HistoryReader) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := time.Now().UTC()
	snap := &HealthSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Sweeps come back newest first; stop at the window edge.
	sweeps, err := c.store.ListSweeps(ctx, store.SweepFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sweeps")
	}
	for _, s := range sweeps {
		if s.CreatedAt.Before(cutoff) {
			break
		}
		snap.SweepTotal++
		switch s.Status {
		case model.SweepStatusComplete:
			snap.SweepComplete++
			if s.UpdatedAt.After(snap.LastSuccess) {
				snap.LastSuccess = s.UpdatedAt
			}
		case model.SweepStatusFailed:
			snap.SweepFailed++
		case model.SweepStatusSkipped:
			snap.SweepSkipped++
		}
		if s.Result != nil {
			snap.Notified += s.Result.Notified
			snap.SendFailures += s.Result.SendFailures
		}
	}
	if finished := snap.SweepComplete + snap.SweepFailed; finished > 0 {
		snap.SweepFailRate = float64(snap.SweepFailed) / float64(finished)
	}

	failed, err := c.store.ListFailed(ctx, store.FailedFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list failed notifications")
	}
	snap.DeadLetters = len(failed)

	return snap, nil
}
