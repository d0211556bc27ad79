package store

import (
	"context"

	"github.com/sells-group/printlog-cli/internal/model"
)

// SweepFilter specifies criteria for listing sweeps.
type SweepFilter struct {
	Status model.SweepStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// FailedFilter specifies criteria for listing failed notifications.
type FailedFilter struct {
	ErrorType        string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	IncludeDelivered bool   `json:"include_delivered,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

// Store persists sweep history and undelivered notifications.
type Store interface {
	// Sweeps
	CreateSweep(ctx context.Context) (*model.Sweep, error)
	CompleteSweep(ctx context.Context, sweepID string, result *model.SweepResult, sweepErr error) error
	GetSweep(ctx context.Context, sweepID string) (*model.Sweep, error)
	ListSweeps(ctx context.Context, filter SweepFilter) ([]model.Sweep, error)

	// Failed notifications
	EnqueueFailed(ctx context.Context, f model.FailedNotification) error
	ListFailed(ctx context.Context, filter FailedFilter) ([]model.FailedNotification, error)
	MarkDelivered(ctx context.Context, id string) error
	RecordRetryFailure(ctx context.Context, id string, errMsg string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
