package notifier

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/mailer"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/store"
)

// DeadLetters is the subset of store.Store used for redelivery.
type DeadLetters interface {
	ListFailed(ctx context.Context, filter store.FailedFilter) ([]model.FailedNotification, error)
	MarkDelivered(ctx context.Context, id string) error
	RecordRetryFailure(ctx context.Context, id string, errMsg string) error
}

// RedeliverResult counts what a redelivery pass did.
type RedeliverResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"` // entries past their retry budget, not attempted
}

// Redeliver resends undelivered notifications that still have retries left.
// The sheet is not touched: the originating rows are already processed.
func Redeliver(ctx context.Context, dl DeadLetters, sender mailer.Sender, limit int) (*RedeliverResult, error) {
	entries, err := dl.ListFailed(ctx, store.FailedFilter{Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "notifier: list failed notifications")
	}

	res := &RedeliverResult{}
	for i := range entries {
		f := &entries[i]
		if !f.CanRetry() {
			res.Exhausted++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "notifier: redeliver")
		}

		res.Attempted++
		log := zap.L().With(zap.String("id", f.ID), zap.Int("row", f.Row), zap.Int("retry", f.RetryCount+1))

		if sendErr := sender.Send(ctx, f.Envelope); sendErr != nil {
			res.Failed++
			log.Warn("notifier: redelivery failed", zap.Error(sendErr))
			if err := dl.RecordRetryFailure(ctx, f.ID, sendErr.Error()); err != nil {
				return res, eris.Wrapf(err, "notifier: record retry failure %s", f.ID)
			}
			continue
		}

		res.Delivered++
		log.Info("notifier: redelivered notification", zap.String("subject", f.Envelope.Subject))
		if err := dl.MarkDelivered(ctx, f.ID); err != nil {
			return res, eris.Wrapf(err, "notifier: mark delivered %s", f.ID)
		}
	}
	return res, nil
}
