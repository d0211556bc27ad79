// Package notifier scans the Logs sheet for unauthorized prints and sends one
// notification per offending row, marking each processed row in column L.
package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/lock"
	"github.com/sells-group/printlog-cli/internal/logbook"
	"github.com/sells-group/printlog-cli/internal/mailer"
	"github.com/sells-group/printlog-cli/internal/metrics"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/resilience"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

// ErrLockTimeout is returned (wrapped) when another sweep held the lock for
// the whole wait window. Nothing was read, written or sent.
var ErrLockTimeout = lock.ErrTimeout

// Defaults applied to a zero Config.
const (
	DefaultLogsSheet  = "Logs"
	DefaultLockName   = "printlog-sweep"
	DefaultFromName   = "Organization 3D Printer"
	DefaultMaxRetries = 3

	subjectPrefix = "3D Print Issue on "
)

// Config controls a Notifier.
type Config struct {
	LogsSheet   string
	LockName    string
	LockTimeout time.Duration
	FromName    string
	FromAddress string
	Recipient   string
	MaxRetries  int  // redelivery attempts recorded on dead letters
	DryRun      bool // send through the configured sender but never write column L
}

func (c Config) withDefaults() Config {
	if c.LogsSheet == "" {
		c.LogsSheet = DefaultLogsSheet
	}
	if c.LockName == "" {
		c.LockName = DefaultLockName
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = lock.DefaultTimeout
	}
	if c.FromName == "" {
		c.FromName = DefaultFromName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// History records sweeps and undelivered notifications. store.Store satisfies it.
type History interface {
	CreateSweep(ctx context.Context) (*model.Sweep, error)
	CompleteSweep(ctx context.Context, sweepID string, result *model.SweepResult, sweepErr error) error
	EnqueueFailed(ctx context.Context, f model.FailedNotification) error
}

// Option configures optional Notifier collaborators.
type Option func(*Notifier)

// WithHistory records every sweep and dead-letters failed notifications.
func WithHistory(h History) Option {
	return func(n *Notifier) { n.history = h }
}

// WithMetrics reports sweep outcomes to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// Notifier runs notification sweeps.
type Notifier struct {
	sheets   sheet.Store
	locker   lock.Locker
	renderer mailer.Renderer
	sender   mailer.Sender
	cfg      Config
	history  History
	metrics  *metrics.Metrics
}

// New creates a Notifier.
func New(sheets sheet.Store, locker lock.Locker, renderer mailer.Renderer, sender mailer.Sender, cfg Config, opts ...Option) *Notifier {
	n := &Notifier{
		sheets:   sheets,
		locker:   locker,
		renderer: renderer,
		sender:   sender,
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Sweep performs one pass over the Logs sheet. The result is always non-nil.
// A lock timeout returns an error matching ErrLockTimeout and a result with
// status skipped; such an attempt leaves no trace in the history store.
func (n *Notifier) Sweep(ctx context.Context) (*model.SweepResult, error) {
	start := time.Now()
	res := &model.SweepResult{Status: model.SweepStatusRunning}
	log := zap.L().With(zap.String("sheet", n.cfg.LogsSheet))

	guard, err := n.locker.Acquire(ctx, n.cfg.LockName, n.cfg.LockTimeout)
	if err != nil {
		res.Duration = time.Since(start)
		res.Status = model.SweepStatusFailed
		if errors.Is(err, lock.ErrTimeout) {
			res.Status = model.SweepStatusSkipped
			log.Warn("notifier: another sweep holds the lock, skipping",
				zap.String("lock", n.cfg.LockName),
				zap.Duration("waited", n.cfg.LockTimeout),
			)
			err = eris.Wrap(err, "notifier: sweep skipped")
		} else {
			log.Error("notifier: acquire lock", zap.Error(err))
			err = eris.Wrap(err, "notifier: acquire lock")
		}
		n.metrics.ObserveSweep(res)
		return res, err
	}
	defer func() {
		if relErr := guard.Release(); relErr != nil {
			log.Warn("notifier: failed to release lock", zap.Error(relErr))
		}
	}()

	// Once the lock is held the sweep runs to completion.
	ctx = context.WithoutCancel(ctx)

	if n.history != nil {
		sw, err := n.history.CreateSweep(ctx)
		if err != nil {
			log.Warn("notifier: failed to record sweep start", zap.Error(err))
		} else {
			res.SweepID = sw.ID
			log = log.With(zap.String("sweep_id", sw.ID))
		}
	}

	err = n.sweep(ctx, log, guard, res)
	res.Duration = time.Since(start)

	if err == nil {
		res.Status = model.SweepStatusComplete
		log.Info("notifier: sweep complete",
			zap.Int("rows_scanned", res.RowsScanned),
			zap.Int("processed", res.Processed),
			zap.Int("notified", res.Notified),
			zap.Int("send_failures", res.SendFailures),
			zap.Duration("duration", res.Duration),
		)
	} else {
		res.Status = model.SweepStatusFailed
		log.Error("notifier: sweep failed", zap.Error(err))
	}

	if n.history != nil && res.SweepID != "" {
		if histErr := n.history.CompleteSweep(ctx, res.SweepID, res, err); histErr != nil {
			log.Warn("notifier: failed to record sweep result", zap.Error(histErr))
		}
	}
	n.metrics.ObserveSweep(res)
	return res, err
}

// sweep runs load, scan and persist under an acquired guard.
func (n *Notifier) sweep(ctx context.Context, log *zap.Logger, guard lock.Guard, res *model.SweepResult) error {
	snap, err := logbook.Load(ctx, n.sheets, n.cfg.LogsSheet)
	if err != nil {
		return eris.Wrap(err, "notifier: load")
	}
	if snap.Empty() {
		log.Info("notifier: no log rows")
		return nil
	}

	sent := make([][]any, len(snap.SentCells))
	for i, cells := range snap.SentCells {
		sent[i] = []any{cells[0]}
	}

	for i, row := range snap.Rows {
		res.RowsScanned++
		if !row.Pending() {
			res.RowsSkipped++
			continue
		}

		sent[i][0] = true
		res.Processed++

		if row.Unauthorized() {
			n.notify(ctx, log, res, row)
		}
	}

	if n.cfg.DryRun {
		log.Info("notifier: dry run, sent column not written", zap.Int("processed", res.Processed))
		return nil
	}
	// A lease that lapsed during a long send phase may already belong to
	// another sweep working from the unwritten column.
	if err := guard.Held(ctx); err != nil {
		return eris.Wrap(err, "notifier: lock lost before persist")
	}
	if err := n.sheets.Write(ctx, snap.Sent, sent); err != nil {
		return eris.Wrap(err, "notifier: write sent column")
	}
	if err := n.sheets.Flush(ctx); err != nil {
		return eris.Wrap(err, "notifier: flush")
	}
	return nil
}

// notify renders and sends the notice for one row. Failures are logged and
// dead-lettered; the row stays processed either way.
func (n *Notifier) notify(ctx context.Context, log *zap.Logger, res *model.SweepResult, row model.LogRow) {
	log = log.With(zap.Int("row", row.Row), zap.String("device", row.Device))

	env, err := n.Envelope(row)
	if err != nil {
		res.SendFailures++
		log.Error("notifier: render failed", zap.Error(err))
		n.deadLetter(ctx, log, res, row, env, err, 0)
		return
	}
	if err := n.sender.Send(ctx, env); err != nil {
		res.SendFailures++
		log.Error("notifier: send failed", zap.Error(err))
		n.deadLetter(ctx, log, res, row, env, err, n.cfg.MaxRetries)
		return
	}
	res.Notified++
	log.Info("notifier: notification sent", zap.String("user", row.FullName()))
}

// Envelope builds the notification for an unauthorized row.
func (n *Notifier) Envelope(row model.LogRow) (model.Envelope, error) {
	env := model.Envelope{
		FromName:    n.cfg.FromName,
		FromAddress: n.cfg.FromAddress,
		To:          n.cfg.Recipient,
		Subject:     subjectPrefix + row.Device,
	}
	body, err := n.renderer.Render(model.NoticeTemplate, model.Notice{
		FullName: row.FullName(),
		Printer:  row.Device,
		FileName: row.FileName,
	})
	if err != nil {
		return env, eris.Wrapf(err, "notifier: render row %d", row.Row)
	}
	env.HTMLBody = body
	return env, nil
}

func (n *Notifier) deadLetter(ctx context.Context, log *zap.Logger, res *model.SweepResult, row model.LogRow, env model.Envelope, cause error, maxRetries int) {
	if n.history == nil {
		return
	}
	errType := resilience.ClassifyError(cause)
	if maxRetries == 0 {
		errType = resilience.ClassPermanent
	}
	now := time.Now().UTC()
	err := n.history.EnqueueFailed(ctx, model.FailedNotification{
		ID:           uuid.New().String(),
		SweepID:      res.SweepID,
		Row:          row.Row,
		Envelope:     env,
		Error:        cause.Error(),
		ErrorType:    errType,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		LastFailedAt: now,
	})
	if err != nil {
		log.Error("notifier: failed to record undelivered notification", zap.Error(err))
	}
}
