// Package resolver fills the status column of the Logs sheet by matching each
// row's name against the reference sheet.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/lock"
	"github.com/sells-group/printlog-cli/internal/logbook"
	"github.com/sells-group/printlog-cli/internal/matcher"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

// Config controls a Resolver.
type Config struct {
	LogsSheet      string
	ReferenceSheet string
	LockName       string
	LockTimeout    time.Duration
}

// Result counts what a resolve pass did.
type Result struct {
	Rows       int `json:"rows"`
	Resolved   int `json:"resolved"`
	Authorized int `json:"authorized"`
}

// Resolver writes matcher results into empty status cells.
type Resolver struct {
	sheets sheet.Store
	locker lock.Locker
	cfg    Config
}

// New creates a Resolver. It shares the sweep lock because both write the
// Logs sheet.
func New(sheets sheet.Store, locker lock.Locker, cfg Config) *Resolver {
	if cfg.LogsSheet == "" {
		cfg.LogsSheet = "Logs"
	}
	if cfg.ReferenceSheet == "" {
		cfg.ReferenceSheet = logbook.DefaultReferenceSheet
	}
	if cfg.LockName == "" {
		cfg.LockName = "printlog-sweep"
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = lock.DefaultTimeout
	}
	return &Resolver{sheets: sheets, locker: locker, cfg: cfg}
}

// Resolve fills every empty status whose row carries a name. Rows that
// already have a status are left alone.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	guard, err := r.locker.Acquire(ctx, r.cfg.LockName, r.cfg.LockTimeout)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: acquire lock")
	}
	defer func() {
		if relErr := guard.Release(); relErr != nil {
			zap.L().Warn("resolver: failed to release lock", zap.Error(relErr))
		}
	}()
	ctx = context.WithoutCancel(ctx)

	refs, err := logbook.Reference(ctx, r.sheets, r.cfg.ReferenceSheet)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: load reference")
	}
	refFirst, refLast, refValues := matcher.Columns(refs)

	snap, err := logbook.Load(ctx, r.sheets, r.cfg.LogsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: load logs")
	}
	res := &Result{Rows: len(snap.Rows)}
	if snap.Empty() {
		return res, nil
	}

	status := make([][]any, len(snap.Rows))
	for i, row := range snap.Rows {
		status[i] = []any{row.Status}
		if strings.TrimSpace(row.Status) != "" || (row.FirstName == "" && row.LastName == "") {
			continue
		}
		v := matcher.Match(row.FirstName, row.LastName, refFirst, refLast, refValues)
		status[i][0] = v
		res.Resolved++
		if v != model.NotAuthorized {
			res.Authorized++
		}
	}

	if res.Resolved == 0 {
		return res, nil
	}
	if err := guard.Held(ctx); err != nil {
		return nil, eris.Wrap(err, "resolver: lock lost before write")
	}
	rng := sheet.Columns(r.cfg.LogsSheet, logbook.StatusCol, logbook.StatusCol, logbook.FirstDataRow, snap.LastRow)
	if err := r.sheets.Write(ctx, rng, status); err != nil {
		return nil, eris.Wrap(err, "resolver: write status column")
	}
	if err := r.sheets.Flush(ctx); err != nil {
		return nil, eris.Wrap(err, "resolver: flush")
	}

	zap.L().Info("resolver: statuses resolved",
		zap.Int("rows", res.Rows),
		zap.Int("resolved", res.Resolved),
		zap.Int("authorized", res.Authorized),
	)
	return res, nil
}
