package guard

import (
	"context"
	"sync"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Print states reported by the printers.
const (
	StateRunning  = "RUNNING"
	StateIdle     = "IDLE"
	StateFinished = "FINISH"
	StateFailed   = "FAILED"
)

// Enforcer stops the job running on a printer.
type Enforcer interface {
	Stop(ctx context.Context, serial, reason string) error
}

// Checker returns the verdict for a device. *Guard satisfies it.
type Checker interface {
	Check(ctx context.Context, device string) (*Decision, error)
}

// Watcher turns a stream of printer status reports into one check per print
// job, and stops jobs that are not covered by an authorized log entry.
type Watcher struct {
	checker  Checker
	enforcer Enforcer

	mu      sync.Mutex
	state   map[string]map[string]any
	checked map[string]string
}

// NewWatcher creates a Watcher. A nil enforcer only logs violations.
func NewWatcher(checker Checker, enforcer Enforcer) *Watcher {
	return &Watcher{
		checker:  checker,
		enforcer: enforcer,
		state:    make(map[string]map[string]any),
		checked:  make(map[string]string),
	}
}

// Observe merges a partial status report for serial. The first report of a
// job that is running and past layer 1 triggers a check; the result is
// returned, otherwise Observe returns nil.
func (w *Watcher) Observe(ctx context.Context, serial string, report map[string]any) *Decision {
	w.mu.Lock()
	st, ok := w.state[serial]
	if !ok {
		st = make(map[string]any)
		w.state[serial] = st
	}
	for k, v := range report {
		st[k] = v
	}

	state := cast.ToString(st["gcode_state"])
	layer := cast.ToInt(st["layer_num"])
	job := cast.ToString(st["subtask_id"])
	if job == "" {
		job = "unknown"
	}

	trigger := false
	switch state {
	case StateRunning:
		if layer >= 1 && w.checked[serial] != job {
			w.checked[serial] = job
			trigger = true
		}
	case StateIdle, StateFinished, StateFailed:
		delete(w.checked, serial)
	}
	w.mu.Unlock()

	if !trigger {
		return nil
	}
	return w.enforce(ctx, serial, job)
}

func (w *Watcher) enforce(ctx context.Context, serial, job string) *Decision {
	log := zap.L().With(zap.String("serial", serial), zap.String("job", job))

	d, err := w.checker.Check(ctx, serial)
	if err != nil {
		// An unreadable sheet cannot vouch for the job.
		log.Error("guard: check failed, treating print as unlogged", zap.Error(err))
		d = &Decision{Device: serial, Verdict: VerdictUnlogged, Reason: "log unavailable"}
	}

	if d.Verdict == VerdictAuthorized {
		log.Info("guard: print authorized", zap.String("device", d.Device), zap.Time("until", d.End))
		return d
	}

	reason := "Unlogged"
	if d.Verdict == VerdictUnauthorized {
		reason = "Unauthorized"
		if d.Row != nil {
			reason += ": " + d.Row.FullName()
		}
	}
	log.Warn("guard: violation", zap.String("device", d.Device), zap.String("reason", reason))

	if w.enforcer == nil {
		return d
	}
	if err := w.enforcer.Stop(ctx, serial, reason); err != nil {
		log.Error("guard: stop command failed", zap.Error(err))
	}
	return d
}
