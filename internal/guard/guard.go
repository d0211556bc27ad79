// Package guard decides whether a printer is currently running a logged and
// authorized job, based on the latest Logs row for that printer.
package guard

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/printlog-cli/internal/logbook"
	"github.com/sells-group/printlog-cli/internal/model"
	"github.com/sells-group/printlog-cli/internal/sheet"
)

// DefaultDuration is assumed when a row's duration cannot be parsed.
const DefaultDuration = time.Hour

// Verdict is the outcome of a device check.
type Verdict string

const (
	// VerdictUnlogged means no current log entry covers the device.
	VerdictUnlogged Verdict = "unlogged"
	// VerdictUnauthorized means the current entry belongs to someone not on
	// the reference sheet.
	VerdictUnauthorized Verdict = "unauthorized"
	VerdictAuthorized   Verdict = "authorized"
)

// Decision explains a verdict.
type Decision struct {
	Device  string        `json:"device"`
	Verdict Verdict       `json:"verdict"`
	Reason  string        `json:"reason"`
	Row     *model.LogRow `json:"row,omitempty"`
	Start   time.Time     `json:"start"`
	End     time.Time     `json:"end"`
}

// Option configures a Guard.
type Option func(*Guard)

// WithRegistry resolves device serials before matching against the sheet.
func WithRegistry(r *Registry) Option {
	return func(g *Guard) { g.registry = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLocation sets the zone the sheet's dates are written in.
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) { g.loc = loc }
}

// Guard checks devices against the Logs sheet. It only reads.
type Guard struct {
	sheets    sheet.Store
	logsSheet string
	registry  *Registry
	now       func() time.Time
	loc       *time.Location
}

// New creates a Guard over logsSheet.
func New(sheets sheet.Store, logsSheet string, opts ...Option) *Guard {
	if logsSheet == "" {
		logsSheet = "Logs"
	}
	g := &Guard{sheets: sheets, logsSheet: logsSheet, now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns the verdict for device, a serial or a display name.
func (g *Guard) Check(ctx context.Context, device string) (*Decision, error) {
	name := g.registry.Name(device)
	if name == "" {
		return nil, eris.New("guard: device is required")
	}

	snap, err := logbook.Load(ctx, g.sheets, g.logsSheet)
	if err != nil {
		return nil, eris.Wrap(err, "guard: load logs")
	}
	return Decide(snap.Rows, name, g.now().In(g.loc), g.loc), nil
}

// Decide evaluates the latest row for device at now.
func Decide(rows []model.LogRow, device string, now time.Time, loc *time.Location) *Decision {
	d := &Decision{Device: device, Verdict: VerdictUnlogged}

	row := latest(rows, device)
	if row == nil {
		d.Reason = "no log entry for device"
		return d
	}
	d.Row = row

	start, err := ParseStart(row.Date, row.Time, loc)
	if err != nil {
		d.Reason = "unreadable start time"
		return d
	}
	d.Start = start
	d.End = start.Add(ParseDuration(row.Duration))

	if now.After(d.End) {
		d.Reason = "latest entry has ended"
		return d
	}
	if strings.TrimSpace(row.Status) == "" || row.Unauthorized() {
		d.Verdict = VerdictUnauthorized
		d.Reason = "user is not on the authorized list"
		return d
	}
	d.Verdict = VerdictAuthorized
	d.Reason = "covered by entry until " + d.End.Format(time.Kitchen)
	return d
}

func latest(rows []model.LogRow, device string) *model.LogRow {
	for i := len(rows) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(rows[i].Device), device) {
			r := rows[i]
			return &r
		}
	}
	return nil
}

var startLayouts = []string{
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseStart combines the Date and Time cells into a timestamp in loc.
func ParseStart(date, clock string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(strings.TrimSpace(date) + " " + strings.TrimSpace(clock))
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("guard: unrecognized start %q", s)
}

// ParseDuration reads "H:M:S" or "H:M". Anything else yields DefaultDuration.
func ParseDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return DefaultDuration
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return DefaultDuration
		}
		d += time.Duration(n) * units[i]
	}
	if d == 0 {
		return DefaultDuration
	}
	return d
}
