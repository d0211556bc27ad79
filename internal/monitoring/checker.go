package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates sweep health on a timer and posts alerts. An alert type
// is posted once when it starts firing and again only after it has cleared.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	firing    map[AlertType]bool
}

func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		firing:    make(map[AlertType]bool),
	}
}

// Run ticks until ctx is done. Not safe to call concurrently with Tick.
func (c *Checker) Run(ctx context.Context) {
	every := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if every <= 0 {
		every = defaultCheckInterval
	}
	zap.L().Named("monitoring").Info("alert checker running",
		zap.Duration("every", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one evaluation and returns how many alerts were delivered.
func (c *Checker) Tick(ctx context.Context) int {
	log := zap.L().Named("monitoring")

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect sweep health", zap.Error(err))
		return 0
	}

	now := make(map[AlertType]bool)
	var fresh []Alert
	for _, a := range c.alerter.Evaluate(snap) {
		now[a.Type] = true
		if !c.firing[a.Type] {
			fresh = append(fresh, a)
		}
	}
	for typ := range c.firing {
		if !now[typ] {
			log.Info("monitoring: alert cleared", zap.String("type", string(typ)))
			delete(c.firing, typ)
		}
	}

	sent := 0
	for _, a := range fresh {
		// Undelivered alerts stay unmarked so the next tick retries them.
		if c.alerter.SendAlerts(ctx, []Alert{a}) == 1 {
			c.firing[a.Type] = true
			sent++
		}
	}
	if len(fresh) > 0 {
		log.Info("monitoring: alerts posted", zap.Int("new", len(fresh)), zap.Int("sent", sent))
	}
	return sent
}
