// Package metrics exposes sweep counters for Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/printlog-cli/internal/model"
)

// Metrics holds the sweep collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	processed     prometheus.Counter
	notifications prometheus.Counter
	sendFailures  prometheus.Counter
	sweepDur      prometheus.Summary
	lastSuccessTS prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "printlog_sweeps_total",
			Help: "Notification sweeps by final status.",
		}, []string{"status"}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "printlog_rows_processed_total",
			Help: "Log rows marked processed by a sweep.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "printlog_notifications_sent_total",
			Help: "Unauthorized-print notifications delivered.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "printlog_notification_failures_total",
			Help: "Notifications that could not be rendered or delivered.",
		}),
		sweepDur: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "printlog_sweep_duration_seconds",
			Help: "Wall time of notification sweeps.",
		}),
		lastSuccessTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "printlog_last_successful_sweep_timestamp_seconds",
			Help: "Unix time of the last completed sweep.",
		}),
	}
	reg.MustRegister(m.sweeps, m.processed, m.notifications, m.sendFailures, m.sweepDur, m.lastSuccessTS)
	return m
}

// ObserveSweep records the outcome of one sweep.
func (m *Metrics) ObserveSweep(res *model.SweepResult) {
	if m == nil || res == nil {
		return
	}
	m.sweeps.WithLabelValues(string(res.Status)).Inc()
	m.processed.Add(float64(res.Processed))
	m.notifications.Add(float64(res.Notified))
	m.sendFailures.Add(float64(res.SendFailures))
	m.sweepDur.Observe(res.Duration.Seconds())
	if res.Status == model.SweepStatusComplete {
		m.lastSuccessTS.SetToCurrentTime()
	}
}
