package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSweepFailureRate  AlertType = "sweep_failure_rate"
	AlertDeadLetterBacklog AlertType = "dead_letter_backlog"
	AlertStaleSweep        AlertType = "stale_sweep"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// Check sweep failure rate.
	finished := snap.SweepComplete + snap.SweepFailed
	if finished >= 3 && snap.SweepFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSweepFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sweep failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.SweepFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.SweepFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.SweepFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.SweepFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Check undelivered notifications.
	if a.cfg.DeadLetterThreshold > 0 && snap.DeadLetters >= a.cfg.DeadLetterThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDeadLetterBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d unauthorized-print notification(s) are waiting for redelivery",
				snap.DeadLetters,
			),
			Details: map[string]any{
				"dead_letters": snap.DeadLetters,
				"threshold":    a.cfg.DeadLetterThreshold,
			},
			Timestamp: now,
		})
	}

	// Check for a scheduler that stopped completing sweeps.
	if a.cfg.StaleAfterMins > 0 {
		staleAfter := time.Duration(a.cfg.StaleAfterMins) * time.Minute
		if snap.LastSuccess.IsZero() || now.Sub(snap.LastSuccess) > staleAfter {
			last := "never in window"
			if !snap.LastSuccess.IsZero() {
				last = snap.LastSuccess.Format(time.RFC3339)
			}
			alerts = append(alerts, Alert{
				Type:     AlertStaleSweep,
				Severity: "high",
				Message: fmt.Sprintf(
					"No successful sweep in the last %s (last success: %s)",
					staleAfter, last,
				),
				Details: map[string]any{
					"last_success":     snap.LastSuccess,
					"stale_after_mins": a.cfg.StaleAfterMins,
					"skipped":          snap.SweepSkipped,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
