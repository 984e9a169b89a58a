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

	"github.com/sells-group/firerisk-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertStaleOutput    AlertType = "stale_output"
	AlertEmptyOutput    AlertType = "empty_output"
	AlertOutputDrop     AlertType = "output_drop"
)

// minFinishedRuns is the sample size below which the failure rate is not
// evaluated.
const minFinishedRuns = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
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
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	finished := snap.RunsComplete + snap.RunsFailed
	if finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.LastSuccessAt.IsZero() || now.Sub(snap.LastSuccessAt) > limit {
			msg := fmt.Sprintf("No successful run in the last %dh", a.cfg.StaleAfterHours)
			if !snap.LastSuccessAt.IsZero() {
				msg = fmt.Sprintf("Last successful run finished %s ago (limit %dh)",
					now.Sub(snap.LastSuccessAt).Round(time.Minute), a.cfg.StaleAfterHours)
			}
			alerts = append(alerts, Alert{
				Type:     AlertStaleOutput,
				Severity: "medium",
				Message:  msg,
				Details: map[string]any{
					"last_success_at":   snap.LastSuccessAt,
					"stale_after_hours": a.cfg.StaleAfterHours,
				},
				Timestamp: now,
			})
		}
	}

	if !snap.LastSuccessAt.IsZero() && snap.LastOutputRows == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertEmptyOutput,
			Severity:  "high",
			Message:   "Last successful run produced an empty input table",
			Details:   map[string]any{"last_success_at": snap.LastSuccessAt},
			Timestamp: now,
		})
	}

	if drop := outputDrop(snap); a.cfg.OutputDropThreshold > 0 && drop > a.cfg.OutputDropThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertOutputDrop,
			Severity: "medium",
			Message: fmt.Sprintf("Input table shrank %.0f%% between the last two successful runs (%d -> %d rows)",
				drop*100, snap.PrevOutputRows, snap.LastOutputRows),
			Details: map[string]any{
				"previous_rows": snap.PrevOutputRows,
				"last_rows":     snap.LastOutputRows,
				"threshold":     a.cfg.OutputDropThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// outputDrop is the fractional decrease from the previous successful run's
// output to the last one. Empty outputs are reported separately.
func outputDrop(snap *MetricsSnapshot) float64 {
	if snap.PrevOutputRows <= 0 || snap.LastOutputRows <= 0 || snap.LastOutputRows >= snap.PrevOutputRows {
		return 0
	}
	return 1 - float64(snap.LastOutputRows)/float64(snap.PrevOutputRows)
}

// webhookPayload is the body posted to the alert webhook.
type webhookPayload struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

// SendAlerts posts all alerts to the configured webhook in one request and
// returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.String("message", alert.Message),
		)
	}
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	if err := a.post(ctx, webhookPayload{Source: "firerisk", Alerts: alerts}); err != nil {
		zap.L().Error("monitoring: failed to send alerts", zap.Int("alerts", len(alerts)), zap.Error(err))
		return 0
	}
	zap.L().Info("monitoring: alerts sent", zap.Int("alerts", len(alerts)))
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
