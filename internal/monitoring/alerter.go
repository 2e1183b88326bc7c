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

	"github.com/sells-group/ux-extract/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertScreenshotFailureRate AlertType = "screenshot_failure_rate"
	AlertBatchFailure          AlertType = "batch_failure"
	AlertStalledBatch          AlertType = "stalled_batch"
	AlertCostOverrun           AlertType = "cost_overrun"
)

// minFinishedScreenshots keeps a handful of early failures from paging.
const minFinishedScreenshots = 5

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
	now := time.Now().UTC()

	finished := snap.ScreenshotsSucceeded + snap.ScreenshotsFailed
	if finished >= minFinishedScreenshots && snap.ScreenshotFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertScreenshotFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Screenshot failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.ScreenshotFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.ScreenshotsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.ScreenshotFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.ScreenshotsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.BatchesFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertBatchFailure,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d batch(es) entered processing_failed in last %dh",
				snap.BatchesFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count":  snap.BatchesFailed,
				"total_batches": snap.BatchesTotal,
			},
			Timestamp: now,
		})
	}

	if len(snap.Stalled) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStalledBatch,
			Severity: "medium",
			Message:  fmt.Sprintf("%d batch(es) stuck in extracting with no active run", len(snap.Stalled)),
			Details: map[string]any{
				"batch_ids": snap.Stalled,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Model cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"batches":       snap.BatchesTotal,
			},
			Timestamp: now,
		})
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
