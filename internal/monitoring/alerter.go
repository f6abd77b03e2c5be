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

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "failure_rate"
	AlertFallbackRate AlertType = "fallback_rate"
	AlertCostOverrun  AlertType = "cost_overrun"
)

// Minimum sample sizes before a rate alert can fire.
const (
	minRunsForRate  = 5
	minStepsForRate = 10
)

// Alert is the JSON body posted to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// alertRule inspects a snapshot and reports whether its alert fires.
type alertRule func(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool)

var alertRules = []alertRule{failureRateRule, fallbackRateRule, costRule}

func failureRateRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if s.RunsTotal < minRunsForRate || s.FailureRate <= cfg.FailureRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of runs failed in the last %dh (%d of %d, threshold %.1f%%)",
			s.FailureRate*100, s.LookbackHours, s.RunsFailed, s.RunsTotal, cfg.FailureRateThreshold*100),
		Details: map[string]any{
			"failure_rate": s.FailureRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       s.RunsFailed,
			"total":        s.RunsTotal,
		},
	}, true
}

// A sustained fallback rate means the inference gateway is degraded even
// though runs still complete.
func fallbackRateRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if cfg.FallbackRateThreshold <= 0 || s.AISteps < minStepsForRate || s.FallbackRate <= cfg.FallbackRateThreshold {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertFallbackRate,
		Severity: "medium",
		Message: fmt.Sprintf("%.1f%% of AI steps used fallbacks in the last %dh (%d of %d, threshold %.1f%%)",
			s.FallbackRate*100, s.LookbackHours, s.FallbackUsed, s.AISteps, cfg.FallbackRateThreshold*100),
		Details: map[string]any{
			"fallback_rate": s.FallbackRate,
			"threshold":     cfg.FallbackRateThreshold,
			"fallback_used": s.FallbackUsed,
			"ai_steps":      s.AISteps,
		},
	}, true
}

func costRule(cfg config.MonitoringConfig, s *Snapshot) (Alert, bool) {
	if cfg.CostThresholdUSD <= 0 || s.CostUSD <= cfg.CostThresholdUSD {
		return Alert{}, false
	}
	return Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message: fmt.Sprintf("inference spend $%.2f in the last %dh is over the $%.2f budget",
			s.CostUSD, s.LookbackHours, cfg.CostThresholdUSD),
		Details: map[string]any{
			"cost_usd":      s.CostUSD,
			"threshold_usd": cfg.CostThresholdUSD,
			"runs_total":    s.RunsTotal,
		},
	}, true
}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
		},
	}
}

// Evaluate returns every alert whose threshold the snapshot crosses.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, rule := range alertRules {
		if alert, ok := rule(a.cfg, snap); ok {
			alert.Timestamp = now
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// SendAlerts posts each alert and returns how many were delivered. It is a
// no-op without a webhook URL.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: deliver alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// post sends one alert. 5xx and 429 responses come back transient so the
// caller retries them.
func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return resilience.FromStatus(eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	return nil
}
