package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultLookbackHours = 24
)

// Checker evaluates run health on an interval and posts alerts when a
// threshold is crossed. An alert type fires once when it becomes active and
// again only after a check has seen it clear.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int

	mu     sync.Mutex
	active map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  time.Duration(cfg.CheckIntervalSecs) * time.Second,
		lookback:  cfg.LookbackWindowHours,
		active:    make(map[AlertType]bool),
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookbackHours
	}
	return c
}

// Run blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	zap.L().Info("monitoring: alert checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("monitoring: alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one collect, evaluate and notify cycle and returns the alerts
// that were newly raised.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect snapshot", zap.Error(err))
		return nil
	}

	fresh := c.transition(c.alerter.Evaluate(snap))
	if len(fresh) == 0 {
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	zap.L().Info("monitoring: alerts raised",
		zap.Int("runs", snap.RunsTotal),
		zap.Float64("failure_rate", snap.FailureRate),
		zap.Float64("fallback_rate", snap.FallbackRate),
		zap.Int("raised", len(fresh)),
		zap.Int("sent", sent),
	)
	return fresh
}

// transition records the currently firing alert types and returns only the
// alerts that were not already active.
func (c *Checker) transition(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	firing := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		firing[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	c.active = firing
	return fresh
}
