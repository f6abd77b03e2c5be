package resilience

import (
	"time"

	"github.com/sells-group/ticket-workflow/internal/config"
)

func millis(n int) time.Duration  { return time.Duration(n) * time.Millisecond }
func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// RetryFromConfig builds the gateway retry policy. Zero values keep the
// defaults; a zero jitter fraction is honoured.
func RetryFromConfig(c config.ResilienceConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		rc.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		rc.InitialBackoff = millis(c.InitialBackoffMs)
	}
	if c.MaxBackoffMs > 0 {
		rc.MaxBackoff = millis(c.MaxBackoffMs)
	}
	if c.Multiplier > 0 {
		rc.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		rc.JitterFraction = c.JitterFraction
	}
	return rc
}

// CircuitFromConfig builds the per-operation breaker settings. The rate trip
// stays off unless failure_rate is in (0,1].
func CircuitFromConfig(c config.ResilienceConfig) CircuitBreakerConfig {
	cc := DefaultCircuitBreakerConfig()
	if c.FailureThreshold > 0 {
		cc.FailureThreshold = c.FailureThreshold
	}
	if c.CooldownSecs > 0 {
		cc.ResetTimeout = seconds(c.CooldownSecs)
	}
	if c.WindowSecs > 0 {
		cc.Window = seconds(c.WindowSecs)
	}
	if c.MinSamples > 0 {
		cc.MinSamples = c.MinSamples
	}
	if c.FailureRate > 0 && c.FailureRate <= 1 {
		cc.FailureRate = c.FailureRate
	}
	return cc
}
