// Package resilience provides circuit breaker, retry and fallback selection
// for calls to the inference gateway.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the position of a breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	// CircuitHalfOpen admits a single probe call after the cooldown.
	CircuitHalfOpen
)

var circuitStateNames = [...]string{"closed", "open", "half-open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(circuitStateNames) {
		return "unknown"
	}
	return circuitStateNames[s]
}

// ErrCircuitOpen rejects a call without running it.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig tunes one breaker. The circuit opens after
// FailureThreshold consecutive failures, or when FailureRate of the calls
// seen inside Window failed and at least MinSamples calls were seen.
type CircuitBreakerConfig struct {
	FailureThreshold int
	Window           time.Duration
	// FailureRate of zero disables the rate trip.
	FailureRate float64
	MinSamples  int
	// ResetTimeout is the cooldown before the half-open probe.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count as failures. By default every
	// error except context.Canceled does.
	ShouldTrip func(err error) bool

	// OnStateChange runs under the breaker's lock and must not call back
	// into it.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the breaker settings used when config
// leaves a field unset.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Window:           time.Minute,
		MinSamples:       10,
		ResetTimeout:     30 * time.Second,
	}
}

type outcome struct {
	at     time.Time
	failed bool
}

// CircuitBreaker guards a single operation.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int // consecutive
	openedAt time.Time
	probing  bool
	recent   []outcome

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a closed breaker. Non-positive fields take
// their defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	return &CircuitBreaker{cfg: cfg, nowFunc: time.Now}
}

// Execute runs fn unless the circuit rejects it with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteVal(ctx, cb, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// ExecuteVal is Execute for functions with a result. The breaker's lock is
// not held while fn runs.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	probe, err := cb.admit()
	if err != nil {
		var zero T
		return zero, err
	}
	val, err := fn(ctx)
	cb.record(err, probe)
	return val, err
}

// State reports the current state. An open circuit whose cooldown has
// elapsed reads as half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.cooled() {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset closes the circuit and forgets its history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.recent = nil
	if cb.state != CircuitClosed {
		cb.setState(CircuitClosed)
	}
}

// Counters returns the consecutive failure count and the stored state.
func (cb *CircuitBreaker) Counters() (consecutiveFailures int, state CircuitState) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures, cb.state
}

func (cb *CircuitBreaker) cooled() bool {
	return cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.ResetTimeout
}

// admit decides whether a call may run and whether it is the probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitClosed {
		return false, nil
	}
	if cb.state == CircuitOpen {
		if !cb.cooled() {
			return false, ErrCircuitOpen
		}
		cb.setState(CircuitHalfOpen)
	}
	if cb.probing {
		return false, ErrCircuitOpen
	}
	cb.probing = true
	return true, nil
}

func (cb *CircuitBreaker) counts(err error) bool {
	switch {
	case err == nil:
		return false
	case cb.cfg.ShouldTrip != nil:
		return cb.cfg.ShouldTrip(err)
	default:
		return !errors.Is(err, context.Canceled)
	}
}

func (cb *CircuitBreaker) record(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	failed := cb.counts(err)
	if err != nil && !failed {
		// Neutral: neither a success nor a failure. A half-open breaker
		// stays half-open and admits the next probe.
		return
	}

	now := cb.nowFunc()
	cb.observe(now, failed)
	if !failed {
		if probe && cb.state == CircuitHalfOpen {
			cb.setState(CircuitClosed)
			cb.recent = nil
		}
		if cb.state == CircuitClosed {
			cb.failures = 0
		}
		return
	}

	cb.failures++
	switch {
	case cb.state == CircuitHalfOpen:
		cb.open(now)
	case cb.state == CircuitClosed && (cb.failures >= cb.cfg.FailureThreshold || cb.rateExceeded()):
		cb.open(now)
	}
}

func (cb *CircuitBreaker) open(now time.Time) {
	cb.openedAt = now
	cb.setState(CircuitOpen)
}

// observe records an outcome and drops those that left the window.
func (cb *CircuitBreaker) observe(now time.Time, failed bool) {
	cutoff := now.Add(-cb.cfg.Window)
	i := 0
	for i < len(cb.recent) && !cb.recent[i].at.After(cutoff) {
		i++
	}
	cb.recent = append(cb.recent[i:], outcome{at: now, failed: failed})
}

func (cb *CircuitBreaker) rateExceeded() bool {
	if cb.cfg.FailureRate <= 0 || len(cb.recent) < cb.cfg.MinSamples {
		return false
	}
	failed := 0
	for _, o := range cb.recent {
		if o.failed {
			failed++
		}
	}
	return float64(failed) >= cb.cfg.FailureRate*float64(len(cb.recent))
}

func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

// ServiceBreakers manages one circuit breaker per operation.
type ServiceBreakers struct {
	mu           sync.RWMutex
	breakers     map[string]*CircuitBreaker
	cfg          CircuitBreakerConfig
	onTransition func(operation string, from, to CircuitState)
}

// NewServiceBreakers creates a registry of per-operation circuit breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// OnTransition registers a callback invoked on every state change of any
// breaker created afterwards.
func (sb *ServiceBreakers) OnTransition(fn func(operation string, from, to CircuitState)) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.onTransition = fn
}

// Get returns the circuit breaker for the named operation, creating one if needed.
func (sb *ServiceBreakers) Get(operation string) *CircuitBreaker {
	sb.mu.RLock()
	cb, ok := sb.breakers[operation]
	sb.mu.RUnlock()
	if ok {
		return cb
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	// Double-check after acquiring write lock.
	if cb, ok = sb.breakers[operation]; ok {
		return cb
	}
	cfg := sb.cfg
	if hook := sb.onTransition; hook != nil {
		prev := cfg.OnStateChange
		cfg.OnStateChange = func(from, to CircuitState) {
			hook(operation, from, to)
			if prev != nil {
				prev(from, to)
			}
		}
	}
	cb = NewCircuitBreaker(cfg)
	sb.breakers[operation] = cb
	return cb
}

// States returns a snapshot of all circuit breaker states.
func (sb *ServiceBreakers) States() map[string]CircuitState {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	states := make(map[string]CircuitState, len(sb.breakers))
	for name, cb := range sb.breakers {
		states[name] = cb.State()
	}
	return states
}
