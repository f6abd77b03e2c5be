package resilience

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// Operation names an inference-backed step kind. Each operation has its own
// circuit breaker.
type Operation string

const (
	OpClassify         Operation = "classify"
	OpExtract          Operation = "extract"
	OpGenerateResponse Operation = "generate_response"
)

// Fallback reasons recorded on an Annotation.
const (
	ReasonDisabled      = "ai_disabled"
	ReasonCircuitOpen   = "circuit_open"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonError         = "error"
	ReasonLowConfidence = "low_confidence"
)

// Annotation describes how one invocation was resolved.
type Annotation struct {
	FallbackUsed bool
	Reason       string
	Retries      int
	CircuitOpen  bool
	Err          error
	Usage        model.TokenUsage
}

// Call is one invocation routed through an Invoker. AI is the primary
// strategy and may be nil when AI is disabled. Fallback must be total: it
// is called synchronously, without outbound calls, whenever AI cannot be
// used.
type Call[T any] struct {
	Operation  Operation
	Deadline   time.Duration
	AI         func(ctx context.Context) (T, model.TokenUsage, error)
	Confidence func(T) float64
	Fallback   func() T
}

// Invoker selects between the AI and fallback strategies for every call.
// It owns the per-operation circuit breakers and applies retry and the
// confidence gate.
type Invoker struct {
	breakers  *ServiceBreakers
	retry     RetryConfig
	threshold float64
}

// NewInvoker creates an Invoker. A nil breakers registry gets a default one.
func NewInvoker(breakers *ServiceBreakers, retry RetryConfig, confidenceThreshold float64) *Invoker {
	if breakers == nil {
		breakers = NewServiceBreakers(DefaultCircuitBreakerConfig())
	}
	return &Invoker{
		breakers:  breakers,
		retry:     retry,
		threshold: confidenceThreshold,
	}
}

// Breakers exposes the circuit breaker registry.
func (inv *Invoker) Breakers() *ServiceBreakers {
	return inv.breakers
}

// Threshold returns the confidence gate threshold.
func (inv *Invoker) Threshold() float64 {
	return inv.threshold
}

// Invoke runs call.AI under retry, circuit breaker and deadline, and
// resolves to call.Fallback when the AI path fails, times out, is rejected
// by an open circuit, or reports confidence below the gate. Invoke never
// returns an error; the annotation records what happened.
func Invoke[T any](ctx context.Context, inv *Invoker, call Call[T]) (T, Annotation) {
	var ann Annotation
	log := zap.L().With(zap.String("operation", string(call.Operation)))

	fallback := func(reason string, err error) (T, Annotation) {
		ann.FallbackUsed = true
		ann.Reason = reason
		ann.Err = err
		if reason != ReasonDisabled {
			log.Warn("resilience: using fallback",
				zap.String("reason", reason),
				zap.Int("retries", ann.Retries),
				zap.Error(err),
			)
		}
		return call.Fallback(), ann
	}

	if call.AI == nil {
		return fallback(ReasonDisabled, nil)
	}
	if err := ctx.Err(); err != nil {
		return fallback(ReasonCanceled, err)
	}

	callCtx := ctx
	if call.Deadline > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, call.Deadline)
		defer cancel()
	}

	cb := inv.breakers.Get(string(call.Operation))
	retryCfg := inv.retry
	onRetry := RetryLogger(call.Operation)
	retryCfg.OnRetry = func(attempt int, err error) {
		ann.Retries++
		onRetry(attempt, err)
	}

	val, err := DoVal(callCtx, retryCfg, func(ctx context.Context) (T, error) {
		return ExecuteVal(ctx, cb, func(ctx context.Context) (T, error) {
			v, usage, err := call.AI(ctx)
			ann.Usage.Add(usage)
			return v, err
		})
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrCircuitOpen):
			ann.CircuitOpen = true
			return fallback(ReasonCircuitOpen, err)
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return fallback(ReasonTimeout, err)
		case errors.Is(ctx.Err(), context.Canceled):
			return fallback(ReasonCanceled, err)
		default:
			return fallback(ReasonError, err)
		}
	}

	if call.Confidence != nil {
		if conf := call.Confidence(val); conf < inv.threshold {
			return fallback(ReasonLowConfidence, &LowConfidenceError{Confidence: conf, Threshold: inv.threshold})
		}
	}

	return val, ann
}
