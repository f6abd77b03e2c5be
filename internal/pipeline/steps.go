package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/monitoring"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// stepOutcome is what a step body reports back to the recorder. err marks
// the step failed; ann carries how an inference-backed step was resolved.
type stepOutcome struct {
	ann      resilience.Annotation
	err      error
	metadata map[string]any
}

// recorder collects StepResults in completion order. It is safe for use
// from concurrent steps.
type recorder struct {
	mu      sync.Mutex
	results []model.StepResult
	log     *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

func newRecorder(log *zap.Logger, metrics *monitoring.Metrics, now func() time.Time) *recorder {
	return &recorder{log: log, metrics: metrics, now: now}
}

// track runs fn as the named step and records exactly one result for it.
func (r *recorder) track(name model.StepName, fn func() stepOutcome) model.StepResult {
	start := r.now()
	out := fn()
	end := r.now()

	sr := model.StepResult{
		Name:         name,
		Status:       model.StepStatusCompleted,
		StartedAt:    start.UTC(),
		CompletedAt:  end.UTC(),
		Duration:     end.Sub(start).Milliseconds(),
		FallbackUsed: out.ann.FallbackUsed,
		Tokens:       out.ann.Usage.Total(),
		Retries:      out.ann.Retries,
		CircuitOpen:  out.ann.CircuitOpen,
		Metadata:     out.metadata,
	}
	if out.ann.FallbackUsed {
		if sr.Metadata == nil {
			sr.Metadata = map[string]any{}
		}
		sr.Metadata["fallback_reason"] = out.ann.Reason
		if out.ann.Err != nil {
			sr.Error = out.ann.Err.Error()
		}
	}

	if out.err != nil {
		sr.Status = model.StepStatusFailed
		sr.Error = out.err.Error()
		r.log.Warn("pipeline: step failed",
			zap.String("step", string(name)),
			zap.Int64("duration_ms", sr.Duration),
			zap.Error(out.err),
		)
	} else {
		r.log.Info("pipeline: step complete",
			zap.String("step", string(name)),
			zap.Int64("duration_ms", sr.Duration),
			zap.Bool("fallback_used", sr.FallbackUsed),
			zap.Int("retries", sr.Retries),
		)
	}

	r.append(sr)
	return sr
}

// skip records a step that did not run.
func (r *recorder) skip(name model.StepName, reason string) {
	now := r.now().UTC()
	sr := model.StepResult{
		Name:        name,
		Status:      model.StepStatusSkipped,
		StartedAt:   now,
		CompletedAt: now,
		Metadata:    map[string]any{"reason": reason},
	}
	r.log.Info("pipeline: step skipped", zap.String("step", string(name)), zap.String("reason", reason))
	r.append(sr)
}

func (r *recorder) append(sr model.StepResult) {
	r.mu.Lock()
	r.results = append(r.results, sr)
	r.mu.Unlock()
	r.metrics.ObserveStep(sr)
}

// steps returns a copy of the results recorded so far.
func (r *recorder) steps() []model.StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StepResult, len(r.results))
	copy(out, r.results)
	return out
}
