// Package monitoring exposes Prometheus metrics for workflow runs and
// periodically evaluates recent runs against alert thresholds.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

const namespace = "ticket_workflow"

// Metrics holds the workflow collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
	duplicates   prometheus.Counter
	runs         *prometheus.CounterVec
	tokens       prometheus.Counter
}

// NewMetrics creates and registers the workflow collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Workflow steps by name and terminal status",
			},
			[]string{"step", "status"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Steps that returned the deterministic fallback result",
			},
			[]string{"step"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step wall-clock duration",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state per AI operation (0 closed, 1 open, 2 half-open)",
			},
			[]string{"operation"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Tickets flagged as likely duplicates",
		}),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by final status",
			},
			[]string{"status"},
		),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Inference tokens consumed across all steps",
		}),
	}

	m.registry.MustRegister(
		m.steps, m.fallbacks, m.stepDuration, m.circuitState, m.duplicates, m.runs, m.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveStep records one finished step.
func (m *Metrics) ObserveStep(step model.StepResult) {
	if m == nil {
		return
	}
	name := string(step.Name)
	m.steps.WithLabelValues(name, string(step.Status)).Inc()
	if step.FallbackUsed {
		m.fallbacks.WithLabelValues(name).Inc()
	}
	if step.Status != model.StepStatusSkipped {
		m.stepDuration.WithLabelValues(name).Observe(float64(step.Duration) / 1000)
	}
	if step.Tokens > 0 {
		m.tokens.Add(float64(step.Tokens))
	}
}

// ObserveRun records the outcome of a pipeline run.
func (m *Metrics) ObserveRun(status model.RunStatus, result *model.WorkflowResult) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
	if result != nil && result.Duplicate != nil {
		m.duplicates.Inc()
	}
}

// SetCircuitState publishes the current state of an operation's breaker.
// It has the signature expected by resilience.ServiceBreakers.OnTransition.
func (m *Metrics) SetCircuitState(operation string, _, to resilience.CircuitState) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(operation).Set(float64(to))
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
