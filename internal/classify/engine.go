package classify

import (
	"context"
	"time"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// AI classifies with a language model.
type AI interface {
	Classify(ctx context.Context, subject, body string) (model.ClassificationResult, model.TokenUsage, error)
}

// Engine selects between the AI strategy and the rule classifier for every
// call. The rule classifier is the terminal fallback.
type Engine struct {
	rules    *RuleClassifier
	ai       AI
	invoker  *resilience.Invoker
	deadline time.Duration
}

// NewEngine creates an Engine. A nil ai leaves only the rule strategy.
func NewEngine(rules *RuleClassifier, ai AI, invoker *resilience.Invoker, deadline time.Duration) *Engine {
	return &Engine{rules: rules, ai: ai, invoker: invoker, deadline: deadline}
}

// Rules returns the rule strategy.
func (e *Engine) Rules() *RuleClassifier {
	return e.rules
}

// Classify returns a classification and how it was resolved. It never
// fails; any AI problem resolves to the rule result.
func (e *Engine) Classify(ctx context.Context, subject, body string) (model.ClassificationResult, resilience.Annotation) {
	fallback := func() model.ClassificationResult {
		return e.rules.Classify(subject, body)
	}
	if e.invoker == nil {
		return fallback(), resilience.Annotation{FallbackUsed: true, Reason: resilience.ReasonDisabled}
	}

	call := resilience.Call[model.ClassificationResult]{
		Operation: resilience.OpClassify,
		Deadline:  e.deadline,
		Confidence: func(r model.ClassificationResult) float64 {
			return r.CategoryConfidence
		},
		Fallback: fallback,
	}
	if e.ai != nil {
		call.AI = func(ctx context.Context) (model.ClassificationResult, model.TokenUsage, error) {
			return e.ai.Classify(ctx, subject, body)
		}
	}
	return resilience.Invoke(ctx, e.invoker, call)
}
