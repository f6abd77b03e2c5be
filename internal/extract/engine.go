package extract

import (
	"context"
	"time"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// AI extracts context-dependent fields with a language model.
type AI interface {
	Extract(ctx context.Context, subject, body string, category model.Category) ([]model.ExtractedField, model.TokenUsage, error)
}

// Engine combines pattern extraction with optional AI extraction.
type Engine struct {
	patterns *Patterns
	required map[model.Category][]string
	ai       AI
	invoker  *resilience.Invoker
	deadline time.Duration
}

// NewEngine creates an Engine. A nil ai disables the AI strategy.
func NewEngine(rules config.ExtractionRules, ai AI, invoker *resilience.Invoker, deadline time.Duration) *Engine {
	return &Engine{
		patterns: NewPatterns(rules),
		required: rules.RequiredFields,
		ai:       ai,
		invoker:  invoker,
		deadline: deadline,
	}
}

// Patterns exposes the compiled pattern set.
func (e *Engine) Patterns() *Patterns {
	return e.patterns
}

// Extract runs the patterns, then merges AI fields additively. Pattern
// extraction never depends on the AI outcome.
func (e *Engine) Extract(ctx context.Context, subject, body string, category model.Category) (model.ExtractionResult, resilience.Annotation) {
	fields := e.patterns.Find(subject + "\n" + body)

	call := resilience.Call[[]model.ExtractedField]{
		Operation:  resilience.OpExtract,
		Deadline:   e.deadline,
		Confidence: meanConfidence,
		Fallback:   func() []model.ExtractedField { return nil },
	}
	if e.ai != nil && e.invoker != nil {
		call.AI = func(ctx context.Context) ([]model.ExtractedField, model.TokenUsage, error) {
			return e.ai.Extract(ctx, subject, body, category)
		}
	}
	var aiFields []model.ExtractedField
	var ann resilience.Annotation
	if e.invoker != nil {
		aiFields, ann = resilience.Invoke(ctx, e.invoker, call)
	} else {
		ann = resilience.Annotation{FallbackUsed: true, Reason: resilience.ReasonDisabled}
	}
	fields = append(fields, aiFields...)

	return e.Assemble(fields, category), ann
}

// Assemble builds an ExtractionResult from merged fields: it computes the
// category's missing required fields and the validation errors.
func (e *Engine) Assemble(fields []model.ExtractedField, category model.Category) model.ExtractionResult {
	res := model.ExtractionResult{
		Fields:           fields,
		MissingRequired:  []string{},
		ValidationErrors: e.patterns.Validate(fields),
	}
	if res.Fields == nil {
		res.Fields = []model.ExtractedField{}
	}
	if res.ValidationErrors == nil {
		res.ValidationErrors = []string{}
	}
	for _, name := range e.required[category] {
		if !res.Has(name) {
			res.MissingRequired = append(res.MissingRequired, name)
		}
	}
	return res
}

// meanConfidence is the gate value for an AI extraction: the average field
// confidence, or 1 when the model found nothing.
func meanConfidence(fields []model.ExtractedField) float64 {
	if len(fields) == 0 {
		return 1
	}
	var sum float64
	for _, f := range fields {
		sum += f.Confidence
	}
	return sum / float64(len(fields))
}
