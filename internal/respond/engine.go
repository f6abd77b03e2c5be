package respond

import (
	"context"
	"time"

	"github.com/sells-group/ticket-workflow/internal/inference"
	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// AI drafts replies with a language model.
type AI interface {
	Respond(ctx context.Context, in inference.ResponseInput) (model.ResponseDraft, model.TokenUsage, error)
}

// Engine selects between AI drafting and the category templates.
type Engine struct {
	templates *Templates
	ai        AI
	invoker   *resilience.Invoker
	deadline  time.Duration
}

// NewEngine creates an Engine. A nil ai leaves only templates.
func NewEngine(templates *Templates, ai AI, invoker *resilience.Invoker, deadline time.Duration) *Engine {
	return &Engine{templates: templates, ai: ai, invoker: invoker, deadline: deadline}
}

// Respond drafts a reply. Severities configured to escalate always set
// RequiresEscalation, whichever strategy produced the draft.
func (e *Engine) Respond(ctx context.Context, in inference.ResponseInput) (model.ResponseDraft, resilience.Annotation) {
	if !in.Tone.Valid() {
		in.Tone = model.ToneFriendly
	}
	fallback := func() model.ResponseDraft {
		return e.templates.Render(in.Category, in.Severity, in.CustomerName, in.Tone)
	}
	if e.invoker == nil {
		return fallback(), resilience.Annotation{FallbackUsed: true, Reason: resilience.ReasonDisabled}
	}

	call := resilience.Call[model.ResponseDraft]{
		Operation: resilience.OpGenerateResponse,
		Deadline:  e.deadline,
		Fallback:  fallback,
	}
	if e.ai != nil {
		call.AI = func(ctx context.Context) (model.ResponseDraft, model.TokenUsage, error) {
			return e.ai.Respond(ctx, in)
		}
	}
	draft, ann := resilience.Invoke(ctx, e.invoker, call)
	if e.templates.RequiresEscalation(in.Severity) {
		draft.RequiresEscalation = true
	}
	return draft, ann
}
