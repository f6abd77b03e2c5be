package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// Single-step operations run one step in isolation through the same
// engines and resilience wrapper as Execute. Nothing is persisted.

func (p *Pipeline) sanitized(ticket model.Ticket) (model.Ticket, error) {
	clean, err := p.sanitizer.Check(ticket.Subject, ticket.Body)
	if err != nil {
		return ticket, eris.Wrap(ErrInvalidInput, err.Error())
	}
	ticket.Subject = clean.Subject
	ticket.Body = clean.Body
	return ticket, nil
}

func (p *Pipeline) singleRecorder() *recorder {
	return newRecorder(zap.L().With(zap.String("mode", "single_step")), p.metrics, p.nowFunc)
}

// Classify classifies one ticket.
func (p *Pipeline) Classify(ctx context.Context, ticket model.Ticket) (model.ClassificationResult, model.StepResult, error) {
	ticket, err := p.sanitized(ticket)
	if err != nil {
		return model.ClassificationResult{}, model.StepResult{}, err
	}
	rec := p.singleRecorder()
	res, _ := p.classify(ctx, rec, ticket)
	return res, rec.steps()[0], nil
}

// Extract extracts fields from one ticket. An empty category is resolved
// with the rule classifier.
func (p *Pipeline) Extract(ctx context.Context, ticket model.Ticket, category model.Category) (model.ExtractionResult, model.StepResult, error) {
	ticket, err := p.sanitized(ticket)
	if err != nil {
		return model.ExtractionResult{}, model.StepResult{}, err
	}
	if !category.Valid() {
		category = p.classifier.Rules().Classify(ticket.Subject, ticket.Body).Category
	}
	rec := p.singleRecorder()
	res, _ := p.extract(ctx, rec, ticket, category)
	return res, rec.steps()[0], nil
}

// Respond drafts a reply for an already classified ticket.
func (p *Pipeline) Respond(ctx context.Context, ticket model.Ticket, c model.ClassificationResult, fields []model.ExtractedField, tone model.Tone) (model.ResponseDraft, model.StepResult, error) {
	ticket, err := p.sanitized(ticket)
	if err != nil {
		return model.ResponseDraft{}, model.StepResult{}, err
	}
	if !tone.Valid() {
		tone = model.ToneFriendly
	}
	if !c.Severity.Valid() {
		c.Severity = model.SeverityMedium
	}
	if fields == nil {
		fields = p.extractor.Patterns().Find(ticket.Text())
	}
	rec := p.singleRecorder()
	draft, _ := p.generateResponse(ctx, rec, ticket, c, model.ExtractionResult{Fields: fields}, tone)
	return draft, rec.steps()[0], nil
}

// Route evaluates the routing rules. It never fails.
func (p *Pipeline) Route(category model.Category, severity model.Severity, fields []model.ExtractedField) model.RoutingDecision {
	return p.router.Route(category, severity, fields)
}
