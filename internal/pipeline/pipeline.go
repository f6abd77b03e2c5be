// Package pipeline drives the fixed ticket step graph: validation, then
// duplicate detection alongside classification and extraction, then
// response generation and routing.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ticket-workflow/internal/classify"
	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/cost"
	"github.com/sells-group/ticket-workflow/internal/dedupe"
	"github.com/sells-group/ticket-workflow/internal/events"
	"github.com/sells-group/ticket-workflow/internal/extract"
	"github.com/sells-group/ticket-workflow/internal/inference"
	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/monitoring"
	"github.com/sells-group/ticket-workflow/internal/respond"
	"github.com/sells-group/ticket-workflow/internal/route"
	"github.com/sells-group/ticket-workflow/internal/sanitize"
	"github.com/sells-group/ticket-workflow/internal/store"
)

// sinkTimeout bounds best-effort persistence and publishing after a run.
const sinkTimeout = 5 * time.Second

// Deps are the collaborators a Pipeline is built from. Sanitizer,
// Classifier, Extractor, Responder and Router are required; the rest are
// optional.
type Deps struct {
	Sanitizer  *sanitize.Sanitizer
	Classifier *classify.Engine
	Extractor  *extract.Engine
	Responder  *respond.Engine
	Router     *route.Router
	Detector   *dedupe.Detector
	Store      store.Store
	Publisher  events.Publisher
	Metrics    *monitoring.Metrics
	Cost       *cost.Calculator
}

// Pipeline orchestrates one ticket run at a time per Execute call. It is
// safe for concurrent use; all shared state lives in the injected
// collaborators.
type Pipeline struct {
	cfg        config.WorkflowConfig
	model      string
	sanitizer  *sanitize.Sanitizer
	classifier *classify.Engine
	extractor  *extract.Engine
	responder  *respond.Engine
	router     *route.Router
	detector   *dedupe.Detector
	store      store.Store
	publisher  events.Publisher
	metrics    *monitoring.Metrics
	costCalc   *cost.Calculator
	nowFunc    func() time.Time
}

// New creates a Pipeline. It returns ErrConfig when a required
// collaborator is missing.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, eris.Wrap(ErrConfig, "pipeline: nil config")
	}
	switch {
	case deps.Sanitizer == nil:
		return nil, eris.Wrap(ErrConfig, "pipeline: sanitizer is required")
	case deps.Classifier == nil:
		return nil, eris.Wrap(ErrConfig, "pipeline: classification engine is required")
	case deps.Extractor == nil:
		return nil, eris.Wrap(ErrConfig, "pipeline: extraction engine is required")
	case deps.Responder == nil:
		return nil, eris.Wrap(ErrConfig, "pipeline: response engine is required")
	case deps.Router == nil:
		return nil, eris.Wrap(ErrConfig, "pipeline: router is required")
	}

	p := &Pipeline{
		cfg:        cfg.Workflow,
		model:      cfg.Anthropic.Model,
		sanitizer:  deps.Sanitizer,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		responder:  deps.Responder,
		router:     deps.Router,
		detector:   deps.Detector,
		store:      deps.Store,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		costCalc:   deps.Cost,
		nowFunc:    time.Now,
	}
	if p.publisher == nil {
		p.publisher = events.Noop{}
	}
	if p.costCalc == nil {
		p.costCalc = cost.Default()
	}
	return p, nil
}

// Execute runs the step graph over one ticket. It fails only on unusable
// input (ErrInvalidInput); inference problems resolve to fallbacks and are
// recorded on the step results.
func (p *Pipeline) Execute(ctx context.Context, ticket model.Ticket, opts model.Options) (*model.WorkflowResult, error) {
	started := p.nowFunc()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if !opts.Tone.Valid() {
		opts.Tone = model.ToneFriendly
	}

	result := &model.WorkflowResult{
		RunID:     uuid.NewString(),
		TicketID:  ticket.ID,
		StartedAt: started.UTC(),
	}
	log := zap.L().With(zap.String("run_id", result.RunID), zap.String("ticket_id", ticket.ID))
	log.Info("pipeline: starting run", zap.Bool("parallel", opts.EnableParallel))

	rec := newRecorder(log, p.metrics, p.nowFunc)
	var usage model.TokenUsage

	// ===== Step 1: Validation =====
	var clean sanitize.Result
	validation := rec.track(model.StepValidation, func() stepOutcome {
		var err error
		clean, err = p.sanitizer.Check(ticket.Subject, ticket.Body)
		if err != nil {
			return stepOutcome{err: err}
		}
		return stepOutcome{metadata: map[string]any{
			"warnings":      clean.Warnings,
			"warning_count": len(clean.Warnings),
		}}
	})
	if validation.Status == model.StepStatusFailed {
		result.Steps = rec.steps()
		p.finish(ctx, log, ticket, result, model.RunStatusFailed, validation.Error)
		return nil, eris.Wrap(ErrInvalidInput, validation.Error)
	}
	ticket.Subject = clean.Subject
	ticket.Body = clean.Body
	result.Warnings = append(result.Warnings, clean.Warnings...)

	runCtx := ctx
	if p.cfg.Ceiling > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Ceiling)
		defer cancel()
	}

	// ===== Step 2: Duplicate detection (joined before response generation) =====
	dupDone := make(chan *model.DuplicateRef, 1)
	if opts.EnableDuplicateDetection && p.detector != nil {
		go func() {
			dupDone <- p.detectDuplicate(runCtx, rec, ticket)
		}()
	} else {
		rec.skip(model.StepDuplicateDetection, "duplicate detection disabled")
		dupDone <- nil
	}

	// ===== Steps 3-4: Classification and extraction =====
	classification, extraction, stageUsage := p.understand(runCtx, rec, ticket, opts)
	usage.Add(stageUsage)
	result.Classification = classification
	result.Extraction = extraction
	result.Duplicate = <-dupDone

	// ===== Steps 5-6: Response generation and routing =====
	var draft *model.ResponseDraft
	var routing model.RoutingDecision

	ceilingHit := runCtx.Err() != nil
	g := new(errgroup.Group)
	if !opts.EnableParallel {
		g.SetLimit(1)
	}
	g.Go(func() error {
		switch {
		case opts.SkipResponse:
			rec.skip(model.StepResponseGeneration, "skipped by request")
		case ceilingHit:
			rec.skip(model.StepResponseGeneration, "pipeline deadline exceeded")
		default:
			d, u := p.generateResponse(runCtx, rec, ticket, classification, extraction, opts.Tone)
			draft = &d
			usage.Add(u)
		}
		return nil
	})
	g.Go(func() error {
		routing = p.routeTicket(rec, classification, extraction, opts.SkipRouting)
		return nil
	})
	_ = g.Wait()

	result.Response = draft
	result.Routing = routing

	// ===== Assemble =====
	result.Steps = rec.steps()
	if ceilingHit {
		result.Partial = true
		result.Warnings = append(result.Warnings, "pipeline deadline exceeded; remaining optional steps skipped")
	}
	result.TotalDuration = p.nowFunc().Sub(started).Milliseconds()
	result.TotalTokens = usage.Total()
	result.TotalCost = p.costCalc.Cost(p.model, usage)

	status := model.RunStatusCompleted
	if result.Partial {
		status = model.RunStatusPartial
	}
	p.finish(ctx, log, ticket, result, status, "")

	log.Info("pipeline: run complete",
		zap.String("status", string(status)),
		zap.String("category", string(classification.Category)),
		zap.String("team", string(routing.Team)),
		zap.Bool("fallback_used", result.FallbackUsed()),
		zap.Int("tokens", result.TotalTokens),
		zap.Int64("duration_ms", result.TotalDuration),
	)
	return result, nil
}

// understand runs classification and extraction, concurrently unless
// parallelism is disabled. Extraction starts with the rule category as its
// hint; required fields are recomputed against the final category once
// both branches have joined.
func (p *Pipeline) understand(ctx context.Context, rec *recorder, ticket model.Ticket, opts model.Options) (model.ClassificationResult, model.ExtractionResult, model.TokenUsage) {
	var classification model.ClassificationResult
	var extraction model.ExtractionResult
	var classUsage, extractUsage model.TokenUsage

	runClassify := func() {
		if opts.SkipClassification {
			classification = p.classifier.Rules().Classify(ticket.Subject, ticket.Body)
			rec.skip(model.StepClassification, "skipped by request; rule classification applied")
			return
		}
		classification, classUsage = p.classify(ctx, rec, ticket)
	}
	runExtract := func(hint model.Category) {
		if opts.SkipExtraction {
			extraction = p.extractor.Assemble(nil, hint)
			rec.skip(model.StepExtraction, "skipped by request")
			return
		}
		extraction, extractUsage = p.extract(ctx, rec, ticket, hint)
	}

	if opts.EnableParallel {
		hint := p.classifier.Rules().Classify(ticket.Subject, ticket.Body).Category
		g := new(errgroup.Group)
		g.Go(func() error { runClassify(); return nil })
		g.Go(func() error { runExtract(hint); return nil })
		_ = g.Wait()
	} else {
		runClassify()
		runExtract(classification.Category)
	}

	extraction = p.extractor.Assemble(extraction.Fields, classification.Category)

	var usage model.TokenUsage
	usage.Add(classUsage)
	usage.Add(extractUsage)
	return classification, extraction, usage
}

func (p *Pipeline) classify(ctx context.Context, rec *recorder, ticket model.Ticket) (model.ClassificationResult, model.TokenUsage) {
	var res model.ClassificationResult
	var usage model.TokenUsage
	rec.track(model.StepClassification, func() stepOutcome {
		r, a := p.classifier.Classify(ctx, ticket.Subject, ticket.Body)
		res, usage = r, a.Usage
		return stepOutcome{
			ann: a,
			metadata: map[string]any{
				"category":   string(r.Category),
				"severity":   string(r.Severity),
				"confidence": r.CategoryConfidence,
			},
		}
	})
	return res, usage
}

func (p *Pipeline) extract(ctx context.Context, rec *recorder, ticket model.Ticket, hint model.Category) (model.ExtractionResult, model.TokenUsage) {
	var res model.ExtractionResult
	var usage model.TokenUsage
	rec.track(model.StepExtraction, func() stepOutcome {
		r, a := p.extractor.Extract(ctx, ticket.Subject, ticket.Body, hint)
		res, usage = r, a.Usage
		return stepOutcome{
			ann: a,
			metadata: map[string]any{
				"fields":            len(r.Fields),
				"validation_errors": len(r.ValidationErrors),
			},
		}
	})
	return res, usage
}

func (p *Pipeline) generateResponse(ctx context.Context, rec *recorder, ticket model.Ticket, c model.ClassificationResult, e model.ExtractionResult, tone model.Tone) (model.ResponseDraft, model.TokenUsage) {
	var draft model.ResponseDraft
	var usage model.TokenUsage
	rec.track(model.StepResponseGeneration, func() stepOutcome {
		d, a := p.responder.Respond(ctx, inference.ResponseInput{
			Subject:      ticket.Subject,
			Body:         ticket.Body,
			Category:     c.Category,
			Severity:     c.Severity,
			Fields:       e.Fields,
			CustomerName: respond.CustomerName(ticket, e.Fields),
			Tone:         tone,
		})
		draft, usage = d, a.Usage
		md := map[string]any{"requires_escalation": d.RequiresEscalation}
		if d.TemplateUsed != "" {
			md["template_used"] = d.TemplateUsed
		}
		return stepOutcome{ann: a, metadata: md}
	})
	return draft, usage
}

// routeTicket always produces a decision. A skip only changes how the step
// is recorded.
func (p *Pipeline) routeTicket(rec *recorder, c model.ClassificationResult, e model.ExtractionResult, skip bool) model.RoutingDecision {
	if skip {
		d := p.router.Route(c.Category, c.Severity, e.Fields)
		rec.skip(model.StepRouting, "skipped by request; rule routing applied")
		return d
	}
	var d model.RoutingDecision
	rec.track(model.StepRouting, func() stepOutcome {
		d = p.router.Route(c.Category, c.Severity, e.Fields)
		return stepOutcome{metadata: map[string]any{
			"team":     string(d.Team),
			"priority": string(d.Priority),
		}}
	})
	return d
}

func (p *Pipeline) detectDuplicate(ctx context.Context, rec *recorder, ticket model.Ticket) *model.DuplicateRef {
	if p.cfg.DuplicateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DuplicateTimeout)
		defer cancel()
	}

	var ref *model.DuplicateRef
	rec.track(model.StepDuplicateDetection, func() stepOutcome {
		r, err := p.detector.Check(ctx, ticket)
		if err != nil {
			return stepOutcome{err: err}
		}
		ref = r
		if r == nil {
			return stepOutcome{metadata: map[string]any{"duplicate": false}}
		}
		return stepOutcome{metadata: map[string]any{
			"duplicate":  true,
			"ticket_id":  r.TicketID,
			"similarity": r.Similarity,
		}}
	})
	return ref
}

// finish hands the run to persistence and the event publisher. Neither
// failure reaches the caller.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, ticket model.Ticket, result *model.WorkflowResult, status model.RunStatus, errMsg string) {
	p.metrics.ObserveRun(status, result)

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if p.store != nil {
		run := &model.PipelineRun{
			ID:        result.RunID,
			Ticket:    ticket,
			Status:    status,
			Steps:     result.Steps,
			Duration:  p.nowFunc().Sub(result.StartedAt).Milliseconds(),
			Error:     errMsg,
			CreatedAt: result.StartedAt,
		}
		if status != model.RunStatusFailed {
			run.Result = result
			run.Duration = result.TotalDuration
		}
		if err := p.store.SaveRun(sinkCtx, run); err != nil {
			log.Warn("pipeline: failed to save run", zap.Error(err))
		}
	}

	if status == model.RunStatusFailed {
		return
	}
	if err := p.publisher.Publish(sinkCtx, result); err != nil {
		log.Warn("pipeline: failed to publish result", zap.Error(err))
	}
}
