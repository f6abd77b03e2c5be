package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/classify"
	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/cost"
	"github.com/sells-group/ticket-workflow/internal/dedupe"
	"github.com/sells-group/ticket-workflow/internal/events"
	"github.com/sells-group/ticket-workflow/internal/extract"
	"github.com/sells-group/ticket-workflow/internal/inference"
	"github.com/sells-group/ticket-workflow/internal/monitoring"
	"github.com/sells-group/ticket-workflow/internal/pipeline"
	"github.com/sells-group/ticket-workflow/internal/resilience"
	"github.com/sells-group/ticket-workflow/internal/respond"
	"github.com/sells-group/ticket-workflow/internal/route"
	"github.com/sells-group/ticket-workflow/internal/sanitize"
	"github.com/sells-group/ticket-workflow/internal/store"
	anthropicpkg "github.com/sells-group/ticket-workflow/pkg/anthropic"
)

// pipelineEnv holds the initialized collaborators and the pipeline needed
// by the process/classify/serve commands.
type pipelineEnv struct {
	Store     store.Store // may be nil
	Pipeline  *pipeline.Pipeline
	Metrics   *monitoring.Metrics // may be nil
	Breakers  *resilience.ServiceBreakers
	history   dedupe.History
	publisher events.Publisher
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.publisher != nil {
		if err := pe.publisher.Close(); err != nil {
			zap.L().Warn("close publisher", zap.Error(err))
		}
	}
	if pe.history != nil {
		_ = pe.history.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// loadRules returns the rule tables from rules_path, or the built-in
// defaults when unset.
func loadRules() (*config.Rules, error) {
	if cfg.RulesPath == "" {
		return config.DefaultRules(), nil
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load rules")
	}
	zap.L().Info("rules loaded", zap.String("path", cfg.RulesPath))
	return rules, nil
}

// aiStrategies returns the inference-backed strategy for each step, or nil
// for steps that run on rules only.
func aiStrategies() (classify.AI, extract.AI, respond.AI) {
	if !cfg.AIEnabled() {
		zap.L().Info("inference gateway disabled, all steps use rule strategies")
		return nil, nil, nil
	}

	var gw inference.Gateway = inference.NewAnthropicGateway(anthropicpkg.NewClient(cfg.Anthropic.Key))
	if cfg.Anthropic.RateLimit > 0 {
		gw = inference.WithRateLimit(gw, inference.NewLimiter(cfg.Anthropic.RateLimit, cfg.Anthropic.RateBurst))
	}
	svc := inference.NewService(gw, inference.SettingsFromConfig(cfg.Anthropic))

	var (
		c classify.AI
		e extract.AI
		r respond.AI
	)
	if cfg.Workflow.EnableAIClassification {
		c = svc
	}
	if cfg.Workflow.EnableAIExtraction {
		e = svc
	}
	if cfg.Workflow.EnableAIResponse {
		r = svc
	}
	zap.L().Info("inference gateway enabled",
		zap.String("model", cfg.Anthropic.Model),
		zap.Bool("classification", c != nil),
		zap.Bool("extraction", e != nil),
		zap.Bool("response", r != nil),
	)
	return c, e, r
}

func initHistory(ctx context.Context) (dedupe.History, error) {
	ttl := time.Duration(cfg.Duplicate.WindowTTL) * time.Hour
	if cfg.Duplicate.Backend == "redis" {
		h, err := dedupe.OpenRedisHistory(ctx, cfg.Duplicate.RedisURL, cfg.Duplicate.WindowSize, ttl)
		if err != nil {
			return nil, err
		}
		zap.L().Info("duplicate history using redis")
		return h, nil
	}
	return dedupe.NewMemoryHistory(cfg.Duplicate.WindowSize, ttl), nil
}

// initPipeline validates config for mode, opens the store and history,
// wires engines behind the resilience invoker and builds the Pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	router, err := route.NewRouter(rules.Routing)
	if err != nil {
		return nil, eris.Wrap(err, "build router")
	}

	env := &pipelineEnv{}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}

	env.history, err = initHistory(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		env.Metrics = monitoring.NewMetrics()
	}

	r := cfg.Resilience
	env.Breakers = resilience.NewServiceBreakers(resilience.CircuitFromConfig(r))
	env.Breakers.OnTransition(env.Metrics.SetCircuitState)
	invoker := resilience.NewInvoker(env.Breakers, resilience.RetryFromConfig(r), r.ConfidenceThreshold)

	classifyAI, extractAI, respondAI := aiStrategies()
	w := cfg.Workflow

	if len(cfg.Events.Brokers) > 0 {
		env.publisher = events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
		zap.L().Info("result publishing enabled", zap.Strings("brokers", cfg.Events.Brokers), zap.String("topic", cfg.Events.Topic))
	} else {
		env.publisher = events.Noop{}
	}

	pricing := cost.New(cfg.Pricing)
	if !pricing.Known(cfg.Anthropic.Model) {
		zap.L().Warn("no pricing for model, run cost will be reported as 0", zap.String("model", cfg.Anthropic.Model))
	}

	p, err := pipeline.New(cfg, pipeline.Deps{
		Sanitizer:  sanitize.New(sanitize.WithMaxLengths(w.MaxSubjectChars, w.MaxBodyChars)),
		Classifier: classify.NewEngine(classify.NewRuleClassifier(rules.Classification), classifyAI, invoker, w.ClassificationTimeout),
		Extractor:  extract.NewEngine(rules.Extraction, extractAI, invoker, w.ExtractionTimeout),
		Responder:  respond.NewEngine(respond.NewTemplates(rules.Responses), respondAI, invoker, w.ResponseTimeout),
		Router:     router,
		Detector:   dedupe.NewDetector(env.history, cfg.Duplicate.Threshold),
		Store:      env.Store,
		Publisher:  env.publisher,
		Metrics:    env.Metrics,
		Cost:       pricing,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Pipeline = p

	zap.L().Info("pipeline ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("duplicate_backend", cfg.Duplicate.Backend),
		zap.Bool("metrics", env.Metrics != nil),
	)
	return env, nil
}
