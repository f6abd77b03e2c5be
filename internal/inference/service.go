package inference

import (
	"context"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
)

// Settings are the model parameters applied to every call.
type Settings struct {
	Model               string
	MaxTokens           int64
	ClassifyTemperature float64
	ExtractTemperature  float64
	RespondTemperature  float64
	MaxPromptChars      int
}

// SettingsFromConfig maps Anthropic config onto call settings.
func SettingsFromConfig(cfg config.AnthropicConfig) Settings {
	return Settings{
		Model:               cfg.Model,
		MaxTokens:           int64(cfg.MaxTokens),
		ClassifyTemperature: cfg.ClassifyTemperature,
		ExtractTemperature:  cfg.ExtractTemperature,
		RespondTemperature:  cfg.RespondTemperature,
		MaxPromptChars:      cfg.MaxPromptChars,
	}
}

// Service issues typed classify, extract and respond calls through a
// Gateway and validates each reply against its schema.
type Service struct {
	gw       Gateway
	settings Settings
}

// NewService creates a Service.
func NewService(gw Gateway, settings Settings) *Service {
	return &Service{gw: gw, settings: settings}
}

func (s *Service) request(kind resilience.Operation, system, prompt string, temp float64) Request {
	return Request{
		Kind:        kind,
		System:      system,
		Prompt:      prompt,
		Model:       s.settings.Model,
		MaxTokens:   s.settings.MaxTokens,
		Temperature: temp,
	}
}

// Classify asks the model for a classification.
func (s *Service) Classify(ctx context.Context, subject, body string) (model.ClassificationResult, model.TokenUsage, error) {
	raw, usage, err := s.gw.Call(ctx, s.request(resilience.OpClassify, classifySystem,
		ClassifyPrompt(subject, body, s.settings.MaxPromptChars), s.settings.ClassifyTemperature))
	if err != nil {
		return model.ClassificationResult{}, usage, err
	}
	res, err := DecodeClassification(raw)
	return res, usage, err
}

// Extract asks the model for context-dependent fields.
func (s *Service) Extract(ctx context.Context, subject, body string, category model.Category) ([]model.ExtractedField, model.TokenUsage, error) {
	raw, usage, err := s.gw.Call(ctx, s.request(resilience.OpExtract, extractSystem,
		ExtractPrompt(subject, body, category, s.settings.MaxPromptChars), s.settings.ExtractTemperature))
	if err != nil {
		return nil, usage, err
	}
	fields, err := DecodeExtraction(raw)
	return fields, usage, err
}

// Respond asks the model for a reply draft.
func (s *Service) Respond(ctx context.Context, in ResponseInput) (model.ResponseDraft, model.TokenUsage, error) {
	raw, usage, err := s.gw.Call(ctx, s.request(resilience.OpGenerateResponse, respondSystem,
		RespondPrompt(in, s.settings.MaxPromptChars), s.settings.RespondTemperature))
	if err != nil {
		return model.ResponseDraft{}, usage, err
	}
	draft, err := DecodeResponse(raw)
	if err != nil {
		return model.ResponseDraft{}, usage, err
	}
	draft.Tone = in.Tone
	return draft, usage, nil
}
