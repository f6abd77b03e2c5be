// Package inference is the provider-independent boundary to the language
// model. Callers hand it a structured prompt and get back JSON or an error.
package inference

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
	"github.com/sells-group/ticket-workflow/internal/resilience"
	"github.com/sells-group/ticket-workflow/pkg/anthropic"
)

// ErrSchemaMismatch is returned when a call succeeds at the transport level
// but the payload is not the JSON the operation expects. It is a permanent
// failure and is never retried.
var ErrSchemaMismatch = eris.New("inference: response does not match schema")

// Request is one gateway call.
type Request struct {
	Kind        resilience.Operation
	System      string
	Prompt      string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Gateway performs a single inference call and returns the JSON object the
// model produced. Usage is reported even when the call fails after the
// provider billed tokens.
type Gateway interface {
	Call(ctx context.Context, req Request) (json.RawMessage, model.TokenUsage, error)
}

// AnthropicGateway implements Gateway on the Anthropic Messages API.
type AnthropicGateway struct {
	client anthropic.Client
}

// NewAnthropicGateway wraps an Anthropic client.
func NewAnthropicGateway(client anthropic.Client) *AnthropicGateway {
	return &AnthropicGateway{client: client}
}

// Call sends the request and parses the reply as JSON. HTTP statuses that
// signal overload or rate limiting come back as resilience.TransientError.
func (g *AnthropicGateway) Call(ctx context.Context, req Request) (json.RawMessage, model.TokenUsage, error) {
	temp := req.Temperature
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      anthropic.CachedSystem(req.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		if err = resilience.FromStatus(err, anthropic.StatusCode(err)); resilience.IsTransient(err) {
			return nil, model.TokenUsage{}, err
		}
		return nil, model.TokenUsage{}, eris.Wrapf(err, "inference: %s", req.Kind)
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.Prompt()),
		OutputTokens: int(resp.Usage.OutputTokens),
	}

	raw, err := ExtractJSON(resp.Text())
	if err != nil {
		zap.L().Debug("inference: unparseable reply",
			zap.String("operation", string(req.Kind)),
			zap.String("stop_reason", resp.StopReason),
		)
		return nil, usage, eris.Wrapf(err, "inference: %s", req.Kind)
	}
	return raw, usage, nil
}

// ExtractJSON pulls a JSON object out of model output that may be wrapped
// in markdown fences or surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Wrap(ErrSchemaMismatch, "no json object in reply")
	}
	text = text[start : end+1]

	if !json.Valid([]byte(text)) {
		return nil, eris.Wrap(ErrSchemaMismatch, "invalid json in reply")
	}
	return json.RawMessage(text), nil
}
