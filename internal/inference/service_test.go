package inference

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

type recordingGateway struct {
	stubGateway
	last Request
}

func (r *recordingGateway) Call(ctx context.Context, req Request) (json.RawMessage, model.TokenUsage, error) {
	r.last = req
	return r.stubGateway.Call(ctx, req)
}

func testSettings() Settings {
	return SettingsFromConfig(config.AnthropicConfig{
		Model:               "claude-haiku-4-5-20251001",
		MaxTokens:           1024,
		ClassifyTemperature: 0.2,
		ExtractTemperature:  0.1,
		RespondTemperature:  0.7,
		MaxPromptChars:      3000,
	})
}

func TestService_Classify(t *testing.T) {
	gw := &recordingGateway{stubGateway: stubGateway{raw: `{"category":"account","category_confidence":0.9,"severity":"medium","severity_confidence":0.6}`}}
	svc := NewService(gw, testSettings())

	res, usage, err := svc.Classify(context.Background(), "Cannot login", strings.Repeat("x", 5000))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryAccount, res.Category)
	assert.Equal(t, 1, usage.InputTokens)
	assert.InDelta(t, 0.2, gw.last.Temperature, 0.0001)
	assert.Contains(t, gw.last.Prompt, "TICKET SUBJECT: Cannot login")
	assert.NotContains(t, gw.last.Prompt, strings.Repeat("x", 3001), "body is truncated")
}

func TestService_ExtractAndRespond(t *testing.T) {
	gw := &recordingGateway{stubGateway: stubGateway{raw: `{"fields":[{"name":"product_name","value":"Widget","confidence":0.7}]}`}}
	svc := NewService(gw, testSettings())

	fields, _, err := svc.Extract(context.Background(), "s", "b", model.CategoryTechnical)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Contains(t, gw.last.Prompt, "CATEGORY: technical")
	assert.InDelta(t, 0.1, gw.last.Temperature, 0.0001)

	gw.raw = `{"full_response":"Thanks","requires_escalation":false}`
	draft, _, err := svc.Respond(context.Background(), ResponseInput{
		Subject:  "s",
		Category: model.CategoryTechnical,
		Severity: model.SeverityLow,
		Fields:   fields,
		Tone:     model.ToneFormal,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ToneFormal, draft.Tone)
	assert.Contains(t, gw.last.Prompt, `EXTRACTED CONTEXT: {"product_name":"Widget"}`)
	assert.Contains(t, gw.last.Prompt, "Use formal tone")
	assert.Contains(t, gw.last.Prompt, "CUSTOMER_NAME: Customer")
}

func TestService_GatewayError(t *testing.T) {
	svc := NewService(&stubGateway{err: errors.New("boom")}, testSettings())
	_, _, err := svc.Classify(context.Background(), "s", "b")
	assert.Error(t, err)
}
