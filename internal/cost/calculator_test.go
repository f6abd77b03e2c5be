package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

func TestCost(t *testing.T) {
	t.Parallel()
	calc := New(config.PricingConfig{Anthropic: map[string]config.ModelPricing{
		"haiku":  {Input: 0.80, Output: 4.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	}})

	tests := []struct {
		name  string
		model string
		usage model.TokenUsage
		want  float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			usage: model.TokenUsage{InputTokens: 1_000_000, OutputTokens: 100_000},
			want:  0.80 + 0.40,
		},
		{
			name:  "sonnet classify call",
			model: "sonnet",
			usage: model.TokenUsage{InputTokens: 600, OutputTokens: 120},
			want:  600.0/1e6*3.00 + 120.0/1e6*15.00,
		},
		{
			name:  "zero usage",
			model: "haiku",
			want:  0,
		},
		{
			name:  "unknown model",
			model: "gpt-x",
			usage: model.TokenUsage{InputTokens: 1000, OutputTokens: 1000},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Cost(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	calc := Default()

	assert.True(t, calc.Known("claude-haiku-4-5-20251001"))
	assert.False(t, calc.Known("haiku"))
	assert.InDelta(t, 4.80, calc.Cost("claude-haiku-4-5-20251001", model.TokenUsage{InputTokens: 1e6, OutputTokens: 1e6}), 1e-9)
}

func TestNew_OverridesDefaults(t *testing.T) {
	t.Parallel()
	calc := New(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
			"custom-model":              {Input: 2.00, Output: 2.00},
		},
	})

	r, ok := calc.Rate("claude-haiku-4-5-20251001")
	require.True(t, ok)
	assert.Equal(t, config.ModelPricing{Input: 1.00, Output: 5.00}, r)
	r, _ = calc.Rate("custom-model")
	assert.Equal(t, config.ModelPricing{Input: 2.00, Output: 2.00}, r)
	r, _ = calc.Rate("claude-sonnet-4-5-20250929")
	assert.Equal(t, config.ModelPricing{Input: 3.00, Output: 15.00}, r)

	// Overrides stay local to the calculator.
	r, _ = Default().Rate("claude-haiku-4-5-20251001")
	assert.Equal(t, config.ModelPricing{Input: 0.80, Output: 4.00}, r)
}
