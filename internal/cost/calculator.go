package cost

import (
	"maps"

	"github.com/sells-group/ticket-workflow/internal/config"
	"github.com/sells-group/ticket-workflow/internal/model"
)

// defaultRates are list prices in USD per million tokens.
var defaultRates = map[string]config.ModelPricing{
	"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
	"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
}

// Calculator prices token usage per model.
type Calculator struct {
	rates map[string]config.ModelPricing
}

// Default returns a Calculator with list prices only.
func Default() *Calculator {
	return &Calculator{rates: maps.Clone(defaultRates)}
}

// New returns a Calculator whose configured rates override or extend the
// list prices.
func New(pricing config.PricingConfig) *Calculator {
	c := Default()
	maps.Copy(c.rates, pricing.Anthropic)
	return c
}

// Rate returns the pricing for modelName.
func (c *Calculator) Rate(modelName string) (config.ModelPricing, bool) {
	r, ok := c.rates[modelName]
	return r, ok
}

// Known reports whether modelName has a rate.
func (c *Calculator) Known(modelName string) bool {
	_, ok := c.rates[modelName]
	return ok
}

// Cost prices usage on modelName. Unknown models cost 0.
func (c *Calculator) Cost(modelName string, usage model.TokenUsage) float64 {
	r, ok := c.rates[modelName]
	if !ok {
		return 0
	}
	return (float64(usage.InputTokens)*r.Input + float64(usage.OutputTokens)*r.Output) / 1e6
}
