package domain

// ModelPrice is the USD price per one million tokens.
type ModelPrice struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// modelPricing is the static price table, keyed by model id.
var modelPricing = map[string]ModelPrice{
	// Anthropic
	"claude-opus-4-6":           {Input: 5.00, Output: 25.00},
	"claude-sonnet-4-6":         {Input: 3.00, Output: 15.00},
	"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
	// OpenAI
	"gpt-5.2-pro":  {Input: 21.00, Output: 168.00},
	"gpt-5.2":      {Input: 1.75, Output: 14.00},
	"gpt-5-mini":   {Input: 0.25, Output: 2.00},
	"gpt-4.1":      {Input: 2.00, Output: 8.00},
	"gpt-4.1-mini": {Input: 0.40, Output: 1.60},
	"gpt-4.1-nano": {Input: 0.10, Output: 0.40},
	"o4-mini":      {Input: 1.10, Output: 4.40},
	"o3":           {Input: 2.00, Output: 8.00},
	// Google
	"gemini-3.1-pro-preview": {Input: 2.00, Output: 12.00},
	"gemini-3-flash-preview": {Input: 0.50, Output: 3.00},
	"gemini-2.5-pro":         {Input: 1.25, Output: 10.00},
	"gemini-2.5-flash":       {Input: 0.30, Output: 2.50},
	"gemini-2.0-flash":       {Input: 0.10, Output: 0.40},
}

// ProviderModels lists the selectable models grouped by provider display name.
type ProviderModels map[string][]string

// availableModels is the catalog offered to clients.
var availableModels = ProviderModels{
	"Anthropic": {
		"claude-opus-4-6",
		"claude-sonnet-4-6",
		"claude-haiku-4-5-20251001",
	},
	"OpenAI": {
		"gpt-5.2-pro",
		"gpt-5.2",
		"gpt-5-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4.1-nano",
		"o4-mini",
		"o3",
	},
	"Google": {
		"gemini-3.1-pro-preview",
		"gemini-3-flash-preview",
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash",
	},
}

// PriceFor returns the price of model and whether it is known.
func PriceFor(model string) (ModelPrice, bool) {
	p, ok := modelPricing[model]
	return p, ok
}

// Pricing returns a copy of the full price table.
func Pricing() map[string]ModelPrice {
	out := make(map[string]ModelPrice, len(modelPricing))
	for k, v := range modelPricing {
		out[k] = v
	}
	return out
}

// AvailableModels returns a copy of the model catalog.
func AvailableModels() ProviderModels {
	out := make(ProviderModels, len(availableModels))
	for provider, models := range availableModels {
		out[provider] = append([]string(nil), models...)
	}
	return out
}

// CalculateCost returns the USD cost of usage on model. Unknown models and
// empty usage cost nothing.
func CalculateCost(model string, usage Usage) float64 {
	if usage.IsZero() {
		return 0
	}
	price, ok := modelPricing[model]
	if !ok {
		return 0
	}
	in := float64(usage.InputTokens) / 1_000_000 * price.Input
	out := float64(usage.OutputTokens) / 1_000_000 * price.Output
	return in + out
}
