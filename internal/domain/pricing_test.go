package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCalculateCost tests cost calculation against the static price table.
func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{
			name:  "one million tokens each way",
			model: "gpt-4.1",
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			want:  10.00,
		},
		{
			name:  "input only",
			model: "claude-opus-4-6",
			usage: Usage{InputTokens: 2_000_000},
			want:  10.00,
		},
		{
			name:  "small call",
			model: "gemini-2.0-flash",
			usage: Usage{InputTokens: 1000, OutputTokens: 500},
			want:  0.0001 + 0.0002,
		},
		{
			name:  "unknown model",
			model: "unknown-model",
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000},
			want:  0,
		},
		{
			name:  "empty usage",
			model: "gpt-4.1",
			usage: Usage{},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCost(tt.model, tt.usage), 1e-12)
		})
	}
}

// TestCatalogPricesEveryModel tests that every selectable model has a price.
func TestCatalogPricesEveryModel(t *testing.T) {
	for provider, models := range AvailableModels() {
		for _, m := range models {
			_, ok := PriceFor(m)
			assert.True(t, ok, "%s model %s has no price", provider, m)
		}
	}
}

// TestPricingReturnsCopy tests that callers cannot mutate the shared table.
func TestPricingReturnsCopy(t *testing.T) {
	p := Pricing()
	p["gpt-4.1"] = ModelPrice{}

	got, ok := PriceFor("gpt-4.1")
	assert.True(t, ok)
	assert.Equal(t, ModelPrice{Input: 2.00, Output: 8.00}, got)
}

// TestTruncateRunes tests rune-aware truncation.
func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", TruncateRunes("abcdef", 3))
	assert.Equal(t, "abc", TruncateRunes("abc", 5))
	assert.Equal(t, "日本", TruncateRunes("日本語", 2))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}
