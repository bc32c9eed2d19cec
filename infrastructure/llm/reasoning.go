package llm

import (
	"strings"

	"github.com/ahrav/go-council/internal/domain"
)

// defaultThinkingBudget is used for effort levels outside the known set.
const defaultThinkingBudget = 8192

// thinkingBudgets maps reasoning effort to a thinking token budget for the
// providers that expose one (Anthropic extended thinking, Gemini thinking).
var thinkingBudgets = map[domain.ReasoningEffort]int{
	domain.ReasoningLow:    2048,
	domain.ReasoningMedium: 8192,
	domain.ReasoningHigh:   32768,
}

// ThinkingBudget returns the token budget for effort and whether reasoning
// is requested at all.
func ThinkingBudget(effort domain.ReasoningEffort) (int, bool) {
	if !effort.Enabled() {
		return 0, false
	}
	if b, ok := thinkingBudgets[effort]; ok {
		return b, true
	}
	return defaultThinkingBudget, true
}

// openAIReasoningEffort returns the reasoning_effort value to send, or ""
// when the model is not a reasoning model or no effort was requested.
func openAIReasoningEffort(model string, effort domain.ReasoningEffort) string {
	if !effort.Enabled() {
		return ""
	}
	for _, prefix := range []string{"o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return string(effort)
		}
	}
	return ""
}

// googleSupportsThinking reports whether a Gemini model accepts a thinking budget.
func googleSupportsThinking(model string) bool {
	return strings.Contains(model, "2.5") || strings.Contains(model, "3")
}
