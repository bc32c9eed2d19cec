// Package domain holds the value types shared by every layer of the council:
// conversation turns sent to models, normalized model responses, per-stage
// results, and the static model catalog used for cost accounting.
package domain

import (
	"context"
	"unicode/utf8"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user or by the pipeline on
	// the user's behalf.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by a model.
	RoleAssistant Role = "assistant"
)

// Image is an inline image attached to a turn.
type Image struct {
	MIMEType   string `json:"mime_type"`
	Base64Data string `json:"base64_data"`
}

// Turn is one provider-neutral conversation message.
type Turn struct {
	Role   Role    `json:"role"`
	Text   string  `json:"content"`
	Images []Image `json:"images,omitempty"`
}

// UserTurn builds a user turn with optional images.
func UserTurn(text string, images ...Image) Turn {
	return Turn{Role: RoleUser, Text: text, Images: images}
}

// ReasoningEffort is a provider-neutral hint for how much hidden reasoning a
// model should spend before answering.
type ReasoningEffort string

const (
	ReasoningOff    ReasoningEffort = "off"
	ReasoningLow    ReasoningEffort = "low"
	ReasoningMedium ReasoningEffort = "medium"
	ReasoningHigh   ReasoningEffort = "high"
)

// Enabled reports whether the effort asks for any reasoning at all.
func (r ReasoningEffort) Enabled() bool { return r != "" && r != ReasoningOff }

// Usage is the normalized token accounting for one model reply.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// IsZero reports whether no tokens were recorded.
func (u Usage) IsZero() bool { return u.InputTokens == 0 && u.OutputTokens == 0 }

// ToolCallRecord captures one tool invocation made while answering.
type ToolCallRecord struct {
	ToolName   string         `json:"tool"`
	Arguments  map[string]any `json:"args"`
	ResultText string         `json:"result"`
}

// ModelResponse is the normalized result of one successful provider call.
// Content may be empty; a failed call is never represented by a ModelResponse.
type ModelResponse struct {
	Content   string           `json:"content"`
	Usage     Usage            `json:"usage"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// ToolHandler executes a tool with model-supplied arguments and returns the
// text fed back to the model.
type ToolHandler func(ctx context.Context, args map[string]any) (string, error)

// ToolDefinition describes a tool a model may invoke during Stage 1.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     ToolHandler    `json:"-"`
}

// ConnectorFetcher produces context text from user-supplied connector config.
type ConnectorFetcher func(ctx context.Context, config map[string]any) (string, error)

// ConnectorDefinition describes a connector that injects context before the
// council is queried.
type ConnectorDefinition struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Type         string           `json:"type"`
	ConfigSchema map[string]any   `json:"config_schema"`
	Fetcher      ConnectorFetcher `json:"-"`
}

// ChatRequest is the provider-neutral request accepted by every ChatProvider.
type ChatRequest struct {
	Model           string
	Turns           []Turn
	SystemPrompt    string
	Tools           []ToolDefinition
	ReasoningEffort ReasoningEffort
}

// TruncateRunes returns at most limit runes of s.
func TruncateRunes(s string, limit int) string {
	if limit < 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
