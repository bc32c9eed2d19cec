package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-council/internal/domain"
)

// anthropicMaxTokens is the output budget for every Messages request.
const anthropicMaxTokens = 8192

// anthropicProvider implements Provider for Anthropic's Messages API.
// It handles image blocks, tool_use/tool_result round trips, and the
// extended-thinking budget.
type anthropicProvider struct {
	client anthropic.Client
	loop   LoopConfig
}

// newAnthropicProvider creates the Anthropic adapter. The SDK's own retries
// are disabled so a failed call abstains immediately.
func newAnthropicProvider(config ClientConfig, loop LoopConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrEmptyAPIKey)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(ValidateTimeout(config.Timeout)))
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		loop:   loop.withDefaults(),
	}, nil
}

// Name returns the provider family name.
func (p *anthropicProvider) Name() string { return FamilyAnthropic }

// Send issues the request, running the tool loop when tools are supplied.
func (p *anthropicProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	params := p.buildParams(req)
	tools := anthropicTools(req.Tools)
	loop := newToolLoop(req.Tools, p.loop.ToolResultLimit)

	for round := 0; round < loop.rounds(p.loop); round++ {
		params.Tools = tools
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, p.handleError(err)
		}

		uses := toolUseBlocks(msg)
		if len(uses) == 0 {
			return anthropicResponse(msg, loop), nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		results := make([]anthropic.ContentBlockParamUnion, 0, len(uses))
		for _, use := range uses {
			out := loop.execute(ctx, use.Name, decodeToolArgs(use.Input))
			results = append(results, anthropic.NewToolResultBlock(use.ID, out, false))
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(results...))
	}

	// Final request without tool schemas so the model must answer in text.
	params.Tools = nil
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.handleError(err)
	}
	return anthropicResponse(msg, loop), nil
}

// buildParams translates the neutral request into Messages API parameters.
func (p *anthropicProvider) buildParams(req domain.ChatRequest) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Turns))
	for _, turn := range req.Turns {
		blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(turn.Text)}
		for _, img := range turn.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIMEType, img.Base64Data))
		}
		if turn.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if budget, ok := ThinkingBudget(req.ReasoningEffort); ok {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
		params.MaxTokens = int64(max(anthropicMaxTokens, budget+anthropicMaxTokens))
	}
	return params
}

func anthropicTools(defs []domain.ToolDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := toolSchema(def)
		input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
		input.Required = requiredFields(schema)
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: input,
			},
		})
	}
	return tools
}

func toolUseBlocks(msg *anthropic.Message) []anthropic.ToolUseBlock {
	var uses []anthropic.ToolUseBlock
	for _, block := range msg.Content {
		if use, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			uses = append(uses, use)
		}
	}
	return uses
}

// anthropicResponse takes the text of the first text block and the usage of
// this reply.
func anthropicResponse(msg *anthropic.Message, loop *toolLoop) *domain.ModelResponse {
	var text string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text = tb.Text
			break
		}
	}
	return &domain.ModelResponse{
		Content: text,
		Usage: domain.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		ToolCalls: loop.calls(),
	}
}

// handleError classifies Anthropic SDK errors into ProviderErrors.
func (p *anthropicProvider) handleError(err error) error {
	if isContextError(err) {
		return contextError(FamilyAnthropic, err)
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return statusError(FamilyAnthropic, apiErr.StatusCode, "", err)
	}

	return NewProviderError(FamilyAnthropic, ErrorTypeNetwork, 0, "request failed", err)
}

// decodeToolArgs parses model-supplied tool arguments, tolerating bad JSON.
func decodeToolArgs(raw json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(raw) == 0 {
		return args
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return map[string]any{}
	}
	return args
}

// requiredFields reads the "required" list of a JSON schema.
func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
