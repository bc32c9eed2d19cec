package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ahrav/go-council/internal/domain"
)

// openAIProvider implements Provider for OpenAI's chat completions API.
// Every model id that is neither Claude nor Gemini lands here.
type openAIProvider struct {
	client *openai.Client
	loop   LoopConfig
}

// newOpenAIProvider creates the OpenAI adapter.
func newOpenAIProvider(config ClientConfig, loop LoopConfig) (Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrEmptyAPIKey)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)

	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		clientConfig.BaseURL = validatedURL
	}

	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{
			Timeout: ValidateTimeout(config.Timeout),
		}
	}

	return &openAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		loop:   loop.withDefaults(),
	}, nil
}

// Name returns the provider family name.
func (p *openAIProvider) Name() string { return FamilyOpenAI }

// Send issues the request, running the tool loop when tools are supplied.
func (p *openAIProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:           req.Model,
		Messages:        openAIMessages(req),
		ReasoningEffort: openAIReasoningEffort(req.Model, req.ReasoningEffort),
	}
	tools := openAITools(req.Tools)
	loop := newToolLoop(req.Tools, p.loop.ToolResultLimit)

	for round := 0; round < loop.rounds(p.loop); round++ {
		chatReq.Tools = tools
		resp, err := p.complete(ctx, chatReq)
		if err != nil {
			return nil, err
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return openAIResponse(resp, loop), nil
		}

		chatReq.Messages = append(chatReq.Messages, msg)
		for _, call := range msg.ToolCalls {
			args := decodeToolArgs(json.RawMessage(call.Function.Arguments))
			out := loop.execute(ctx, call.Function.Name, args)
			chatReq.Messages = append(chatReq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    out,
			})
		}
	}

	chatReq.Tools = nil
	resp, err := p.complete(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	return openAIResponse(resp, loop), nil
}

func (p *openAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return resp, p.handleError(err)
	}
	if len(resp.Choices) == 0 {
		return resp, NewProviderError(FamilyOpenAI, ErrorTypeServerError, 0, "empty completion", ErrNoResponseChoice)
	}
	return resp, nil
}

// openAIMessages builds the message list, encoding images as data-URL parts.
func openAIMessages(req domain.ChatRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)

	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, turn := range req.Turns {
		msg := openai.ChatCompletionMessage{Role: string(turn.Role)}
		if len(turn.Images) == 0 {
			msg.Content = turn.Text
			messages = append(messages, msg)
			continue
		}
		msg.MultiContent = []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: turn.Text}}
		for _, img := range turn.Images {
			msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, img.Base64Data),
				},
			})
		}
		messages = append(messages, msg)
	}
	return messages
}

func openAITools(defs []domain.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  toolSchema(def),
			},
		})
	}
	return tools
}

func openAIResponse(resp openai.ChatCompletionResponse, loop *toolLoop) *domain.ModelResponse {
	return &domain.ModelResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		ToolCalls: loop.calls(),
	}
}

// handleError maps go-openai failures to ProviderErrors.
func (p *openAIProvider) handleError(err error) error {
	if isContextError(err) {
		return contextError(FamilyOpenAI, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(FamilyOpenAI, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(FamilyOpenAI, reqErr.HTTPStatusCode, reqErr.HTTPStatus, err)
	}

	return NewProviderError(FamilyOpenAI, ErrorTypeNetwork, 0, "request failed", err)
}
