package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-council/internal/domain"
)

// DefaultGCPLocation is the Vertex AI region used when none is configured.
const DefaultGCPLocation = "us-central1"

// googleProvider implements Provider for the Gemini API, either through an
// API key or through Vertex AI.
type googleProvider struct {
	client *genai.Client
	loop   LoopConfig
}

// newGoogleProvider creates the Gemini adapter.
func newGoogleProvider(ctx context.Context, config ClientConfig, loop LoopConfig) (Provider, error) {
	authConfig, err := buildAuthConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}

	client, err := genai.NewClient(ctx, authConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		client: client,
		loop:   loop.withDefaults(),
	}, nil
}

// buildAuthConfig selects Vertex AI when a project is configured for it and
// API-key access otherwise.
func buildAuthConfig(config ClientConfig) (*genai.ClientConfig, error) {
	var cc *genai.ClientConfig
	switch {
	case config.UseVertexAI && config.Project != "":
		location := config.Location
		if location == "" {
			location = DefaultGCPLocation
		}
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  config.Project,
			Location: location,
		}
	case config.APIKey != "":
		cc = &genai.ClientConfig{
			APIKey:  config.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	default:
		return nil, ErrEmptyAPIKey
	}

	if config.BaseURL != "" {
		baseURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions.BaseURL = baseURL
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: ValidateTimeout(config.Timeout)}
	}
	return cc, nil
}

// Name returns the provider family name.
func (p *googleProvider) Name() string { return FamilyGoogle }

// Send issues the request, running the tool loop when tools are supplied.
func (p *googleProvider) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	contents, err := googleContents(req.Turns)
	if err != nil {
		return nil, NewProviderError(FamilyGoogle, ErrorTypeBadRequest, 0, "invalid image payload", err)
	}
	config := googleConfig(req)
	tools := googleTools(req.Tools)
	loop := newToolLoop(req.Tools, p.loop.ToolResultLimit)

	for round := 0; round < loop.rounds(p.loop); round++ {
		config.Tools = tools
		resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
		if err != nil {
			return nil, p.handleError(err)
		}

		calls := functionCalls(resp)
		if len(calls) == 0 {
			return googleResponse(resp, loop), nil
		}

		contents = append(contents, resp.Candidates[0].Content)
		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out := loop.execute(ctx, call.Name, call.Args)
			parts = append(parts, genai.NewPartFromFunctionResponse(call.Name, map[string]any{"result": out}))
		}
		contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
	}

	config.Tools = nil
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, p.handleError(err)
	}
	return googleResponse(resp, loop), nil
}

// googleContents converts turns, mapping the assistant role to "model" and
// decoding images into inline blobs.
func googleContents(turns []domain.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		role := genai.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		parts := []*genai.Part{{Text: turn.Text}}
		for _, img := range turn.Images {
			data, err := base64.StdEncoding.DecodeString(img.Base64Data)
			if err != nil {
				return nil, err
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: data}})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

func googleConfig(req domain.ChatRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if budget, ok := ThinkingBudget(req.ReasoningEffort); ok && googleSupportsThinking(req.Model) {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(budget))}
	}
	return config
}

func googleTools(defs []domain.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 def.Name,
			Description:          def.Description,
			ParametersJsonSchema: toolSchema(def),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func functionCalls(resp *genai.GenerateContentResponse) []*genai.FunctionCall {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []*genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.FunctionCall != nil {
			calls = append(calls, part.FunctionCall)
		}
	}
	return calls
}

func googleResponse(resp *genai.GenerateContentResponse, loop *toolLoop) *domain.ModelResponse {
	out := &domain.ModelResponse{Content: resp.Text(), ToolCalls: loop.calls()}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = domain.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out
}

// handleError maps genai and googleapi failures to ProviderErrors. Safety
// blocks are reported as content policy abstentions.
func (p *googleProvider) handleError(err error) error {
	if isContextError(err) {
		return contextError(FamilyGoogle, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if isSafetyMessage(apiErr.Message) {
			return NewProviderError(FamilyGoogle, ErrorTypeContentPolicy, apiErr.Code,
				"request blocked by safety filters", err)
		}
		return statusError(FamilyGoogle, apiErr.Code, apiErr.Message, err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		message := gErr.Message
		if message == "" && len(gErr.Errors) > 0 {
			message = gErr.Errors[0].Message
		}
		if containsContentPolicyError(gErr) {
			return NewProviderError(FamilyGoogle, ErrorTypeContentPolicy, gErr.Code,
				"request blocked by safety filters", err)
		}
		return statusError(FamilyGoogle, gErr.Code, message, err)
	}

	return NewProviderError(FamilyGoogle, ErrorTypeNetwork, 0, "request failed", err)
}

// isContextError checks if an error is a context-related error, such as a
// deadline exceeded or cancellation.
func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func isSafetyMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "blocked")
}

// containsContentPolicyError checks if a Google API error is related to
// content policy violations.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if isSafetyMessage(apiErr.Message) {
		return true
	}
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	return false
}
