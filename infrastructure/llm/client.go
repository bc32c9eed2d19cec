// Package llm adapts the Anthropic, OpenAI, and Google chat APIs to one
// provider-neutral request/response contract.
//
// Each provider family owns its wire encoding, its multimodal format, and
// its bounded tool-use loop. A Router selects the family for a model id and
// converts every failure into a domain.AbstentionError, so callers never see
// a raw transport or SDK error.
//
// Cross-cutting behavior is layered on with middleware:
//
//	router, err := llm.NewRouter(llm.RouterConfig{
//	    OpenAI:    llm.ClientConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
//	    Anthropic: llm.ClientConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")},
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("council"),
//	        llm.MetricsMiddleware(collector),
//	        llm.RateLimitMiddleware(5, 10),
//	    },
//	})
//	resp, err := router.Send(ctx, domain.ChatRequest{Model: "gpt-4.1", Turns: turns})
package llm

import (
	"context"
	"time"

	"github.com/ahrav/go-council/internal/domain"
)

// Provider family names.
const (
	FamilyAnthropic = "anthropic"
	FamilyOpenAI    = "openai"
	FamilyGoogle    = "google"
)

// Provider is one provider family's chat adapter. Send returns a
// ModelResponse or an error; the Router turns errors into abstentions.
type Provider interface {
	Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error)

	// Name returns the provider family name.
	Name() string
}

// Middleware wraps a Provider to add cross-cutting functionality.
// This pattern allows composition of features like rate limiting, circuit
// breaking, metrics collection, and tracing without modifying adapters.
type Middleware func(Provider) Provider

// Chain applies middleware so the first element is the outermost wrapper.
func Chain(p Provider, middleware ...Middleware) Provider {
	for i := len(middleware) - 1; i >= 0; i-- {
		p = middleware[i](p)
	}
	return p
}

// ClientConfig holds the settings for one provider family's client.
type ClientConfig struct {
	// APIKey authenticates requests. An empty key leaves the family
	// unconfigured, and its models abstain.
	APIKey string

	// BaseURL overrides the default API endpoint for the provider.
	BaseURL string

	// Timeout bounds each HTTP request made by the SDK. Zero leaves the
	// SDK default in place; the dispatcher enforces per-call deadlines.
	Timeout time.Duration

	// UseVertexAI selects the Vertex AI backend for the Google family.
	UseVertexAI bool
	// Project and Location address the Vertex AI backend.
	Project  string
	Location string
}

// configured reports whether the family has enough settings to build a client.
func (c ClientConfig) configured() bool {
	if c.UseVertexAI && c.Project != "" {
		return true
	}
	return c.APIKey != ""
}

// LoopConfig bounds the tool-use loop shared by every adapter.
type LoopConfig struct {
	// MaxToolRounds is the number of requests that carry tool schemas
	// before a final tool-less request is forced.
	MaxToolRounds int
	// ToolResultLimit caps the characters kept in a ToolCallRecord.
	ToolResultLimit int
}

func (c LoopConfig) withDefaults() LoopConfig {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.ToolResultLimit <= 0 {
		c.ToolResultLimit = DefaultToolResultLimit
	}
	return c
}
