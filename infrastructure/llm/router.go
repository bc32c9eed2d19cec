package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// FamilyFor returns the provider family that serves model. Ids beginning
// with "claude" go to Anthropic, ids containing "gemini" go to Google, and
// everything else goes to OpenAI.
func FamilyFor(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return FamilyAnthropic
	case strings.Contains(model, "gemini"):
		return FamilyGoogle
	default:
		return FamilyOpenAI
	}
}

// RouterConfig holds the per-family client settings and the middleware
// applied to every configured family.
type RouterConfig struct {
	OpenAI    ClientConfig
	Anthropic ClientConfig
	Google    ClientConfig

	Loop LoopConfig

	// Middleware is applied to each family's adapter; the first element is
	// the outermost wrapper. Each family gets its own middleware instances.
	Middleware []Middleware

	Logger zerolog.Logger
}

// Router is the routing ChatProvider. It holds one client per provider
// family, built once at startup, and converts every failure into a
// domain.AbstentionError.
type Router struct {
	providers map[string]Provider
	logger    zerolog.Logger
}

var _ ports.ChatProvider = (*Router)(nil)

// NewRouter builds a client for every family with credentials. Families
// without credentials stay unconfigured and their models abstain.
func NewRouter(ctx context.Context, cfg RouterConfig) (*Router, error) {
	providers := make(map[string]Provider, 3)

	if cfg.Anthropic.configured() {
		p, err := newAnthropicProvider(cfg.Anthropic, cfg.Loop)
		if err != nil {
			return nil, err
		}
		providers[FamilyAnthropic] = p
	}
	if cfg.OpenAI.configured() {
		p, err := newOpenAIProvider(cfg.OpenAI, cfg.Loop)
		if err != nil {
			return nil, err
		}
		providers[FamilyOpenAI] = p
	}
	if cfg.Google.configured() {
		p, err := newGoogleProvider(ctx, cfg.Google, cfg.Loop)
		if err != nil {
			return nil, err
		}
		providers[FamilyGoogle] = p
	}

	return NewRouterWithProviders(providers, cfg.Middleware, cfg.Logger), nil
}

// NewRouterWithProviders builds a Router from already constructed adapters,
// keyed by family name.
func NewRouterWithProviders(providers map[string]Provider, middleware []Middleware, logger zerolog.Logger) *Router {
	wrapped := make(map[string]Provider, len(providers))
	for family, p := range providers {
		if p == nil {
			continue
		}
		wrapped[family] = Chain(p, middleware...)
	}
	return &Router{providers: wrapped, logger: logger}
}

// Configured reports whether the family serving model has a client.
func (r *Router) Configured(model string) bool {
	_, ok := r.providers[FamilyFor(model)]
	return ok
}

// Send routes req to its family's adapter. Any failure, including missing
// credentials, is returned as a *domain.AbstentionError.
func (r *Router) Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error) {
	family := FamilyFor(req.Model)

	p, ok := r.providers[family]
	if !ok {
		err := fmt.Errorf("%s: %w", family, domain.ErrCredentialsMissing)
		r.logAbstention(req.Model, family, err)
		return nil, domain.NewAbstention(req.Model, err)
	}

	resp, err := p.Send(ctx, req)
	if err != nil {
		r.logAbstention(req.Model, family, err)
		return nil, domain.NewAbstention(req.Model, err)
	}
	return resp, nil
}

func (r *Router) logAbstention(model, family string, err error) {
	r.logger.Warn().
		Str("model", model).
		Str("provider", family).
		Err(err).
		Msg("model abstained")
}
