// Package tools provides the tools council models may call while answering
// and the connectors that gather context before the council is queried.
//
// Both registries are explicit values built once at startup; nothing
// registers itself from init.
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// DefaultSearchURL is the SerpAPI endpoint used by web search.
const DefaultSearchURL = "https://serpapi.com/search.json"

// DefaultFetchTimeout bounds every outbound HTTP request made by a tool or
// connector.
const DefaultFetchTimeout = 15 * time.Second

// Registration errors.
var (
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrNilHandler    = errors.New("handler cannot be nil")
	ErrDuplicateName = errors.New("name already registered")
)

// Config holds what the built-in tools and connectors need from the process
// configuration.
type Config struct {
	// SearchAPIKey enables web search. Without it the search tool and
	// connector answer with a not-configured message.
	SearchAPIKey string
	// SearchURL overrides DefaultSearchURL.
	SearchURL string
	// HTTPClient is used for every outbound request. A client with
	// DefaultFetchTimeout is created when nil.
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.SearchURL == "" {
		c.SearchURL = DefaultSearchURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return c
}

var tracer = otel.Tracer("council-tools")

// Registry is the set of tools a turn may enable.
type Registry struct {
	byName map[string]domain.ToolDefinition
	order  []string
}

var _ ports.ToolLookup = (*Registry)(nil)

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]domain.ToolDefinition)}
}

// Register adds def. Every execution of the tool is traced.
func (r *Registry) Register(def domain.ToolDefinition) error {
	if def.Name == "" {
		return ErrEmptyName
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: %w", def.Name, ErrNilHandler)
	}
	if _, dup := r.byName[def.Name]; dup {
		return fmt.Errorf("tool %s: %w", def.Name, ErrDuplicateName)
	}
	def.Handler = traceTool(def.Name, def.Handler)
	r.byName[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Lookup returns the tool called name.
func (r *Registry) Lookup(name string) (domain.ToolDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Tools returns every tool in registration order.
func (r *Registry) Tools() []domain.ToolDefinition {
	out := make([]domain.ToolDefinition, len(r.order))
	for i, name := range r.order {
		out[i] = r.byName[name]
	}
	return out
}

// ConnectorRegistry is the set of connectors a turn may enable.
type ConnectorRegistry struct {
	byName map[string]domain.ConnectorDefinition
	order  []string
}

var _ ports.ConnectorRunner = (*ConnectorRegistry)(nil)

// NewConnectorRegistry creates an empty connector registry.
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{byName: make(map[string]domain.ConnectorDefinition)}
}

// Register adds def. Every fetch is traced.
func (r *ConnectorRegistry) Register(def domain.ConnectorDefinition) error {
	if def.Name == "" {
		return ErrEmptyName
	}
	if def.Fetcher == nil {
		return fmt.Errorf("connector %s: %w", def.Name, ErrNilHandler)
	}
	if _, dup := r.byName[def.Name]; dup {
		return fmt.Errorf("connector %s: %w", def.Name, ErrDuplicateName)
	}
	if def.Type == "" {
		def.Type = ConnectorTypeSimple
	}
	def.Fetcher = traceConnector(def.Name, def.Fetcher)
	r.byName[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Connector returns the connector called name.
func (r *ConnectorRegistry) Connector(name string) (domain.ConnectorDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Connectors returns every connector in registration order.
func (r *ConnectorRegistry) Connectors() []domain.ConnectorDefinition {
	out := make([]domain.ConnectorDefinition, len(r.order))
	for i, name := range r.order {
		out[i] = r.byName[name]
	}
	return out
}

// NewDefaultRegistry returns a registry holding web_search, url_fetch and
// calculator.
func NewDefaultRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := NewRegistry()
	for _, def := range []domain.ToolDefinition{
		webSearchTool(newSearchClient(cfg)),
		urlFetchTool(cfg.HTTPClient),
		calculatorTool(),
	} {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// NewDefaultConnectors returns a registry holding web_search_prequery,
// url_content and rest_api.
func NewDefaultConnectors(cfg Config) *ConnectorRegistry {
	cfg = cfg.withDefaults()
	r := NewConnectorRegistry()
	for _, def := range []domain.ConnectorDefinition{
		webSearchPrequeryConnector(newSearchClient(cfg)),
		urlContentConnector(cfg.HTTPClient),
		restAPIConnector(cfg.HTTPClient),
	} {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

func traceTool(name string, h domain.ToolHandler) domain.ToolHandler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		ctx, span := tracer.Start(ctx, "tool."+name,
			trace.WithAttributes(attribute.String("tool.name", name)))
		defer span.End()

		out, err := h(ctx, args)
		finishSpan(span, len(out), err)
		return out, err
	}
}

func traceConnector(name string, f domain.ConnectorFetcher) domain.ConnectorFetcher {
	return func(ctx context.Context, config map[string]any) (string, error) {
		ctx, span := tracer.Start(ctx, "connector."+name,
			trace.WithAttributes(attribute.String("connector.name", name)))
		defer span.End()

		out, err := f(ctx, config)
		finishSpan(span, len(out), err)
		return out, err
	}
}

func finishSpan(span trace.Span, size int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("result.bytes", size))
	span.SetStatus(codes.Ok, "")
}
