package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/observability"
	"github.com/ahrav/go-council/internal/ports"
)

// ConnectorRequest enables one connector for a turn.
type ConnectorRequest struct {
	Name   string         `json:"name" validate:"required"`
	Config map[string]any `json:"config"`
}

// SendMessageRequest is one user turn submitted to a conversation.
type SendMessageRequest struct {
	Content       string   `json:"content" validate:"required"`
	CouncilModels []string `json:"council_models" validate:"required,min=1,max=26,dive,modelid"`
	ChairmanModel string   `json:"chairman_model" validate:"required,modelid"`
	SystemPrompt  string   `json:"system_prompt"`

	PreviousIteration       *domain.PreviousIteration `json:"previous_iteration"`
	ProvideContextToCouncil bool                      `json:"provide_context_to_council"`

	EnabledTools      []string           `json:"enabled_tools"`
	EnabledConnectors []ConnectorRequest `json:"enabled_connectors" validate:"dive"`

	ReasoningEffort domain.ReasoningEffort `json:"reasoning_effort" validate:"effort"`
}

// TurnService runs conversation turns end to end: persistence, title
// generation, context gathering, the pipeline, and the event stream.
type TurnService struct {
	council    *Council
	store      ports.ConversationStore
	files      ports.FileContextProvider
	tools      ports.ToolLookup
	connectors ports.ConnectorRunner
	logger     zerolog.Logger
}

// TurnDeps are the collaborators of a TurnService. Files, Tools, and
// Connectors may be nil.
type TurnDeps struct {
	Store      ports.ConversationStore
	Files      ports.FileContextProvider
	Tools      ports.ToolLookup
	Connectors ports.ConnectorRunner
	Logger     zerolog.Logger
}

// NewTurnService creates a turn service.
func NewTurnService(council *Council, deps TurnDeps) *TurnService {
	return &TurnService{
		council:    council,
		store:      deps.Store,
		files:      deps.Files,
		tools:      deps.Tools,
		connectors: deps.Connectors,
		logger:     deps.Logger,
	}
}

// StreamMessage runs one turn and reports its progress to sink.
//
// An unknown conversation or an invalid request is returned as an error
// before any event is emitted. Once streaming has begun, every failure is
// reported as a single EventError and StreamMessage returns nil.
func (s *TurnService) StreamMessage(ctx context.Context, conversationID string, req SendMessageRequest, sink EventSink) error {
	conv, req, err := s.prepare(ctx, conversationID, req)
	if err != nil {
		return err
	}

	logger := observability.WithTurnID(s.logger, uuid.NewString()).With().
		Str("conversation_id", conversationID).Logger()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("turn panicked: %v", r)
			logger.Error().Err(err).Msg("turn failed")
			_ = sink.Emit(ctx, Event{Type: EventError, Message: err.Error()})
		}
	}()

	if _, err := s.run(ctx, conv, req, sink, logger); err != nil {
		logger.Error().Err(err).Msg("turn failed")
		_ = sink.Emit(ctx, Event{Type: EventError, Message: err.Error()})
	}
	return nil
}

// SendMessage runs one turn to completion and returns every stage.
func (s *TurnService) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (*RunResult, error) {
	conv, req, err := s.prepare(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}
	logger := observability.WithTurnID(s.logger, uuid.NewString()).With().
		Str("conversation_id", conversationID).Logger()
	return s.run(ctx, conv, req, discardSink{}, logger)
}

func (s *TurnService) prepare(ctx context.Context, conversationID string, req SendMessageRequest) (*domain.Conversation, SendMessageRequest, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, req, err
	}

	cfg := s.council.Config()
	if len(req.CouncilModels) == 0 {
		req.CouncilModels = append([]string(nil), cfg.DefaultCouncilModels...)
	}
	if req.ChairmanModel == "" {
		req.ChairmanModel = cfg.DefaultChairmanModel
	}
	if err := validate.Struct(req); err != nil {
		return nil, req, toValidationError("message", err)
	}
	return conv, req, nil
}

func (s *TurnService) run(
	ctx context.Context,
	conv *domain.Conversation,
	req SendMessageRequest,
	sink EventSink,
	logger zerolog.Logger,
) (*RunResult, error) {
	firstTurn := len(conv.Messages) == 0

	if err := s.store.AppendUserMessage(ctx, conv.ID, req.Content); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	var titles chan string
	if firstTurn {
		titles = make(chan string, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					titles <- domain.DefaultConversationTitle
				}
			}()
			titles <- s.council.GenerateTitle(context.WithoutCancel(ctx), req.Content)
		}()
	}

	in := RunInput{
		Query:           req.Content,
		CouncilModels:   req.CouncilModels,
		ChairmanModel:   req.ChairmanModel,
		SystemPrompt:    req.SystemPrompt,
		ReasoningEffort: req.ReasoningEffort,
		Previous:        req.PreviousIteration,
	}
	if req.PreviousIteration != nil && req.ProvideContextToCouncil {
		in.CouncilQuery = withPreviousContext(req.Content, req.PreviousIteration)
	}

	if s.files != nil {
		fileContext, images, err := s.files.GetContext(ctx, conv.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load file context: %w", err)
		}
		in.FileContext, in.Images = fileContext, images
	}
	if connectorContext := s.runConnectors(ctx, req.EnabledConnectors, logger); connectorContext != "" {
		in.FileContext = connectorContext + in.FileContext
	}
	in.Tools = s.resolveTools(req.EnabledTools)

	joinTitle := func(ctx context.Context) error {
		if titles == nil {
			return nil
		}
		var title string
		select {
		case title = <-titles:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.store.UpdateTitle(ctx, conv.ID, title); err != nil {
			return fmt.Errorf("failed to save title: %w", err)
		}
		return sink.Emit(ctx, Event{Type: EventTitleComplete, Data: TitleData{Title: title}})
	}

	result, err := s.council.Stream(ctx, in, sink, joinTitle)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendAssistantMessage(ctx, conv.ID, domain.AssistantMessage{
		Stage1: result.Stage1,
		Stage2: result.Stage2,
		Stage3: result.Stage3,
		Stage4: result.Stage4,
		RunConfig: &domain.RunConfig{
			SystemPrompt:  req.SystemPrompt,
			CouncilModels: req.CouncilModels,
			ChairmanModel: req.ChairmanModel,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}

	var total float64
	if result.CostSummary != nil {
		total = result.CostSummary.Total
	}
	logger.Info().
		Int("responses", len(result.Stage1)).
		Float64("total_cost", total).
		Msg("turn complete")

	if err := sink.Emit(ctx, Event{Type: EventComplete}); err != nil {
		return nil, err
	}
	return result, nil
}

// runConnectors fetches every enabled connector and wraps each result in a
// tagged block. Unknown or failing connectors are skipped.
func (s *TurnService) runConnectors(ctx context.Context, enabled []ConnectorRequest, logger zerolog.Logger) string {
	if s.connectors == nil || len(enabled) == 0 {
		return ""
	}

	var b strings.Builder
	for _, cr := range enabled {
		def, ok := s.connectors.Connector(cr.Name)
		if !ok || def.Fetcher == nil {
			logger.Warn().Str("connector", cr.Name).Msg("unknown connector skipped")
			continue
		}
		text, err := fetchConnector(ctx, def, cr.Config)
		if err != nil {
			logger.Warn().Str("connector", cr.Name).Err(err).Msg("connector failed")
			continue
		}
		if text == "" {
			continue
		}
		tag := strings.ToUpper(strings.ReplaceAll(cr.Name, " ", "_"))
		fmt.Fprintf(&b, "[%s DATA]\n%s\n[END %s DATA]\n\n", tag, text, tag)
	}
	return b.String()
}

func fetchConnector(ctx context.Context, def domain.ConnectorDefinition, config map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector panicked: %v", r)
		}
	}()
	if config == nil {
		config = map[string]any{}
	}
	return def.Fetcher(ctx, config)
}

// resolveTools returns the registered tools among names, in order.
// Unknown names are ignored.
func (s *TurnService) resolveTools(names []string) []domain.ToolDefinition {
	if s.tools == nil || len(names) == 0 {
		return nil
	}
	var defs []domain.ToolDefinition
	for _, name := range names {
		if def, ok := s.tools.Lookup(name); ok {
			defs = append(defs, def)
		}
	}
	return defs
}

// IsClientError reports whether err was caused by the request rather than
// by the server: an unknown conversation or an invalid message.
func IsClientError(err error) bool {
	var ve *domain.ValidationError
	return errors.Is(err, domain.ErrConversationNotFound) || errors.As(err, &ve)
}
