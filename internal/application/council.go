// Package application runs the council: a parallel fan-out of one question
// to several models, anonymized peer ranking, a chairman synthesis, and the
// chairman's self-reflection, reported as an ordered event stream.
package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// Stage names reported to the StageObserver.
const (
	StageCollect    = "stage1"
	StageRank       = "stage2"
	StageSynthesize = "stage3"
	StageReflect    = "stage4"
	StageTitle      = "title"
	StageTurn       = "turn"
)

// Fixed texts substituted for missing chairman output.
const (
	SynthesisFallback  = "Error: Unable to generate final synthesis."
	ReflectionFallback = "Error: Unable to generate self-reflection."
	AllModelsFailed    = "All models failed to respond. Please try again."
	ErrorModel         = "error"
)

const maxTitleLength = 50

// Council runs the four pipeline stages against a ChatProvider.
// A Council is safe for concurrent use by multiple turns.
type Council struct {
	dispatcher *Dispatcher
	cfg        CouncilConfig
	observer   ports.StageObserver
	logger     zerolog.Logger
}

// Option configures a Council.
type Option func(*Council)

// WithObserver reports stage boundaries to o.
func WithObserver(o ports.StageObserver) Option {
	return func(c *Council) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithLogger sets the logger used for stage and abstention logging.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Council) { c.logger = l }
}

// NewCouncil creates a Council. Unset config fields take their defaults.
func NewCouncil(provider ports.ChatProvider, cfg CouncilConfig, opts ...Option) *Council {
	c := &Council{
		cfg:      cfg.WithDefaults(),
		observer: noopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatcher = NewDispatcher(provider, c.cfg.MaxConcurrency, c.logger)
	return c
}

// Config returns the effective council tuning.
func (c *Council) Config() CouncilConfig { return c.cfg }

// RunInput describes one council turn.
type RunInput struct {
	// Query is the user's question as typed. Stages 2 to 4 and the title
	// always use it.
	Query string
	// CouncilQuery, when set, replaces Query in Stage 1.
	CouncilQuery string

	CouncilModels []string
	ChairmanModel string
	// SystemPrompt applies to Stage 1 only.
	SystemPrompt string

	FileContext     string
	Images          []domain.Image
	Tools           []domain.ToolDefinition
	ReasoningEffort domain.ReasoningEffort
	Previous        *domain.PreviousIteration
}

// RunResult is the outcome of a full pipeline run. A run with no Stage 1
// answers has empty Stage 2, the error Stage 3 result, no Stage 4, empty
// metadata and no cost summary.
type RunResult struct {
	Stage1      []domain.Stage1Result `json:"stage1"`
	Stage2      []domain.Stage2Result `json:"stage2"`
	Stage3      domain.Stage3Result   `json:"stage3"`
	Stage4      *domain.Stage4Result  `json:"stage4,omitempty"`
	Metadata    domain.TurnMetadata   `json:"metadata"`
	CostSummary *domain.CostSummary   `json:"cost_summary,omitempty"`
}

// CollectResponses runs Stage 1: every council model answers the question
// independently. Abstaining models are left out; results follow the order
// of in.CouncilModels.
func (c *Council) CollectResponses(ctx context.Context, in RunInput) []domain.Stage1Result {
	ctx, finish := c.observe(ctx, StageCollect, in.CouncilModels)

	query := in.CouncilQuery
	if query == "" {
		query = in.Query
	}
	turn := domain.UserTurn(withAttachedFiles(query, in.FileContext), in.Images...)

	outcomes := c.dispatcher.DispatchAll(ctx, in.CouncilModels, DispatchRequest{
		Turns:           []domain.Turn{turn},
		SystemPrompt:    in.SystemPrompt,
		Tools:           in.Tools,
		ReasoningEffort: in.ReasoningEffort,
		Timeout:         c.cfg.CallTimeout,
	})

	results := make([]domain.Stage1Result, 0, len(outcomes))
	var abstained []string
	var cost float64
	for _, model := range uniqueModels(in.CouncilModels) {
		o := outcomes[model]
		if o.Abstained() {
			abstained = append(abstained, model)
			continue
		}
		r := domain.Stage1Result{
			Model:     model,
			Response:  o.Response.Content,
			Usage:     o.Response.Usage,
			Cost:      domain.CalculateCost(model, o.Response.Usage),
			ToolCalls: o.Response.ToolCalls,
		}
		cost += r.Cost
		results = append(results, r)
	}

	finish(ports.StageOutcome{Responses: len(results), Abstained: abstained, Cost: cost})
	return results
}

// RankResponses runs Stage 2: every council model reviews the anonymized
// Stage 1 answers and ranks them. It returns the reviews and the map from
// label ("Response A") to the model that wrote that answer.
func (c *Council) RankResponses(
	ctx context.Context,
	query string,
	stage1 []domain.Stage1Result,
	models []string,
) ([]domain.Stage2Result, map[string]string, error) {
	if len(stage1) > MaxCouncilSize {
		return nil, nil, fmt.Errorf("cannot label %d responses: at most %d are supported", len(stage1), MaxCouncilSize)
	}

	labelToModel := make(map[string]string, len(stage1))
	labeled := make([]labeledResponse, len(stage1))
	for i, r := range stage1 {
		label := ResponseLabel(i)
		labelToModel[label] = r.Model
		labeled[i] = labeledResponse{Label: label, Text: r.Response}
	}

	prompt, err := buildRankingPrompt(query, labeled)
	if err != nil {
		return nil, nil, err
	}

	ctx, finish := c.observe(ctx, StageRank, models)
	outcomes := c.dispatcher.DispatchAll(ctx, models, DispatchRequest{
		Turns:   []domain.Turn{domain.UserTurn(prompt)},
		Timeout: c.cfg.CallTimeout,
	})

	results := make([]domain.Stage2Result, 0, len(outcomes))
	var abstained []string
	var cost float64
	for _, model := range uniqueModels(models) {
		o := outcomes[model]
		if o.Abstained() {
			abstained = append(abstained, model)
			continue
		}
		r := domain.Stage2Result{
			Model:         model,
			Ranking:       o.Response.Content,
			ParsedRanking: ParseRanking(o.Response.Content),
			Usage:         o.Response.Usage,
			Cost:          domain.CalculateCost(model, o.Response.Usage),
		}
		cost += r.Cost
		results = append(results, r)
	}

	finish(ports.StageOutcome{Responses: len(results), Abstained: abstained, Cost: cost})
	return results, labelToModel, nil
}

// Synthesize runs Stage 3: the chairman merges the answers and reviews into
// one final answer. A chairman abstention yields SynthesisFallback at zero
// cost.
func (c *Council) Synthesize(
	ctx context.Context,
	query string,
	stage1 []domain.Stage1Result,
	stage2 []domain.Stage2Result,
	chairman string,
	previous *domain.PreviousIteration,
) (domain.Stage3Result, error) {
	prompt, err := buildSynthesisPrompt(query, stage1, stage2, previous)
	if err != nil {
		return domain.Stage3Result{}, err
	}

	ctx, finish := c.observe(ctx, StageSynthesize, []string{chairman})
	o := c.dispatcher.Dispatch(ctx, chairman, DispatchRequest{
		Turns:   []domain.Turn{domain.UserTurn(prompt)},
		Timeout: c.cfg.CallTimeout,
	})
	if o.Abstained() {
		finish(ports.StageOutcome{Abstained: []string{chairman}})
		return domain.Stage3Result{Model: chairman, Response: SynthesisFallback}, nil
	}

	r := domain.Stage3Result{
		Model:    chairman,
		Response: o.Response.Content,
		Usage:    o.Response.Usage,
		Cost:     domain.CalculateCost(chairman, o.Response.Usage),
	}
	finish(ports.StageOutcome{Responses: 1, Cost: r.Cost})
	return r, nil
}

// Reflect runs Stage 4: the chairman critiques the run and proposes a
// better system prompt and query. A chairman abstention yields
// ReflectionFallback with the run's own prompt and query as suggestions.
func (c *Council) Reflect(
	ctx context.Context,
	query, systemPrompt string,
	stage1 []domain.Stage1Result,
	stage3 domain.Stage3Result,
	chairman string,
	previous *domain.PreviousIteration,
) (domain.Stage4Result, error) {
	prompt, err := buildReflectionPrompt(query, systemPrompt, stage1, stage3.Response, previous)
	if err != nil {
		return domain.Stage4Result{}, err
	}

	ctx, finish := c.observe(ctx, StageReflect, []string{chairman})
	o := c.dispatcher.Dispatch(ctx, chairman, DispatchRequest{
		Turns:   []domain.Turn{domain.UserTurn(prompt)},
		Timeout: c.cfg.CallTimeout,
	})
	if o.Abstained() {
		finish(ports.StageOutcome{Abstained: []string{chairman}})
		return domain.Stage4Result{
			Model:                 chairman,
			Critique:              ReflectionFallback,
			SuggestedSystemPrompt: systemPrompt,
			SuggestedQuery:        query,
		}, nil
	}

	sections := ParseReflection(o.Response.Content)
	r := domain.Stage4Result{
		Model:                 chairman,
		Critique:              sections.Critique,
		Comparison:            sections.Comparison,
		SuggestedSystemPrompt: sections.SuggestedSystemPrompt,
		SuggestedQuery:        sections.SuggestedQuery,
		RawResponse:           o.Response.Content,
		Usage:                 o.Response.Usage,
		Cost:                  domain.CalculateCost(chairman, o.Response.Usage),
	}
	finish(ports.StageOutcome{Responses: 1, Cost: r.Cost})
	return r, nil
}

// GenerateTitle asks the title model for a short conversation title.
// Any failure yields domain.DefaultConversationTitle.
func (c *Council) GenerateTitle(ctx context.Context, query string) string {
	prompt, err := buildTitlePrompt(query)
	if err != nil {
		return domain.DefaultConversationTitle
	}

	model := c.cfg.TitleModel
	ctx, finish := c.observe(ctx, StageTitle, []string{model})
	o := c.dispatcher.Dispatch(ctx, model, DispatchRequest{
		Turns:   []domain.Turn{domain.UserTurn(prompt)},
		Timeout: c.cfg.TitleTimeout,
	})
	if o.Abstained() {
		finish(ports.StageOutcome{Abstained: []string{model}})
		return domain.DefaultConversationTitle
	}
	finish(ports.StageOutcome{Responses: 1, Cost: domain.CalculateCost(model, o.Response.Usage)})
	return CleanTitle(o.Response.Content)
}

// CleanTitle trims whitespace and surrounding quotes from a generated title
// and shortens titles longer than 50 characters to 47 plus "...".
func CleanTitle(raw string) string {
	title := strings.Trim(strings.TrimSpace(raw), `"'`)
	if len([]rune(title)) > maxTitleLength {
		title = domain.TruncateRunes(title, maxTitleLength-3) + "..."
	}
	return title
}

// Run executes the whole pipeline without streaming.
func (c *Council) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	return c.Stream(ctx, in, discardSink{}, nil)
}

// Stream executes the whole pipeline, emitting an event as each stage
// starts and finishes. beforeSummary, when set, runs after the last stage
// event and before the cost summary; the turn service joins the title
// there. Stream never emits EventComplete or EventError; the caller owns
// the end of the stream.
//
// When Stage 1 produces no answers the stream is stage1_start,
// stage1_complete, stage3_complete carrying the error result, and then
// beforeSummary. Stages 2 to 4 are not run and no cost summary is sent.
func (c *Council) Stream(
	ctx context.Context,
	in RunInput,
	sink EventSink,
	beforeSummary func(context.Context) error,
) (result *RunResult, err error) {
	ctx, finish := c.observe(ctx, StageTurn, in.CouncilModels)
	defer func() {
		outcome := ports.StageOutcome{Err: err}
		if result != nil {
			outcome.Responses = len(result.Stage1)
			if result.CostSummary != nil {
				outcome.Cost = result.CostSummary.Total
			}
		}
		finish(outcome)
	}()

	emit := func(ev Event) error { return sink.Emit(ctx, ev) }
	hook := func() error {
		if beforeSummary == nil {
			return nil
		}
		return beforeSummary(ctx)
	}

	if err := emit(Event{Type: EventStage1Start}); err != nil {
		return nil, err
	}
	stage1 := c.CollectResponses(ctx, in)
	if err := emit(Event{Type: EventStage1Complete, Data: stage1}); err != nil {
		return nil, err
	}

	if len(stage1) == 0 {
		stage3 := domain.Stage3Result{Model: ErrorModel, Response: AllModelsFailed}
		if err := emit(Event{Type: EventStage3Complete, Data: stage3}); err != nil {
			return nil, err
		}
		if err := hook(); err != nil {
			return nil, err
		}
		return &RunResult{Stage1: stage1, Stage2: []domain.Stage2Result{}, Stage3: stage3}, nil
	}

	if err := emit(Event{Type: EventStage2Start}); err != nil {
		return nil, err
	}
	stage2, labelToModel, err := c.RankResponses(ctx, in.Query, stage1, in.CouncilModels)
	if err != nil {
		return nil, err
	}
	metadata := domain.TurnMetadata{
		LabelToModel:      labelToModel,
		AggregateRankings: AggregateRankings(stage2, labelToModel),
	}
	if err := emit(Event{Type: EventStage2Complete, Data: stage2, Metadata: metadata}); err != nil {
		return nil, err
	}

	if err := emit(Event{Type: EventStage3Start}); err != nil {
		return nil, err
	}
	stage3, err := c.Synthesize(ctx, in.Query, stage1, stage2, in.ChairmanModel, in.Previous)
	if err != nil {
		return nil, err
	}
	if err := emit(Event{Type: EventStage3Complete, Data: stage3}); err != nil {
		return nil, err
	}

	if err := emit(Event{Type: EventStage4Start}); err != nil {
		return nil, err
	}
	stage4, err := c.Reflect(ctx, in.Query, in.SystemPrompt, stage1, stage3, in.ChairmanModel, in.Previous)
	if err != nil {
		return nil, err
	}
	if err := emit(Event{Type: EventStage4Complete, Data: stage4}); err != nil {
		return nil, err
	}

	if err := hook(); err != nil {
		return nil, err
	}

	summary := SummarizeCost(stage1, stage2, stage3, &stage4, in.ChairmanModel)
	if err := emit(Event{Type: EventCostSummary, Data: summary}); err != nil {
		return nil, err
	}

	return &RunResult{
		Stage1:      stage1,
		Stage2:      stage2,
		Stage3:      stage3,
		Stage4:      &stage4,
		Metadata:    metadata,
		CostSummary: &summary,
	}, nil
}

// observe starts a stage and returns the context it runs under plus the
// function that finishes it.
func (c *Council) observe(ctx context.Context, stage string, models []string) (context.Context, func(ports.StageOutcome)) {
	start := time.Now()
	ctx = c.observer.PreStage(ctx, stage, models)
	c.logger.Debug().Str("stage", stage).Int("models", len(models)).Msg("stage started")

	return ctx, func(o ports.StageOutcome) {
		o.Elapsed = time.Since(start)
		c.observer.PostStage(ctx, stage, o)
		c.logger.Debug().
			Str("stage", stage).
			Int("responses", o.Responses).
			Strs("abstained", o.Abstained).
			Dur("elapsed", o.Elapsed).
			Msg("stage finished")
	}
}

type noopObserver struct{}

func (noopObserver) PreStage(ctx context.Context, _ string, _ []string) context.Context { return ctx }
func (noopObserver) PostStage(context.Context, string, ports.StageOutcome)             {}
