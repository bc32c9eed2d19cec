package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
	"github.com/ahrav/go-council/internal/testutils"
)

const (
	modelA   = "gpt-4.1-mini"
	modelB   = "claude-sonnet-4-6"
	chairman = "gemini-2.5-pro"
)

var usage = domain.Usage{InputTokens: 1000, OutputTokens: 500}

// scriptCouncil scripts two council members that both rank B above A.
func scriptCouncil(p *testutils.ScriptedProvider) *testutils.ScriptedProvider {
	ranking := "Response B is clearer.\n\nFINAL RANKING:\n1. Response B\n2. Response A"
	return p.
		On(modelA, testutils.Reply{Pattern: "FINAL RANKING", Content: ranking, Usage: usage}).
		Answer(modelA, "answer from A", usage).
		On(modelB, testutils.Reply{Pattern: "FINAL RANKING", Content: ranking, Usage: usage}).
		Answer(modelB, "answer from B", usage)
}

// scriptChairman scripts the chairman's synthesis and reflection.
func scriptChairman(p *testutils.ScriptedProvider) *testutils.ScriptedProvider {
	return p.
		On(chairman, testutils.Reply{
			Pattern: "reflect on how it could be improved",
			Content: "CRITIQUE:\nNeeds sources.\n\nSUGGESTED_SYSTEM_PROMPT:\nCite sources.\n\nSUGGESTED_QUERY:\nWhat is Go, with references?",
			Usage:   usage,
		}).
		On(chairman, testutils.Reply{Pattern: "synthesize all of this information", Content: "final answer", Usage: usage})
}

func newTestCouncil(p ports.ChatProvider, opts ...Option) *Council {
	return NewCouncil(p, CouncilConfig{CallTimeout: time.Second, TitleTimeout: time.Second}, opts...)
}

func baseInput() RunInput {
	return RunInput{
		Query:         "What is Go?",
		CouncilModels: []string{modelA, modelB},
		ChairmanModel: chairman,
		SystemPrompt:  "Be concise.",
	}
}

// recordingSink collects emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	failAt EventType
}

func (s *recordingSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt != "" && ev.Type == s.failAt {
		return errors.New("client went away")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func (s *recordingSink) find(t EventType) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Type == t {
			return ev, true
		}
	}
	return Event{}, false
}

// recordingObserver collects the stages it was told about.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	outcomes map[string]ports.StageOutcome
}

func (o *recordingObserver) PreStage(ctx context.Context, stage string, _ []string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, stage)
	return ctx
}

func (o *recordingObserver) PostStage(_ context.Context, stage string, outcome ports.StageOutcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]ports.StageOutcome)
	}
	o.outcomes[stage] = outcome
}

// TestCouncil_Run tests a full pipeline run with every model answering.
func TestCouncil_Run(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	council := newTestCouncil(provider)

	result, err := council.Run(context.Background(), baseInput())
	require.NoError(t, err)

	require.Len(t, result.Stage1, 2)
	assert.Equal(t, modelA, result.Stage1[0].Model)
	assert.Equal(t, "answer from A", result.Stage1[0].Response)
	assert.Equal(t, modelB, result.Stage1[1].Model)
	assert.InDelta(t, 0.0012, result.Stage1[0].Cost, 1e-9)

	require.Len(t, result.Stage2, 2)
	assert.Equal(t, []string{"Response B", "Response A"}, result.Stage2[0].ParsedRanking)

	assert.Equal(t, map[string]string{"Response A": modelA, "Response B": modelB}, result.Metadata.LabelToModel)
	assert.Equal(t, []domain.AggregateRankingEntry{
		{Model: modelB, AverageRank: 1, RankingsCount: 2},
		{Model: modelA, AverageRank: 2, RankingsCount: 2},
	}, result.Metadata.AggregateRankings)

	assert.Equal(t, domain.Stage3Result{
		Model:    chairman,
		Response: "final answer",
		Usage:    usage,
		Cost:     domain.CalculateCost(chairman, usage),
	}, result.Stage3)

	require.NotNil(t, result.Stage4)
	assert.Equal(t, "Needs sources.", result.Stage4.Critique)
	assert.Equal(t, "Cite sources.", result.Stage4.SuggestedSystemPrompt)
	assert.Equal(t, "What is Go, with references?", result.Stage4.SuggestedQuery)
	assert.Empty(t, result.Stage4.Comparison)

	require.NotNil(t, result.CostSummary)
	assert.Contains(t, result.CostSummary.ByModel, chairman)
	assert.Greater(t, result.CostSummary.Total, 0.0)
}

// TestCouncil_RankResponses_Anonymized tests that reviewers only see labels.
func TestCouncil_RankResponses_Anonymized(t *testing.T) {
	provider := scriptCouncil(testutils.NewScriptedProvider())
	council := newTestCouncil(provider)

	stage1 := []domain.Stage1Result{
		{Model: modelA, Response: "answer from A"},
		{Model: modelB, Response: "answer from B"},
	}
	stage2, labels, err := council.RankResponses(context.Background(), "What is Go?", stage1, []string{modelA, modelB})
	require.NoError(t, err)
	require.Len(t, stage2, 2)

	// Labels form a bijection onto the Stage 1 models.
	seen := map[string]bool{}
	for label, model := range labels {
		assert.True(t, strings.HasPrefix(label, "Response "))
		assert.False(t, seen[model])
		seen[model] = true
	}
	assert.Len(t, seen, 2)

	for _, call := range provider.Calls() {
		prompt := call.Turns[0].Text
		assert.Contains(t, prompt, "Response A:\nanswer from A")
		assert.Contains(t, prompt, "Response B:\nanswer from B")
		assert.NotContains(t, prompt, modelA)
		assert.NotContains(t, prompt, modelB)
		assert.Empty(t, call.ReasoningEffort)
		assert.Empty(t, call.Tools)
	}
}

// TestCouncil_RankResponses_TooMany tests the label limit.
func TestCouncil_RankResponses_TooMany(t *testing.T) {
	council := newTestCouncil(testutils.NewScriptedProvider())
	stage1 := make([]domain.Stage1Result, MaxCouncilSize+1)

	_, _, err := council.RankResponses(context.Background(), "q", stage1, nil)
	assert.Error(t, err)
}

// TestCouncil_Run_PartialAbstention tests that one failing member is left
// out of every stage without failing the turn.
func TestCouncil_Run_PartialAbstention(t *testing.T) {
	provider := testutils.NewScriptedProvider().
		On(modelA, testutils.Reply{Pattern: "FINAL RANKING", Content: "FINAL RANKING:\n1. Response A"}).
		Answer(modelA, "answer from A", usage).
		Fail(modelB, errors.New("rate limited"))
	provider = scriptChairman(provider)

	result, err := newTestCouncil(provider).Run(context.Background(), baseInput())
	require.NoError(t, err)

	require.Len(t, result.Stage1, 1)
	assert.Equal(t, modelA, result.Stage1[0].Model)
	require.Len(t, result.Stage2, 1)
	assert.Equal(t, map[string]string{"Response A": modelA}, result.Metadata.LabelToModel)
	assert.Equal(t, "final answer", result.Stage3.Response)

	// The abstaining member was still asked to rank.
	assert.Len(t, provider.CallsFor(modelB), 2)
}

// TestCouncil_Run_AllAbstain tests the short-circuit when nobody answers.
func TestCouncil_Run_AllAbstain(t *testing.T) {
	provider := testutils.NewScriptedProvider().
		Fail(modelA, errors.New("down")).
		Fail(modelB, errors.New("down"))
	provider = scriptChairman(provider)

	sink := &recordingSink{}
	result, err := newTestCouncil(provider).Stream(context.Background(), baseInput(), sink, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Stage1)
	assert.Empty(t, result.Stage2)
	assert.Equal(t, domain.Stage3Result{Model: ErrorModel, Response: AllModelsFailed}, result.Stage3)
	assert.Nil(t, result.Stage4)
	assert.Nil(t, result.CostSummary)
	assert.Nil(t, result.Metadata.LabelToModel)

	assert.Equal(t, []EventType{EventStage1Start, EventStage1Complete, EventStage3Complete}, sink.types())
	assert.Empty(t, provider.CallsFor(chairman))
	assert.Len(t, provider.Calls(), 2)
}

// TestCouncil_Run_ChairmanAbstains tests the Stage 3 and Stage 4 fallbacks.
func TestCouncil_Run_ChairmanAbstains(t *testing.T) {
	provider := scriptCouncil(testutils.NewScriptedProvider()).Fail(chairman, errors.New("overloaded"))

	result, err := newTestCouncil(provider).Run(context.Background(), baseInput())
	require.NoError(t, err)

	assert.Equal(t, domain.Stage3Result{Model: chairman, Response: SynthesisFallback}, result.Stage3)
	require.NotNil(t, result.Stage4)
	assert.Equal(t, ReflectionFallback, result.Stage4.Critique)
	assert.Equal(t, "Be concise.", result.Stage4.SuggestedSystemPrompt)
	assert.Equal(t, "What is Go?", result.Stage4.SuggestedQuery)
	assert.Zero(t, result.CostSummary.Stage3)
	assert.Zero(t, result.CostSummary.Stage4)
}

// TestCouncil_Stream_EventOrder tests the event sequence and payloads.
func TestCouncil_Stream_EventOrder(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	sink := &recordingSink{}

	var hookCalled bool
	hook := func(context.Context) error {
		hookCalled = true
		assert.Equal(t, EventStage4Complete, sink.types()[len(sink.types())-1])
		return nil
	}

	_, err := newTestCouncil(provider).Stream(context.Background(), baseInput(), sink, hook)
	require.NoError(t, err)
	assert.True(t, hookCalled)

	assert.Equal(t, []EventType{
		EventStage1Start, EventStage1Complete,
		EventStage2Start, EventStage2Complete,
		EventStage3Start, EventStage3Complete,
		EventStage4Start, EventStage4Complete,
		EventCostSummary,
	}, sink.types())

	ev, ok := sink.find(EventStage2Complete)
	require.True(t, ok)
	meta, ok := ev.Metadata.(domain.TurnMetadata)
	require.True(t, ok)
	assert.Len(t, meta.LabelToModel, 2)

	ev, ok = sink.find(EventCostSummary)
	require.True(t, ok)
	assert.IsType(t, domain.CostSummary{}, ev.Data)
}

// TestCouncil_Stream_SinkError tests that a failing sink stops the run.
func TestCouncil_Stream_SinkError(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	sink := &recordingSink{failAt: EventStage2Start}

	_, err := newTestCouncil(provider).Stream(context.Background(), baseInput(), sink, nil)
	require.Error(t, err)
	assert.Empty(t, provider.CallsFor(chairman))
}

// TestCouncil_Stream_HookError tests that a failing hook suppresses the
// cost summary.
func TestCouncil_Stream_HookError(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	sink := &recordingSink{}

	_, err := newTestCouncil(provider).Stream(context.Background(), baseInput(), sink,
		func(context.Context) error { return errors.New("title store failed") })
	require.Error(t, err)
	_, ok := sink.find(EventCostSummary)
	assert.False(t, ok)
}

// TestCouncil_CollectResponses_Context tests how the Stage 1 request is built.
func TestCouncil_CollectResponses_Context(t *testing.T) {
	provider := scriptCouncil(testutils.NewScriptedProvider())
	council := newTestCouncil(provider)

	in := baseInput()
	in.CouncilQuery = "rewritten question"
	in.FileContext = "--- notes.txt ---\nhello"
	in.Images = []domain.Image{{MIMEType: "image/png", Base64Data: "AAAA"}}
	in.ReasoningEffort = domain.ReasoningHigh
	in.Tools = []domain.ToolDefinition{{Name: "calculator"}}

	results := council.CollectResponses(context.Background(), in)
	require.Len(t, results, 2)

	call := provider.CallsFor(modelA)[0]
	require.Len(t, call.Turns, 1)
	assert.Equal(t,
		"[ATTACHED FILES]\n--- notes.txt ---\nhello\n[END ATTACHED FILES]\n\nrewritten question",
		call.Turns[0].Text)
	assert.Equal(t, in.Images, call.Turns[0].Images)
	assert.Equal(t, "Be concise.", call.SystemPrompt)
	assert.Equal(t, domain.ReasoningHigh, call.ReasoningEffort)
	assert.Len(t, call.Tools, 1)
}

// TestCouncil_Run_PreviousIteration tests that re-analysis context reaches
// the chairman prompts.
func TestCouncil_Run_PreviousIteration(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	in := baseInput()
	in.Previous = &domain.PreviousIteration{Query: "What was Go?", Critique: "too short"}

	_, err := newTestCouncil(provider).Run(context.Background(), in)
	require.NoError(t, err)

	calls := provider.CallsFor(chairman)
	require.Len(t, calls, 2)
	synthesis, reflection := calls[0].Turns[0].Text, calls[1].Turns[0].Text

	assert.Contains(t, synthesis, "PREVIOUS ITERATION CONTEXT:")
	assert.Contains(t, synthesis, "- Previous Query: What was Go?")
	assert.Contains(t, synthesis, "- Previous System Prompt: None")
	assert.Contains(t, synthesis, "- Critique of Previous Analysis: too short")

	assert.Contains(t, reflection, "PREVIOUS ITERATION:")
	assert.Contains(t, reflection, "COMPARISON:")
	assert.Contains(t, reflection, "System Prompt Used: Be concise.")
}

// TestCouncil_Observer tests that every stage is reported.
func TestCouncil_Observer(t *testing.T) {
	provider := scriptChairman(scriptCouncil(testutils.NewScriptedProvider()))
	obs := &recordingObserver{}

	_, err := newTestCouncil(provider, WithObserver(obs)).Run(context.Background(), baseInput())
	require.NoError(t, err)

	assert.Equal(t, []string{StageTurn, StageCollect, StageRank, StageSynthesize, StageReflect}, obs.started)
	assert.Equal(t, 2, obs.outcomes[StageCollect].Responses)
	assert.Equal(t, 2, obs.outcomes[StageTurn].Responses)
	assert.NoError(t, obs.outcomes[StageTurn].Err)
}

// TestCouncil_GenerateTitle tests title generation and its fallback.
func TestCouncil_GenerateTitle(t *testing.T) {
	provider := testutils.NewScriptedProvider().
		On(DefaultTitleModel, testutils.Reply{Pattern: "golang", Content: "  \"Go Basics\"  "})
	council := newTestCouncil(provider)

	assert.Equal(t, "Go Basics", council.GenerateTitle(context.Background(), "Explain golang"))
	assert.Equal(t, domain.DefaultConversationTitle, council.GenerateTitle(context.Background(), "other"))

	call := provider.CallsFor(DefaultTitleModel)[0]
	assert.Contains(t, call.Turns[0].Text, "Question: Explain golang")
}

// TestCleanTitle tests quote trimming and truncation.
func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Go Concurrency", "Go Concurrency"},
		{"'Quoted'\n", "Quoted"},
		{strings.Repeat("x", 50), strings.Repeat("x", 50)},
		{strings.Repeat("x", 51), strings.Repeat("x", 47) + "..."},
		{strings.Repeat("é", 60), strings.Repeat("é", 47) + "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.raw))
	}
}
