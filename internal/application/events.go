package application

import "context"

// EventType names a progress event of a council turn.
type EventType string

// Events in the order a turn emits them. EventTitleComplete appears only on
// a conversation's first turn; EventError ends a stream early.
const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventStage4Start    EventType = "stage4_start"
	EventStage4Complete EventType = "stage4_complete"
	EventTitleComplete  EventType = "title_complete"
	EventCostSummary    EventType = "cost_summary"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event is one streamed progress message.
type Event struct {
	Type     EventType `json:"type"`
	Data     any       `json:"data,omitempty"`
	Metadata any       `json:"metadata,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// TitleData is the payload of EventTitleComplete.
type TitleData struct {
	Title string `json:"title"`
}

// EventSink receives events in order. An error stops the turn.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev Event) error

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// discardSink drops every event; it backs the non-streaming variant.
type discardSink struct{}

func (discardSink) Emit(context.Context, Event) error { return nil }
