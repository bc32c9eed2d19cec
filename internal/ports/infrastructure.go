// Package ports defines the interfaces the council core consumes from its
// collaborators: model providers, persistence, file context, tool and
// connector registries, and metrics.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-council/internal/domain"
)

// ChatProvider sends one provider-neutral request to a model.
// A non-nil error means the model abstained; implementations never panic
// on transport or provider failures.
type ChatProvider interface {
	Send(ctx context.Context, req domain.ChatRequest) (*domain.ModelResponse, error)
}

// ConversationStore persists conversations and their completed turns.
// Assistant messages are only written after a full pipeline run.
type ConversationStore interface {
	// Create starts a new, empty conversation with the given id.
	Create(ctx context.Context, id string) (*domain.Conversation, error)

	// Get returns the conversation or domain.ErrConversationNotFound.
	Get(ctx context.Context, id string) (*domain.Conversation, error)

	// List returns metadata for every conversation, newest first.
	List(ctx context.Context) ([]domain.ConversationMetadata, error)

	// AppendUserMessage adds a user turn.
	AppendUserMessage(ctx context.Context, id, content string) error

	// AppendAssistantMessage adds the stage outputs of a completed turn.
	AppendAssistantMessage(ctx context.Context, id string, msg domain.AssistantMessage) error

	// UpdateTitle replaces the conversation title.
	UpdateTitle(ctx context.Context, id, title string) error
}

// FileContextProvider supplies the flattened text and inline images of the
// files attached to a conversation.
type FileContextProvider interface {
	GetContext(ctx context.Context, conversationID string) (string, []domain.Image, error)
}

// FileCatalog records the metadata of uploaded files. The file bytes live
// on disk; the catalog only tracks where.
type FileCatalog interface {
	// AddFile records a stored file.
	AddFile(ctx context.Context, f domain.ConversationFile) error

	// ListFiles returns a conversation's files in upload order.
	ListFiles(ctx context.Context, conversationID string) ([]domain.ConversationFile, error)

	// GetFile returns one file or domain.ErrFileNotFound.
	GetFile(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error)

	// RemoveFile deletes a file record and returns it, or
	// domain.ErrFileNotFound.
	RemoveFile(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error)
}

// ToolLookup resolves registered tools by name.
type ToolLookup interface {
	Lookup(name string) (domain.ToolDefinition, bool)
	Tools() []domain.ToolDefinition
}

// ConnectorRunner resolves registered connectors by name.
type ConnectorRunner interface {
	Connector(name string) (domain.ConnectorDefinition, bool)
	Connectors() []domain.ConnectorDefinition
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// StageObserver is notified around each pipeline stage. PreStage returns the
// context the stage runs under; PostStage receives that same context.
type StageObserver interface {
	PreStage(ctx context.Context, stage string, models []string) context.Context
	PostStage(ctx context.Context, stage string, outcome StageOutcome)
}

// StageOutcome summarizes one finished stage.
type StageOutcome struct {
	Elapsed   time.Duration
	Responses int
	Abstained []string
	Cost      float64
	Err       error
}
