// Package storage persists conversations, either as one JSON document per
// conversation on disk or in Postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// TimestampLayout is the fixed-width UTC layout of created_at values, so
// they sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// JSONStore keeps each conversation in <dir>/<id>.json. Writes are
// serialized and atomic.
type JSONStore struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

var _ ports.ConversationStore = (*JSONStore)(nil)

// NewJSONStore creates a store rooted at dir, creating it if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &JSONStore{dir: dir, now: time.Now}, nil
}

// ValidID reports whether id is usable as a single path element.
func ValidID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create writes a new, empty conversation.
func (s *JSONStore) Create(_ context.Context, id string) (*domain.Conversation, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("invalid conversation id %q", id)
	}
	conv := &domain.Conversation{
		ID:        id,
		CreatedAt: s.now().UTC().Format(TimestampLayout),
		Title:     domain.DefaultConversationTitle,
		Messages:  []domain.Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Get reads a conversation.
func (s *JSONStore) Get(_ context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

// List returns metadata for every conversation, newest first.
func (s *JSONStore) List(context.Context) ([]domain.ConversationMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]domain.ConversationMetadata, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		conv, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		title := conv.Title
		if title == "" {
			title = domain.DefaultConversationTitle
		}
		out = append(out, domain.ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        title,
			MessageCount: len(conv.Messages),
		})
	}

	slices.SortStableFunc(out, func(a, b domain.ConversationMetadata) int {
		return strings.Compare(b.CreatedAt, a.CreatedAt)
	})
	return out, nil
}

// AppendUserMessage adds a user turn.
func (s *JSONStore) AppendUserMessage(_ context.Context, id, content string) error {
	return s.update(id, func(c *domain.Conversation) {
		c.Messages = append(c.Messages, domain.Message{Role: domain.RoleUser, Content: content})
	})
}

// AppendAssistantMessage adds the stage outputs of a completed turn.
func (s *JSONStore) AppendAssistantMessage(_ context.Context, id string, msg domain.AssistantMessage) error {
	return s.update(id, func(c *domain.Conversation) {
		c.Messages = append(c.Messages, assistantMessage(msg))
	})
}

// UpdateTitle replaces the conversation title.
func (s *JSONStore) UpdateTitle(_ context.Context, id, title string) error {
	return s.update(id, func(c *domain.Conversation) { c.Title = title })
}

func (s *JSONStore) update(id string, mutate func(*domain.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.read(id)
	if err != nil {
		return err
	}
	mutate(conv)
	return s.write(conv)
}

func (s *JSONStore) read(id string) (*domain.Conversation, error) {
	if !ValidID(id) {
		return nil, domain.ErrConversationNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	return &conv, nil
}

func (s *JSONStore) write(conv *domain.Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", conv.ID, err)
	}
	return WriteFileAtomic(s.path(conv.ID), data)
}

// WriteFileAtomic replaces path with data via a temp file and rename.
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func assistantMessage(msg domain.AssistantMessage) domain.Message {
	stage3 := msg.Stage3
	return domain.Message{
		Role:      domain.RoleAssistant,
		Stage1:    msg.Stage1,
		Stage2:    msg.Stage2,
		Stage3:    &stage3,
		Stage4:    msg.Stage4,
		RunConfig: msg.RunConfig,
	}
}
