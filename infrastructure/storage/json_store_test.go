package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
)

func newTestStore(t *testing.T) *JSONStore {
	t.Helper()
	s, err := NewJSONStore(filepath.Join(t.TempDir(), "conversations"))
	require.NoError(t, err)
	return s
}

func sampleAssistant() domain.AssistantMessage {
	return domain.AssistantMessage{
		Stage1: []domain.Stage1Result{{Model: "gpt-4.1-mini", Response: "answer", Cost: 0.001}},
		Stage2: []domain.Stage2Result{{
			Model:         "gpt-4.1-mini",
			Ranking:       "FINAL RANKING:\n1. Response A",
			ParsedRanking: []string{"Response A"},
		}},
		Stage3:    domain.Stage3Result{Model: "gemini-2.5-pro", Response: "synthesis"},
		Stage4:    &domain.Stage4Result{Model: "gemini-2.5-pro", Critique: "ok"},
		RunConfig: &domain.RunConfig{CouncilModels: []string{"gpt-4.1-mini"}, ChairmanModel: "gemini-2.5-pro"},
	}
}

// TestJSONStore_CreateAndGet tests that a new conversation is written to
// disk with the default title and no messages.
func TestJSONStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConversationTitle, created.Title)
	assert.Len(t, created.CreatedAt, len(TimestampLayout))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.NotNil(t, got.Messages)

	raw, err := os.ReadFile(filepath.Join(s.dir, "c1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"id\": \"c1\"")
}

// TestJSONStore_NotFound tests unknown and unsafe ids.
func TestJSONStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"missing", "../etc/passwd", "..", "a/b", ""} {
		t.Run(id, func(t *testing.T) {
			_, err := s.Get(ctx, id)
			assert.ErrorIs(t, err, domain.ErrConversationNotFound)
			assert.ErrorIs(t, s.AppendUserMessage(ctx, id, "x"), domain.ErrConversationNotFound)
			assert.ErrorIs(t, s.UpdateTitle(ctx, id, "x"), domain.ErrConversationNotFound)
		})
	}

	_, err := s.Create(ctx, "../escape")
	assert.Error(t, err)
}

// TestJSONStore_AppendMessages tests that user and assistant turns are
// stored in order and survive a reload.
func TestJSONStore_AppendMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, s.AppendUserMessage(ctx, "c1", "What is Go?"))
	require.NoError(t, s.AppendAssistantMessage(ctx, "c1", sampleAssistant()))
	require.NoError(t, s.UpdateTitle(ctx, "c1", "Go Overview"))

	reopened, err := NewJSONStore(s.dir)
	require.NoError(t, err)
	conv, err := reopened.Get(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Go Overview", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "What is Go?"}, conv.Messages[0])

	asst := conv.Messages[1]
	assert.Equal(t, domain.RoleAssistant, asst.Role)
	assert.Equal(t, "answer", asst.Stage1[0].Response)
	assert.Equal(t, []string{"Response A"}, asst.Stage2[0].ParsedRanking)
	assert.Equal(t, "synthesis", asst.Stage3.Response)
	assert.Equal(t, "ok", asst.Stage4.Critique)
	assert.Equal(t, "gemini-2.5-pro", asst.RunConfig.ChairmanModel)
}

// TestJSONStore_AssistantWithoutAnswers tests that empty stages are stored
// as empty lists rather than null.
func TestJSONStore_AssistantWithoutAnswers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, s.AppendAssistantMessage(ctx, "c1", domain.AssistantMessage{
		Stage3: domain.Stage3Result{Model: "error", Response: "All models failed to respond. Please try again."},
	}))

	raw, err := os.ReadFile(filepath.Join(s.dir, "c1.json"))
	require.NoError(t, err)
	var doc struct {
		Messages []map[string]json.RawMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Messages, 1)
	assert.JSONEq(t, `[]`, string(doc.Messages[0]["stage1"]))
	assert.JSONEq(t, `[]`, string(doc.Messages[0]["stage2"]))
	assert.NotContains(t, doc.Messages[0], "stage4")
}

// TestJSONStore_List tests ordering and message counts.
func TestJSONStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := s.Create(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, s.AppendUserMessage(ctx, "mid", "hello"))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("ignored"), 0o644))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, 1, list[1].MessageCount)
	assert.Equal(t, "2025-01-01T12:02:00.000000", list[0].CreatedAt)
}

// TestJSONStore_ConcurrentAppends tests that concurrent writers do not lose
// messages.
func TestJSONStore_ConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Create(ctx, "c1")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AppendUserMessage(ctx, "c1", "msg"))
		}()
	}
	wg.Wait()

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, n)
}

// TestValidID tests path-safety of ids.
func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"3f2a-11", true},
		{"file.json", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{`a\b`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidID(tt.id), tt.id)
	}
}
