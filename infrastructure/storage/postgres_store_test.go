package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
)

// TestMessageRow tests the column encoding of messages without a database.
func TestMessageRow(t *testing.T) {
	asst := assistantMessage(domain.AssistantMessage{
		Stage3: domain.Stage3Result{Model: "m", Response: "r"},
	})
	row, err := newAssistantRow(asst)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(row.stage1))
	assert.JSONEq(t, `[]`, string(row.stage2))
	assert.Nil(t, row.stage4)
	assert.Nil(t, row.runConfig)

	back, err := row.message()
	require.NoError(t, err)
	assert.Equal(t, "r", back.Stage3.Response)
	assert.Empty(t, back.Stage1)
	assert.Nil(t, back.Stage4)

	content := "hi"
	user, err := messageRow{role: "user", content: &content}.message()
	require.NoError(t, err)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Content: "hi"}, user)

	_, err = messageRow{role: "assistant", stage1: []byte("{")}.message()
	assert.Error(t, err)
}

// TestPostgresStore exercises the store against a live database named by
// COUNCIL_TEST_DATABASE_URL.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("COUNCIL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COUNCIL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))

	id := uuid.NewString()
	_, err = s.Create(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.AppendUserMessage(ctx, id, "What is Go?"))
	require.NoError(t, s.AppendAssistantMessage(ctx, id, sampleAssistant()))
	require.NoError(t, s.UpdateTitle(ctx, id, "Go Overview"))

	conv, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Go Overview", conv.Title)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "What is Go?", conv.Messages[0].Content)
	assert.Equal(t, "synthesis", conv.Messages[1].Stage3.Response)

	list, err := s.List(ctx)
	require.NoError(t, err)
	var found bool
	for _, m := range list {
		if m.ID == id {
			found = true
			assert.Equal(t, 2, m.MessageCount)
		}
	}
	assert.True(t, found)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.ErrorIs(t, s.AppendUserMessage(ctx, uuid.NewString(), "x"), domain.ErrConversationNotFound)

	file := domain.ConversationFile{
		ID: uuid.NewString(), ConversationID: id, Filename: "notes.txt",
		ContentType: "text/plain", SizeBytes: 5, ExtractedText: "hello",
		StoragePath: "/tmp/x", CreatedAt: "2025-01-01T00:00:00.000000",
	}
	require.NoError(t, s.AddFile(ctx, file))

	files, err := s.ListFiles(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.ConversationFile{file}, files)

	got, err := s.GetFile(ctx, id, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file, got)

	removed, err := s.RemoveFile(ctx, id, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file, removed)

	_, err = s.RemoveFile(ctx, id, file.ID)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}
