package domain

import "encoding/json"

// DefaultConversationTitle is the title of a conversation before one is
// generated from its first message.
const DefaultConversationTitle = "New Conversation"

// Message is one entry of a conversation. User messages carry Content;
// assistant messages carry the stage outputs.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content,omitempty"`
	Stage1    []Stage1Result `json:"stage1,omitempty"`
	Stage2    []Stage2Result `json:"stage2,omitempty"`
	Stage3    *Stage3Result  `json:"stage3,omitempty"`
	Stage4    *Stage4Result  `json:"stage4,omitempty"`
	RunConfig *RunConfig     `json:"run_config,omitempty"`
}

// MarshalJSON writes user messages as {role, content} and assistant
// messages with every stage key present; stage1 and stage2 are never null.
func (m Message) MarshalJSON() ([]byte, error) {
	if m.Role != RoleAssistant {
		return json.Marshal(struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}{m.Role, m.Content})
	}
	stage1, stage2 := m.Stage1, m.Stage2
	if stage1 == nil {
		stage1 = []Stage1Result{}
	}
	if stage2 == nil {
		stage2 = []Stage2Result{}
	}
	return json.Marshal(struct {
		Role      Role           `json:"role"`
		Stage1    []Stage1Result `json:"stage1"`
		Stage2    []Stage2Result `json:"stage2"`
		Stage3    *Stage3Result  `json:"stage3"`
		Stage4    *Stage4Result  `json:"stage4,omitempty"`
		RunConfig *RunConfig     `json:"run_config,omitempty"`
	}{m.Role, stage1, stage2, m.Stage3, m.Stage4, m.RunConfig})
}

// Conversation is a persisted thread of council turns.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt string    `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata is the list-view projection of a conversation.
type ConversationMetadata struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

// AssistantMessage bundles what is persisted after a completed turn.
type AssistantMessage struct {
	Stage1    []Stage1Result
	Stage2    []Stage2Result
	Stage3    Stage3Result
	Stage4    *Stage4Result
	RunConfig *RunConfig
}

// ConversationFile describes an uploaded file attached to a conversation.
type ConversationFile struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Filename       string `json:"filename"`
	ContentType    string `json:"content_type"`
	SizeBytes      int64  `json:"size_bytes"`
	ExtractedText  string `json:"extracted_text,omitempty"`
	IsImage        bool   `json:"is_image"`
	StoragePath    string `json:"storage_path"`
	CreatedAt      string `json:"created_at"`
}
