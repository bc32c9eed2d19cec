package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore persists conversations and the file catalog in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var (
	_ ports.ConversationStore = (*PostgresStore)(nil)
	_ ports.FileCatalog       = (*PostgresStore)(nil)
)

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Create(ctx context.Context, id string) (*domain.Conversation, error) {
	conv := &domain.Conversation{
		ID:        id,
		CreatedAt: s.now().UTC().Format(TimestampLayout),
		Title:     domain.DefaultConversationTitle,
		Messages:  []domain.Message{},
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, created_at, title) VALUES ($1, $2, $3)`,
		conv.ID, conv.CreatedAt, conv.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, title FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.CreatedAt, &conv.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT role, content, stage1, stage2, stage3, stage4, run_config
		FROM messages WHERE conversation_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var r messageRow
		if err := row.Scan(&r.role, &r.content, &r.stage1, &r.stage2, &r.stage3, &r.stage4, &r.runConfig); err != nil {
			return domain.Message{}, err
		}
		return r.message()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	conv.Messages = msgs
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	return &conv, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.ConversationMetadata, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.created_at, c.title, COUNT(m.id)
		FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConversationMetadata, error) {
		var m domain.ConversationMetadata
		err := row.Scan(&m.ID, &m.CreatedAt, &m.Title, &m.MessageCount)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if out == nil {
		out = []domain.ConversationMetadata{}
	}
	return out, nil
}

func (s *PostgresStore) AppendUserMessage(ctx context.Context, id, content string) error {
	return s.appendMessage(ctx, id, messageRow{role: string(domain.RoleUser), content: &content})
}

func (s *PostgresStore) AppendAssistantMessage(ctx context.Context, id string, msg domain.AssistantMessage) error {
	row, err := newAssistantRow(assistantMessage(msg))
	if err != nil {
		return err
	}
	return s.appendMessage(ctx, id, row)
}

// appendMessage locks the conversation row so concurrent appends get
// distinct positions.
func (s *PostgresStore) appendMessage(ctx context.Context, id string, r messageRow) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, id).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrConversationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (conversation_id, position, role, content, stage1, stage2, stage3, stage4, run_config)
			VALUES ($1, (SELECT COALESCE(MAX(position), -1) + 1 FROM messages WHERE conversation_id = $1),
			        $2, $3, $4, $5, $6, $7, $8)`,
			id, r.role, r.content, r.stage1, r.stage2, r.stage3, r.stage4, r.runConfig)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateTitle(ctx context.Context, id, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE conversations SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

const fileColumns = `id, conversation_id, filename, content_type, size_bytes,
	COALESCE(extracted_text, ''), is_image, storage_path, created_at`

func scanFile(row pgx.Row) (domain.ConversationFile, error) {
	var f domain.ConversationFile
	err := row.Scan(&f.ID, &f.ConversationID, &f.Filename, &f.ContentType, &f.SizeBytes,
		&f.ExtractedText, &f.IsImage, &f.StoragePath, &f.CreatedAt)
	return f, err
}

func (s *PostgresStore) AddFile(ctx context.Context, f domain.ConversationFile) error {
	var text *string
	if f.ExtractedText != "" {
		text = &f.ExtractedText
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_files
			(id, conversation_id, filename, content_type, size_bytes, extracted_text, is_image, storage_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.ConversationID, f.Filename, f.ContentType, f.SizeBytes, text, f.IsImage, f.StoragePath, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record file: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, conversationID string) ([]domain.ConversationFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM conversation_files WHERE conversation_id = $1 ORDER BY created_at`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	files, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConversationFile, error) {
		return scanFile(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if files == nil {
		files = []domain.ConversationFile{}
	}
	return files, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error) {
	f, err := scanFile(s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM conversation_files WHERE conversation_id = $1 AND id = $2`,
		conversationID, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return f, domain.ErrFileNotFound
	}
	if err != nil {
		return f, fmt.Errorf("failed to load file: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) RemoveFile(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error) {
	f, err := scanFile(s.pool.QueryRow(ctx,
		`DELETE FROM conversation_files WHERE conversation_id = $1 AND id = $2 RETURNING `+fileColumns,
		conversationID, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return f, domain.ErrFileNotFound
	}
	if err != nil {
		return f, fmt.Errorf("failed to delete file: %w", err)
	}
	return f, nil
}

// messageRow is the column form of a message. Stage columns hold JSON;
// nil slices are written as NULL.
type messageRow struct {
	role      string
	content   *string
	stage1    []byte
	stage2    []byte
	stage3    []byte
	stage4    []byte
	runConfig []byte
}

func newAssistantRow(m domain.Message) (messageRow, error) {
	r := messageRow{role: string(domain.RoleAssistant)}
	var err error
	encode := func(dst *[]byte, v any) {
		if err != nil {
			return
		}
		*dst, err = json.Marshal(v)
	}
	stage1, stage2 := m.Stage1, m.Stage2
	if stage1 == nil {
		stage1 = []domain.Stage1Result{}
	}
	if stage2 == nil {
		stage2 = []domain.Stage2Result{}
	}
	encode(&r.stage1, stage1)
	encode(&r.stage2, stage2)
	encode(&r.stage3, m.Stage3)
	if m.Stage4 != nil {
		encode(&r.stage4, m.Stage4)
	}
	if m.RunConfig != nil {
		encode(&r.runConfig, m.RunConfig)
	}
	if err != nil {
		return messageRow{}, fmt.Errorf("failed to encode assistant message: %w", err)
	}
	return r, nil
}

func (r messageRow) message() (domain.Message, error) {
	m := domain.Message{Role: domain.Role(r.role)}
	if m.Role != domain.RoleAssistant {
		if r.content != nil {
			m.Content = *r.content
		}
		return m, nil
	}

	decode := func(data []byte, dst any) error {
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, dst)
	}
	if err := decode(r.stage1, &m.Stage1); err != nil {
		return m, fmt.Errorf("failed to decode stage1: %w", err)
	}
	if err := decode(r.stage2, &m.Stage2); err != nil {
		return m, fmt.Errorf("failed to decode stage2: %w", err)
	}
	if err := decode(r.stage3, &m.Stage3); err != nil {
		return m, fmt.Errorf("failed to decode stage3: %w", err)
	}
	if err := decode(r.stage4, &m.Stage4); err != nil {
		return m, fmt.Errorf("failed to decode stage4: %w", err)
	}
	if err := decode(r.runConfig, &m.RunConfig); err != nil {
		return m, fmt.Errorf("failed to decode run_config: %w", err)
	}
	return m, nil
}
