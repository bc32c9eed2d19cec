// Package files stores conversation attachments on disk and turns them
// into model context.
package files

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahrav/go-council/infrastructure/storage"
	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

// MaxImageBytes is the largest image sent to models inline.
const MaxImageBytes = 2 * 1024 * 1024

var nameReplacer = strings.NewReplacer("/", "_", `\`, "_")

// Manager stores uploaded files under <dir>/<conversation id>/ and keeps
// their metadata in a FileCatalog.
type Manager struct {
	dir     string
	catalog ports.FileCatalog
	logger  zerolog.Logger
	now     func() time.Time
}

var _ ports.FileContextProvider = (*Manager)(nil)

// NewManager creates a manager rooted at dir. A nil catalog keeps metadata
// in per-conversation JSON manifests.
func NewManager(dir string, catalog ports.FileCatalog, logger zerolog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create files dir: %w", err)
	}
	if catalog == nil {
		catalog = NewManifestCatalog(dir)
	}
	return &Manager{dir: dir, catalog: catalog, logger: logger, now: time.Now}, nil
}

// Save writes an upload to disk, extracts its text, and records it.
func (m *Manager) Save(ctx context.Context, conversationID, filename, contentType string, data []byte) (domain.ConversationFile, error) {
	if !storage.ValidID(conversationID) {
		return domain.ConversationFile{}, domain.ErrConversationNotFound
	}
	if filename == "" {
		filename = "upload"
	}

	convDir := filepath.Join(m.dir, conversationID)
	if err := os.MkdirAll(convDir, 0o755); err != nil {
		return domain.ConversationFile{}, fmt.Errorf("failed to create files dir: %w", err)
	}

	f := domain.ConversationFile{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Filename:       filename,
		ContentType:    resolveContentType(contentType, data),
		SizeBytes:      int64(len(data)),
		CreatedAt:      m.now().UTC().Format(storage.TimestampLayout),
	}
	f.StoragePath = filepath.Join(convDir, f.ID+"_"+nameReplacer.Replace(filename))
	f.IsImage = IsImage(f.ContentType)

	if err := os.WriteFile(f.StoragePath, data, 0o644); err != nil {
		return domain.ConversationFile{}, fmt.Errorf("failed to write %s: %w", filename, err)
	}

	if !f.IsImage {
		text, err := extractText(f.ContentType, filename, data)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", filename).Msg("text extraction failed")
		}
		f.ExtractedText = text
	}

	if err := m.catalog.AddFile(ctx, f); err != nil {
		_ = os.Remove(f.StoragePath)
		return domain.ConversationFile{}, err
	}

	m.logger.Debug().
		Str("conversation_id", conversationID).
		Str("file", filename).
		Str("content_type", f.ContentType).
		Int64("size", f.SizeBytes).
		Msg("file saved")
	return f, nil
}

// List returns a conversation's files in upload order.
func (m *Manager) List(ctx context.Context, conversationID string) ([]domain.ConversationFile, error) {
	return m.catalog.ListFiles(ctx, conversationID)
}

// Delete removes a file and its record, or returns domain.ErrFileNotFound.
func (m *Manager) Delete(ctx context.Context, conversationID, fileID string) error {
	f, err := m.catalog.RemoveFile(ctx, conversationID, fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(f.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn().Err(err).Str("path", f.StoragePath).Msg("failed to remove file")
	}
	return nil
}

// Open returns a file whose bytes are still on disk, or
// domain.ErrFileNotFound.
func (m *Manager) Open(ctx context.Context, conversationID, fileID string) (domain.ConversationFile, error) {
	f, err := m.catalog.GetFile(ctx, conversationID, fileID)
	if err != nil {
		return f, err
	}
	if _, err := os.Stat(f.StoragePath); err != nil {
		return f, domain.ErrFileNotFound
	}
	return f, nil
}

// GetContext joins the extracted text of every file into one block and
// inlines images no larger than MaxImageBytes.
func (m *Manager) GetContext(ctx context.Context, conversationID string) (string, []domain.Image, error) {
	files, err := m.catalog.ListFiles(ctx, conversationID)
	if err != nil {
		return "", nil, err
	}

	var parts []string
	var images []domain.Image
	for _, f := range files {
		if f.IsImage {
			if f.SizeBytes > MaxImageBytes {
				continue
			}
			data, err := os.ReadFile(f.StoragePath)
			if err != nil {
				m.logger.Warn().Err(err).Str("file", f.Filename).Msg("image unavailable")
				continue
			}
			images = append(images, domain.Image{
				MIMEType:   f.ContentType,
				Base64Data: base64.StdEncoding.EncodeToString(data),
			})
			continue
		}
		if f.ExtractedText != "" {
			parts = append(parts, fmt.Sprintf("--- %s ---\n%s", f.Filename, f.ExtractedText))
		}
	}
	return strings.Join(parts, "\n\n"), images, nil
}
