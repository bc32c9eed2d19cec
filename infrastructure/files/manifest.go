package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ahrav/go-council/infrastructure/storage"
	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/ports"
)

const manifestName = "_manifest.json"

// ManifestCatalog records file metadata in a JSON manifest next to each
// conversation's files.
type ManifestCatalog struct {
	dir string
	mu  sync.Mutex
}

var _ ports.FileCatalog = (*ManifestCatalog)(nil)

// NewManifestCatalog creates a catalog rooted at dir.
func NewManifestCatalog(dir string) *ManifestCatalog {
	return &ManifestCatalog{dir: dir}
}

func (c *ManifestCatalog) manifestPath(conversationID string) string {
	return filepath.Join(c.dir, conversationID, manifestName)
}

func (c *ManifestCatalog) AddFile(_ context.Context, f domain.ConversationFile) error {
	if !storage.ValidID(f.ConversationID) {
		return fmt.Errorf("invalid conversation id %q", f.ConversationID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(f.ConversationID)
	if err != nil {
		return err
	}
	return c.save(f.ConversationID, append(entries, f))
}

func (c *ManifestCatalog) ListFiles(_ context.Context, conversationID string) ([]domain.ConversationFile, error) {
	if !storage.ValidID(conversationID) {
		return []domain.ConversationFile{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(conversationID)
}

func (c *ManifestCatalog) GetFile(_ context.Context, conversationID, fileID string) (domain.ConversationFile, error) {
	if !storage.ValidID(conversationID) {
		return domain.ConversationFile{}, domain.ErrFileNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(conversationID)
	if err != nil {
		return domain.ConversationFile{}, err
	}
	i := slices.IndexFunc(entries, func(e domain.ConversationFile) bool { return e.ID == fileID })
	if i < 0 {
		return domain.ConversationFile{}, domain.ErrFileNotFound
	}
	return entries[i], nil
}

func (c *ManifestCatalog) RemoveFile(_ context.Context, conversationID, fileID string) (domain.ConversationFile, error) {
	if !storage.ValidID(conversationID) {
		return domain.ConversationFile{}, domain.ErrFileNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load(conversationID)
	if err != nil {
		return domain.ConversationFile{}, err
	}
	i := slices.IndexFunc(entries, func(e domain.ConversationFile) bool { return e.ID == fileID })
	if i < 0 {
		return domain.ConversationFile{}, domain.ErrFileNotFound
	}
	removed := entries[i]
	if err := c.save(conversationID, slices.Delete(entries, i, i+1)); err != nil {
		return domain.ConversationFile{}, err
	}
	return removed, nil
}

func (c *ManifestCatalog) load(conversationID string) ([]domain.ConversationFile, error) {
	data, err := os.ReadFile(c.manifestPath(conversationID))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.ConversationFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file manifest: %w", err)
	}
	var entries []domain.ConversationFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode file manifest: %w", err)
	}
	if entries == nil {
		entries = []domain.ConversationFile{}
	}
	return entries, nil
}

func (c *ManifestCatalog) save(conversationID string, entries []domain.ConversationFile) error {
	if err := os.MkdirAll(filepath.Join(c.dir, conversationID), 0o755); err != nil {
		return fmt.Errorf("failed to create files dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode file manifest: %w", err)
	}
	return storage.WriteFileAtomic(c.manifestPath(conversationID), data)
}
