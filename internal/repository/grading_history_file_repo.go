package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/noah-isme/gema-autograder/internal/models"
)

type fileHistoryRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileHistoryRepository keeps the whole history as one JSON document at path.
func NewFileHistoryRepository(path string) HistoryRepository {
	return &fileHistoryRepository{path: path}
}

func (r *fileHistoryRepository) Load(ctx context.Context) ([]models.HistoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Append rewrites the full document. A corrupt document is replaced.
func (r *fileHistoryRepository) Append(ctx context.Context, item models.HistoryItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	items, err := r.read()
	if err != nil && !errors.Is(err, ErrHistoryCorrupt) {
		return err
	}

	payload, err := json.Marshal(prependHistory(items, item))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return r.writeAtomic(payload)
}

func (r *fileHistoryRepository) read() ([]models.HistoryItem, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(data)
}

// writeAtomic replaces the document so readers never observe a partial write.
func (r *fileHistoryRepository) writeAtomic(payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	if err := renameio.WriteFile(r.path, payload, 0o644); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
