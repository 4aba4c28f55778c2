package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-autograder/internal/models"
)

// ErrHistoryCorrupt indicates the stored history record could not be decoded.
var ErrHistoryCorrupt = errors.New("stored grading history is corrupt")

// HistoryRepository persists completed grading results. Load returns items
// most-recent-first; Append adds one item to the front.
type HistoryRepository interface {
	Load(ctx context.Context) ([]models.HistoryItem, error)
	Append(ctx context.Context, item models.HistoryItem) error
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository stores history rows in a SQL table through gorm.
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Load(ctx context.Context) ([]models.HistoryItem, error) {
	var items []models.HistoryItem
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *historyRepository) Append(ctx context.Context, item models.HistoryItem) error {
	return r.db.WithContext(ctx).Create(&item).Error
}

func decodeHistory(data []byte) ([]models.HistoryItem, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var items []models.HistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryCorrupt, err)
	}
	return items, nil
}

func prependHistory(items []models.HistoryItem, item models.HistoryItem) []models.HistoryItem {
	out := make([]models.HistoryItem, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}
