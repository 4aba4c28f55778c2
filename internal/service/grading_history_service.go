package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/internal/repository"
)

// HistoryService owns the ordered, append-only sequence of grading results.
type HistoryService interface {
	Load(ctx context.Context) []models.HistoryItem
	Append(ctx context.Context, item models.HistoryItem) error
	List() []models.HistoryItem
	Get(id string) (models.HistoryItem, error)
}

type historyService struct {
	repo   repository.HistoryRepository
	logger zerolog.Logger

	mu    sync.RWMutex
	items []models.HistoryItem
}

// NewHistoryService wraps a history backend with an in-memory, most-recent-first copy.
func NewHistoryService(repo repository.HistoryRepository, logger zerolog.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		logger: logger.With().Str("component", "history_service").Logger(),
	}
}

// Load reads the stored history. Unreadable or corrupt data yields an empty
// history; startup never fails because of it.
func (s *historyService) Load(ctx context.Context) []models.HistoryItem {
	items, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load grading history, starting empty")
		items = nil
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.Debug().Int("count", len(items)).Msg("grading history loaded")
	return s.List()
}

func (s *historyService) Append(ctx context.Context, item models.HistoryItem) error {
	s.mu.Lock()
	s.items = append([]models.HistoryItem{item}, s.items...)
	s.mu.Unlock()

	if err := s.repo.Append(ctx, item); err != nil {
		observability.HistoryAppendFailures().Inc()
		return err
	}
	return nil
}

func (s *historyService) List() []models.HistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *historyService) Get(id string) (models.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, nil
		}
	}
	return models.HistoryItem{}, ErrHistoryItemNotFound
}
