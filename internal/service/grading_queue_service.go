package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

const (
	defaultItemDelay     = time.Second
	defaultItemTimeout   = 90 * time.Second
	defaultSnippetLength = 60
)

// GradingQueueConfig tunes the drain loop.
type GradingQueueConfig struct {
	// ItemDelay is the pause between items, throttling calls to the grader.
	ItemDelay time.Duration
	// ItemTimeout bounds one grading call.
	ItemTimeout time.Duration
	// SnippetLength is the number of characters of text kept in history.
	SnippetLength int
}

// QueueSnapshot is a copy of the queue state at one instant.
type QueueSnapshot struct {
	Items        []models.QueueItem
	IsProcessing bool
	SelectedID   string
}

// GradingQueueService drives submissions through extraction and grading one at a time.
type GradingQueueService interface {
	Enqueue(ctx context.Context, files []models.SubmissionFile) []models.QueueItem
	StartOrResume(ctx context.Context) (<-chan struct{}, bool)
	Clear(ctx context.Context) error
	Select(ctx context.Context, itemID string) error
	ResetFailed(ctx context.Context) int
	Snapshot() QueueSnapshot
	HistoryView(id string) (models.QueueItem, error)
}

type gradingQueueService struct {
	extractor ContentExtractor
	grader    ai.Grader
	history   HistoryService
	events    QueueEventPublisher
	logger    zerolog.Logger
	tracer    trace.Tracer
	config    GradingQueueConfig
	now       func() time.Time
	newID     func() string

	mu         sync.Mutex
	items      []models.QueueItem
	selectedID string
	processing bool
}

// itemOutcome is the result-or-error of processing one item.
type itemOutcome struct {
	content  ai.SubmissionContent
	result   ai.GradingResult
	err      error
	duration time.Duration
}

// NewGradingQueueService constructs the queue engine. events may be nil.
func NewGradingQueueService(extractor ContentExtractor, grader ai.Grader, history HistoryService, events QueueEventPublisher, logger zerolog.Logger, cfg GradingQueueConfig) GradingQueueService {
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = defaultItemDelay
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = defaultSnippetLength
	}

	return &gradingQueueService{
		extractor: extractor,
		grader:    grader,
		history:   history,
		events:    events,
		logger:    logger.With().Str("component", "grading_queue_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-autograder/internal/service/grading_queue"),
		config:    cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *gradingQueueService) Enqueue(ctx context.Context, files []models.SubmissionFile) []models.QueueItem {
	added := make([]models.QueueItem, 0, len(files))
	for _, file := range files {
		if file == nil {
			continue
		}
		identity := ParseStudentFilename(file.Name())
		added = append(added, models.QueueItem{
			ID:          s.newID(),
			File:        file,
			Status:      models.QueueStatusPending,
			StudentID:   identity.ID,
			StudentName: identity.Name,
		})
	}
	if len(added) == 0 {
		return added
	}

	s.mu.Lock()
	s.items = append(s.items, added...)
	s.mu.Unlock()

	observability.QueueEnqueued().Add(float64(len(added)))
	s.logger.Info().Int("count", len(added)).Msg("files enqueued for grading")
	s.publish(ctx)

	return added
}

// StartOrResume starts a drain unless one is already running. The returned
// channel closes when the drain finishes.
func (s *gradingQueueService) StartOrResume(ctx context.Context) (<-chan struct{}, bool) {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return nil, false
	}
	s.processing = true
	s.mu.Unlock()

	observability.QueueProcessing().Set(1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.drain(ctx)
	}()
	return done, true
}

func (s *gradingQueueService) drain(ctx context.Context) {
	start := time.Now()
	processed := 0
	logger := s.logger
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}
	logger.Info().Msg("grading queue drain started")

	defer func() {
		observability.QueueProcessing().Set(0)
		s.publish(ctx)
		logger.Info().
			Int("processed", processed).
			Dur("elapsed", time.Since(start)).
			Msg("grading queue drain finished")
	}()

	for {
		item, ok := s.claimNextPending(ctx)
		if !ok {
			return
		}
		s.publish(ctx)

		itemStart := time.Now()
		outcome := s.process(ctx, item)
		outcome.duration = time.Since(itemStart)
		s.complete(ctx, item, outcome)
		processed++
		s.publish(ctx)

		if s.config.ItemDelay > 0 && s.hasPending() {
			if err := sleepContext(ctx, s.config.ItemDelay); err != nil {
				s.stop()
				return
			}
		}
	}
}

// claimNextPending marks the first pending item as processing. When none is
// left, or ctx is done, it clears the processing flag in the same critical
// section so a concurrent Enqueue cannot be stranded.
func (s *gradingQueueService) claimNextPending(ctx context.Context) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() == nil {
		for i := range s.items {
			if s.items[i].Status == models.QueueStatusPending {
				s.items[i].Status = models.QueueStatusProcessing
				return s.items[i], true
			}
		}
	}
	s.processing = false
	return models.QueueItem{}, false
}

func (s *gradingQueueService) stop() {
	s.mu.Lock()
	s.processing = false
	s.mu.Unlock()
}

func (s *gradingQueueService) process(ctx context.Context, item models.QueueItem) (outcome itemOutcome) {
	ctx, span := s.tracer.Start(ctx, "queue.process_item", trace.WithAttributes(
		attribute.String("queue.item_id", item.ID),
		attribute.String("queue.file_name", item.FileName()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			outcome = itemOutcome{err: fmt.Errorf("grading panicked: %v", r)}
		}
		if outcome.err != nil {
			span.RecordError(outcome.err)
			span.SetStatus(codes.Error, "item failed")
		}
	}()

	content, err := s.extractor.Extract(ctx, item.File)
	if err != nil {
		return itemOutcome{err: err}
	}

	gradeCtx, cancel := context.WithTimeout(ctx, s.config.ItemTimeout)
	defer cancel()

	result, err := s.grader.Grade(gradeCtx, content)
	if err != nil {
		var gradingErr *ai.GradingError
		if !errors.As(err, &gradingErr) {
			err = &ai.GradingError{Reason: ai.ErrOracleFailure, Err: err}
		}
		return itemOutcome{content: content, err: err}
	}

	span.SetAttributes(attribute.Float64("grading.score", result.Score))
	return itemOutcome{content: content, result: result}
}

func (s *gradingQueueService) complete(ctx context.Context, item models.QueueItem, outcome itemOutcome) {
	status := models.QueueStatusCompleted
	if outcome.err != nil {
		status = models.QueueStatusError
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID != item.ID {
			continue
		}
		s.items[i].Status = status
		if outcome.err != nil {
			s.items[i].Error = outcome.err.Error()
			s.items[i].Result = nil
		} else {
			result := outcome.result
			s.items[i].Result = &result
			s.items[i].Error = ""
		}
		break
	}
	s.mu.Unlock()

	observability.QueueItemsFinished().WithLabelValues(status).Inc()
	observability.QueueItemDuration().WithLabelValues(status).Observe(outcome.duration.Seconds())

	logger := s.logger.With().Str("item_id", item.ID).Str("file_name", item.FileName()).Logger()
	if outcome.err != nil {
		logger.Warn().Err(outcome.err).Msg("queue item failed")
		return
	}

	logger.Info().Float64("score", outcome.result.Score).Msg("queue item graded")
	if s.history == nil {
		return
	}

	entry := models.HistoryItem{
		ID:          s.newID(),
		Timestamp:   s.now().UTC(),
		Score:       outcome.result.Score,
		Summary:     outcome.result.Summary,
		Feedback:    outcome.result.Feedback,
		Snippet:     snippet(outcome.content, item.FileName(), s.config.SnippetLength),
		FileName:    item.FileName(),
		StudentName: item.StudentName,
		StudentID:   item.StudentID,
	}
	entry.Breakdown = datatypes.NewJSONType(outcome.result.Breakdown)

	if err := s.history.Append(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to persist grading history")
	}
}

func (s *gradingQueueService) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Status == models.QueueStatusPending {
			return true
		}
	}
	return false
}

func (s *gradingQueueService) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return ErrQueueProcessing
	}
	s.items = nil
	s.selectedID = ""
	s.mu.Unlock()

	s.publish(ctx)
	return nil
}

// Select sets the item shown in detail. An empty id clears the selection.
func (s *gradingQueueService) Select(ctx context.Context, itemID string) error {
	s.mu.Lock()
	if itemID != "" && s.indexOf(itemID) < 0 {
		s.mu.Unlock()
		return ErrQueueItemNotFound
	}
	s.selectedID = itemID
	s.mu.Unlock()

	s.publish(ctx)
	return nil
}

// ResetFailed moves every error item back to pending. A drain never does this
// on its own.
func (s *gradingQueueService) ResetFailed(ctx context.Context) int {
	s.mu.Lock()
	reset := 0
	for i := range s.items {
		if s.items[i].Status == models.QueueStatusError {
			s.items[i].Status = models.QueueStatusPending
			s.items[i].Error = ""
			reset++
		}
	}
	s.mu.Unlock()

	if reset > 0 {
		s.publish(ctx)
	}
	return reset
}

func (s *gradingQueueService) Snapshot() QueueSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.QueueItem, len(s.items))
	copy(items, s.items)
	for i := range items {
		if items[i].Result != nil {
			result := *items[i].Result
			items[i].Result = &result
		}
	}

	return QueueSnapshot{
		Items:        items,
		IsProcessing: s.processing,
		SelectedID:   s.selectedID,
	}
}

// HistoryView rebuilds a completed, display-only queue item from a history
// entry. The item is never added to the queue.
func (s *gradingQueueService) HistoryView(id string) (models.QueueItem, error) {
	if s.history == nil {
		return models.QueueItem{}, ErrHistoryItemNotFound
	}
	entry, err := s.history.Get(id)
	if err != nil {
		return models.QueueItem{}, err
	}

	result := entry.GradingResult()
	return models.QueueItem{
		ID:          entry.ID,
		File:        models.NewMemoryFile(entry.FileName, "", nil),
		Status:      models.QueueStatusCompleted,
		StudentID:   entry.StudentID,
		StudentName: entry.StudentName,
		Result:      &result,
	}, nil
}

func (s *gradingQueueService) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *gradingQueueService) publish(ctx context.Context) {
	if s.events == nil {
		return
	}
	snapshot := s.Snapshot()
	s.events.Publish(ctx, dto.NewQueueSnapshotResponse(snapshot.Items, snapshot.IsProcessing, snapshot.SelectedID))
}

func snippet(content ai.SubmissionContent, fileName string, limit int) string {
	if content.Kind != ai.ContentKindText {
		return fileName
	}
	if utf8.RuneCountInString(content.Data) <= limit {
		return content.Data
	}
	runes := []rune(content.Data)
	return string(runes[:limit]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
