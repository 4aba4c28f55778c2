package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/internal/utils"
)

// GradingHistoryHandler serves stored grading results.
type GradingHistoryHandler struct {
	history service.HistoryService
	queue   service.GradingQueueService
	logger  zerolog.Logger
}

// NewGradingHistoryHandler constructs a history handler.
func NewGradingHistoryHandler(history service.HistoryService, queue service.GradingQueueService, logger zerolog.Logger) *GradingHistoryHandler {
	return &GradingHistoryHandler{
		history: history,
		queue:   queue,
		logger:  logger.With().Str("component", "grading_history_handler").Logger(),
	}
}

// Register binds the history routes.
func (h *GradingHistoryHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.detail)
}

func (h *GradingHistoryHandler) list(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "grading history", dto.NewHistoryItemResponses(h.history.List()))
}

// detail returns the entry shaped as a completed queue item, the same view
// the queue uses for a selected item.
func (h *GradingHistoryHandler) detail(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "history id required")
	}

	item, err := h.queue.HistoryView(id)
	if err != nil {
		if errors.Is(err, service.ErrHistoryItemNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load history entry")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "grading history entry", dto.NewQueueItemResponse(item))
}
