package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/middleware"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/internal/observability"
	"github.com/noah-isme/gema-autograder/internal/service"
	"github.com/noah-isme/gema-autograder/internal/utils"
)

const defaultStreamKeepAlive = 30 * time.Second

// GradingQueueHandler exposes the grading queue over HTTP, SSE and websocket.
type GradingQueueHandler struct {
	queue     service.GradingQueueService
	events    service.QueueEventService
	validator *validator.Validate
	logger    zerolog.Logger
	drainCtx  context.Context
	keepAlive time.Duration
	startGate fiber.Handler
}

// GradingQueueHandlerOptions carries optional handler settings.
type GradingQueueHandlerOptions struct {
	// DrainContext outlives requests and is cancelled on shutdown.
	DrainContext context.Context
	KeepAlive    time.Duration
	// StartLimiter guards the start endpoint, usually a rate limiter.
	StartLimiter fiber.Handler
}

// NewGradingQueueHandler constructs a queue handler.
func NewGradingQueueHandler(queue service.GradingQueueService, events service.QueueEventService, validator *validator.Validate, logger zerolog.Logger, opts GradingQueueHandlerOptions) *GradingQueueHandler {
	drainCtx := opts.DrainContext
	if drainCtx == nil {
		drainCtx = context.Background()
	}
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultStreamKeepAlive
	}
	startGate := opts.StartLimiter
	if startGate == nil {
		startGate = func(c *fiber.Ctx) error { return c.Next() }
	}

	return &GradingQueueHandler{
		queue:     queue,
		events:    events,
		validator: validator,
		logger:    logger.With().Str("component", "grading_queue_handler").Logger(),
		drainCtx:  drainCtx,
		keepAlive: keepAlive,
		startGate: startGate,
	}
}

// Register binds the queue routes under the provided router group.
func (h *GradingQueueHandler) Register(router fiber.Router) {
	router.Get("", h.snapshot)
	router.Post("", h.enqueue)
	router.Delete("", h.clear)
	router.Post("/start", h.startGate, h.start)
	router.Post("/reset-failed", h.resetFailed)
	router.Put("/selection", h.selectItem)
	router.Get("/events", h.stream)

	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *GradingQueueHandler) snapshot(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "grading queue", h.currentSnapshot())
}

func (h *GradingQueueHandler) enqueue(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form with files is required")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return h.handleError(c, service.ErrNoFiles)
	}

	files := make([]models.SubmissionFile, 0, len(headers))
	for _, header := range headers {
		if !models.IsAcceptedSubmission(header.Filename, header.Header.Get("Content-Type")) {
			return utils.SendError(c, fiber.StatusBadRequest, fmt.Sprintf("unsupported file type: %s", header.Filename))
		}
		file, err := readUpload(header)
		if err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Str("file_name", header.Filename).Msg("failed to read upload")
			return utils.SendError(c, fiber.StatusBadRequest, fmt.Sprintf("unable to read %s", header.Filename))
		}
		files = append(files, file)
	}

	items := h.queue.Enqueue(requestContext(c), files)
	response := make([]dto.QueueItemResponse, 0, len(items))
	for _, item := range items {
		response = append(response, dto.NewQueueItemResponse(item))
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "files enqueued", response)
}

func (h *GradingQueueHandler) start(c *fiber.Ctx) error {
	ctx := middleware.ContextWithCorrelation(h.drainCtx, middleware.GetCorrelationID(c))
	if _, started := h.queue.StartOrResume(ctx); !started {
		return utils.SendSuccess(c, "grading already in progress", dto.QueueStartResponse{Started: false})
	}

	requestLogger(h.logger, c).Info().Msg("grading drain started")
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "grading started", dto.QueueStartResponse{Started: true})
}

func (h *GradingQueueHandler) clear(c *fiber.Ctx) error {
	if err := h.queue.Clear(requestContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "grading queue cleared", h.currentSnapshot())
}

func (h *GradingQueueHandler) resetFailed(c *fiber.Ctx) error {
	reset := h.queue.ResetFailed(requestContext(c))
	return utils.SendSuccess(c, "failed items reset", dto.QueueResetResponse{Reset: reset})
}

func (h *GradingQueueHandler) selectItem(c *fiber.Ctx) error {
	var payload dto.QueueSelectRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.queue.Select(requestContext(c), payload.ItemID); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "selection updated", h.currentSnapshot())
}

func (h *GradingQueueHandler) stream(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(requestContext(c))
	updates, cleanup := h.events.Subscribe()
	initial := h.currentSnapshot()
	clients := observability.StreamClientsActive().WithLabelValues("sse")
	clients.Inc()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
			clients.Dec()
		}()

		if err := writeSnapshotEvent(w, initial); err != nil {
			return
		}

		ticker := time.NewTicker(h.keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return
				}
				if err := writeSnapshotEvent(w, snapshot); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write queue event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					h.logger.Debug().Err(err).Msg("failed to write queue keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func (h *GradingQueueHandler) handleConnection(conn *websocket.Conn) {
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	updates, cleanup := h.events.Subscribe()
	defer cleanup()

	clients := observability.StreamClientsActive().WithLabelValues("websocket")
	clients.Inc()
	defer clients.Dec()

	h.logger.Info().Msg("queue websocket connected")
	defer h.logger.Info().Msg("queue websocket disconnected")

	// Inbound frames are ignored; a read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(h.currentSnapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive / 2)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				h.logger.Debug().Err(err).Msg("failed to write queue snapshot")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *GradingQueueHandler) currentSnapshot() dto.QueueSnapshotResponse {
	snapshot := h.queue.Snapshot()
	return dto.NewQueueSnapshotResponse(snapshot.Items, snapshot.IsProcessing, snapshot.SelectedID)
}

func (h *GradingQueueHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNoFiles):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQueueProcessing):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQueueItemNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case isValidationError(err):
		return utils.SendValidationError(c, fiber.StatusBadRequest, "invalid payload", validationFields(err))
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("grading queue request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// readUpload copies the upload into memory; fiber removes its temp files
// once the request completes, long before the drain reads them.
func readUpload(header *multipart.FileHeader) (models.SubmissionFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return models.NewMemoryFile(header.Filename, header.Header.Get("Content-Type"), data), nil
}

func writeSnapshotEvent(w *bufio.Writer, snapshot dto.QueueSnapshotResponse) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: queue\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
