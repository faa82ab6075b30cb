package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/models"
	"github.com/classboard/classboard-api/internal/service"
	"github.com/classboard/classboard-api/internal/utils"
	"github.com/classboard/classboard-api/pkg/ai"
)

// EvaluationHandler wires grading endpoints including the batch status
// websocket stream.
type EvaluationHandler struct {
	service    service.EvaluationService
	statistics service.StatisticsService
	events     *service.BatchEvents
	logger     zerolog.Logger
}

// NewEvaluationHandler constructs the handler. events may be nil, in which
// case the websocket stream only reports the current status once.
func NewEvaluationHandler(service service.EvaluationService, statistics service.StatisticsService, events *service.BatchEvents, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service:    service,
		statistics: statistics,
		events:     events,
		logger:     logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches grading endpoints to the evaluations router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/single", h.single)
	router.Post("/batch", h.batch)
	router.Get("/batches/:id", h.batchStatus)
	router.Delete("/batches/:id", h.cancelBatch)

	router.Use("/batches/:id/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/batches/:id/ws", websocket.New(h.streamBatch))
}

// RegisterAssignmentRoutes attaches the per-assignment read endpoints.
func (h *EvaluationHandler) RegisterAssignmentRoutes(router fiber.Router) {
	router.Get("/:id/evaluations", h.listEvaluations)
	router.Get("/:id/summary", h.summary)
}

func (h *EvaluationHandler) single(c *fiber.Ctx) error {
	var payload dto.SingleEvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	evaluation, err := h.service.EvaluateSingle(c.Context(), payload.AssignmentID, payload.SubmissionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission evaluated", evaluation)
}

func (h *EvaluationHandler) batch(c *fiber.Ctx) error {
	var payload dto.BatchEvaluationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if strings.EqualFold(c.Query("wait"), "true") {
		status, err := h.service.RunBatch(c.Context(), payload)
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, "batch evaluation finished", status)
	}

	status, err := h.service.StartBatch(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "batch evaluation started", status)
}

func (h *EvaluationHandler) batchStatus(c *fiber.Ctx) error {
	status, err := h.service.GetBatchStatus(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch status retrieved", status)
}

func (h *EvaluationHandler) cancelBatch(c *fiber.Ctx) error {
	if err := h.service.CancelBatch(c.Context(), c.Params("id")); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "batch cancellation requested", fiber.Map{"id": c.Params("id")})
}

// streamBatch pushes progress events for one batch over a websocket until the
// batch reaches a terminal status or the client goes away.
func (h *EvaluationHandler) streamBatch(conn *websocket.Conn) {
	defer conn.Close()

	batchID := conn.Params("id")

	var events <-chan service.BatchEvent
	var cancel func()
	if h.events != nil {
		events, cancel = h.events.Subscribe(batchID)
		defer cancel()
	}

	status, err := h.service.GetBatchStatus(context.Background(), batchID)
	if err != nil {
		_ = conn.WriteJSON(fiber.Map{"error": "batch not found"})
		return
	}

	if err := conn.WriteJSON(status); err != nil {
		return
	}
	if terminalStatus(status.Status) || events == nil {
		return
	}

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if terminalStatus(event.Status) {
			return
		}
	}
}

func terminalStatus(status string) bool {
	return status == models.BatchStatusCompleted || status == models.BatchStatusCompletedWithErrors
}

func (h *EvaluationHandler) listEvaluations(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	evaluations, err := h.service.GetEvaluations(c.Context(), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "evaluations retrieved", evaluations)
}

func (h *EvaluationHandler) summary(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	summary, err := h.statistics.Summarize(c.Context(), assignmentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "assignment summary retrieved", summary)
}

func (h *EvaluationHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrBatchNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "batch not found")
	case errors.Is(err, service.ErrAnswerKeyMissing):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "answer key missing for assignment")
	case errors.Is(err, service.ErrSubmissionMismatch):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrDuplicateSubmission):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrBatchTerminal):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrGraderUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, "grading is not configured")
	case errors.Is(err, ai.ErrInvalidInput):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ai.ErrTimeout):
		return utils.SendError(c, fiber.StatusGatewayTimeout, "grading call timed out")
	case errors.Is(err, ai.ErrService):
		return utils.SendError(c, fiber.StatusBadGateway, "grading service failed")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
