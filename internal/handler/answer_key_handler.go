package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/classboard/classboard-api/internal/dto"
	"github.com/classboard/classboard-api/internal/service"
	"github.com/classboard/classboard-api/internal/utils"
)

// AnswerKeyHandler wires answer key HTTP routes.
type AnswerKeyHandler struct {
	service service.AnswerKeyService
	logger  zerolog.Logger
}

// NewAnswerKeyHandler constructs the handler.
func NewAnswerKeyHandler(service service.AnswerKeyService, logger zerolog.Logger) *AnswerKeyHandler {
	return &AnswerKeyHandler{
		service: service,
		logger:  logger.With().Str("component", "answer_key_handler").Logger(),
	}
}

// Register attaches answer key endpoints to the router group. Keys hang off
// the assignment they answer.
func (h *AnswerKeyHandler) Register(router fiber.Router) {
	router.Get("/:id/answer-key", h.get)
	router.Get("/:id/answer-key/history", h.history)
	router.Post("/:id/answer-key", h.create)
}

func (h *AnswerKeyHandler) get(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	key, err := h.service.GetForAssignment(c.Context(), assignmentID)
	if err != nil {
		if errors.Is(err, service.ErrAnswerKeyMissing) {
			return utils.SendError(c, fiber.StatusNotFound, "answer key not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "answer key retrieved", key)
}

func (h *AnswerKeyHandler) history(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	keys, err := h.service.History(c.Context(), assignmentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "answer key history retrieved", keys)
}

func (h *AnswerKeyHandler) create(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	payload := dto.AnswerKeyCreateRequest{
		AssignmentID: assignmentID,
		TeacherName:  c.FormValue("teacher_name"),
		Content:      c.FormValue("content"),
	}

	key, err := h.service.Create(c.Context(), payload, formFiles(c, "files"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "answer key uploaded", key)
}

func (h *AnswerKeyHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrAnswerKeyEmpty):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrUnsupportedFileType):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *AnswerKeyHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
