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

// PostHandler wires classroom post HTTP routes.
type PostHandler struct {
	service service.PostService
	logger  zerolog.Logger
}

// NewPostHandler constructs the handler.
func NewPostHandler(service service.PostService, logger zerolog.Logger) *PostHandler {
	return &PostHandler{
		service: service,
		logger:  logger.With().Str("component", "post_handler").Logger(),
	}
}

// Register attaches post endpoints to the router group.
func (h *PostHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Delete("/:id", h.delete)
}

func (h *PostHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	posts, err := h.service.List(c.Context(), limit, offset)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "posts retrieved", posts)
}

func (h *PostHandler) create(c *fiber.Ctx) error {
	payload := dto.PostCreateRequest{
		AuthorName: c.FormValue("author_name"),
		Title:      c.FormValue("title"),
		Body:       c.FormValue("body"),
	}

	post, err := h.service.Create(c.Context(), payload, formFiles(c, "files"))
	if err != nil {
		var validationErrors validator.ValidationErrors
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
		case errors.As(err, &validationErrors):
			return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
		default:
			return h.internalError(c, err)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "post published", post)
}

func (h *PostHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "post not found")
		}
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "post deleted", fiber.Map{"id": id})
}

func (h *PostHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
