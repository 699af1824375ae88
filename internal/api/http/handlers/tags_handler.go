package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/helpdesk-bridge/internal/api/dto"
	"github.com/supportdesk/helpdesk-bridge/internal/domain"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/pkg/errorutil"
)

// TagsHandler manages label CRUD.
type TagsHandler struct {
	tags repository.TagRepository
}

// NewTagsHandler constructs handler.
func NewTagsHandler(tags repository.TagRepository) *TagsHandler {
	return &TagsHandler{tags: tags}
}

// List GET /api/tags.
func (h *TagsHandler) List(c *fiber.Ctx) error {
	tags, err := h.tags.List(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.TagResponse, 0, len(tags))
	for _, tag := range tags {
		items = append(items, dto.TagResponse{ID: tag.ID, Name: tag.Name, Color: tag.Color})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /api/tags.
func (h *TagsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTagRequest
	if err := c.BodyParser(&req); err != nil {
		return errorutil.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return errorutil.NewValidationError("name required", nil)
	}

	tag := &domain.Tag{Name: strings.TrimSpace(req.Name), Color: req.Color}
	if err := h.tags.Create(c.Context(), tag); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TagResponse{
		ID:    tag.ID,
		Name:  tag.Name,
		Color: tag.Color,
	}})
}

// Delete DELETE /api/tags/:id.
func (h *TagsHandler) Delete(c *fiber.Ctx) error {
	if err := h.tags.Delete(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": "deleted"})
}
