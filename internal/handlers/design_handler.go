package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"design-studio/internal/dataurl"
	"design-studio/internal/document"
	"design-studio/internal/libraries"
	applog "design-studio/internal/log"
	"design-studio/internal/models"
	"design-studio/internal/repo"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImageGenerator turns a prompt into an image data URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) (string, error)
}

// DesignEvents is told about every stored version.
type DesignEvents interface {
	PublishDesignSaved(designID string, version int)
}

// for simple crud operations service layer is not required
type DesignHandler struct {
	repo   repo.DesignRepoInterface
	thumbs libraries.ThumbnailStore
	events DesignEvents
	images ImageGenerator
	log    *slog.Logger
}

// NewDesignHandler wires the handler. thumbs, events and images may be nil.
func NewDesignHandler(repo repo.DesignRepoInterface, thumbs libraries.ThumbnailStore, events DesignEvents, images ImageGenerator) *DesignHandler {
	return &DesignHandler{
		repo:   repo,
		thumbs: thumbs,
		events: events,
		images: images,
		log:    applog.WithComponent("designs"),
	}
}

// designPayload is the create/update body. canvasData may be a JSON string holding the
// serialized document or the document itself.
type designPayload struct {
	ID         string          `json:"id"`
	Prompt     string          `json:"prompt"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Size       string          `json:"size"`
	CanvasData json.RawMessage `json:"canvasData"`
	ImageURL   string          `json:"imageUrl"`
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func designResponse(c *fiber.Ctx, status int, design *models.Design) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"design": design},
	})
}

// toModel validates the body and converts it to a design row.
func (h *DesignHandler) toModel(dto designPayload) (*models.Design, string) {
	if err := document.Validate(dto.CanvasData); err != nil {
		if errors.Is(err, document.ErrNoCanvasData) {
			return nil, "canvasData is required"
		}
		return nil, "Invalid canvas data: " + strings.TrimPrefix(err.Error(), document.ErrInvalidCanvasData.Error()+": ")
	}
	value, err := document.Unwrap(dto.CanvasData)
	if err != nil {
		return nil, "Invalid canvas data"
	}
	if dto.Size != "" {
		if _, _, err := document.ParseSize(dto.Size); err != nil {
			return nil, "Invalid size, expected WIDTHxHEIGHT"
		}
	}
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		name = document.DefaultName
	}
	category := dto.Category
	if category == "" {
		category = document.Category
	}
	return &models.Design{
		Name:       name,
		Category:   category,
		Size:       dto.Size,
		Prompt:     dto.Prompt,
		CanvasData: datatypes.JSON(value),
		ImageURL:   dto.ImageURL,
	}, ""
}

// storeThumbnail replaces an inline data URL with the URL of the stored image. A thumbnail
// that cannot be stored is dropped; the design itself still saves.
func (h *DesignHandler) storeThumbnail(ctx context.Context, design *models.Design) {
	if !dataurl.Is(design.ImageURL) {
		return
	}
	inline := design.ImageURL
	design.ImageURL = ""
	if h.thumbs == nil {
		return
	}
	mime, data, err := dataurl.Decode(inline)
	if err != nil {
		h.log.Warn("invalid thumbnail data url", "design_id", design.UUID, "error", err)
		return
	}
	url, err := h.thumbs.Put(ctx, design.UUID.String(), mime, data)
	if err != nil {
		h.log.Error("store thumbnail", "design_id", design.UUID, "error", err)
		return
	}
	design.ImageURL = url
}

func (h *DesignHandler) published(design *models.Design) {
	if h.events != nil {
		h.events.PublishDesignSaved(design.UUID.String(), design.Version)
	}
}

// function to create a design. A client-chosen id in the body is adopted; creating an id
// that already exists stores the body as a new version of it, so a repeated create is harmless.
func (h *DesignHandler) CreateDesign(c *fiber.Ctx) error {
	var dto designPayload
	if err := c.BodyParser(&dto); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	id := uuid.New()
	if dto.ID != "" {
		parsed, err := uuid.Parse(dto.ID)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "Invalid design ID")
		}
		id = parsed
	}
	design, msg := h.toModel(dto)
	if design == nil {
		return fail(c, fiber.StatusBadRequest, msg)
	}

	design.UUID = id
	h.storeThumbnail(c.UserContext(), design)
	if dto.ID != "" {
		if _, err := h.repo.GetDesignByID(id); err == nil {
			updated, err := h.repo.UpdateDesign(design)
			if err != nil {
				h.log.Error("repeat create", "design_id", id, "error", err)
				return fail(c, fiber.StatusInternalServerError, "Failed to create design")
			}
			h.log.Info("design create repeated", "design_id", id, "version", updated.Version)
			h.published(updated)
			return designResponse(c, fiber.StatusOK, updated)
		} else if !errors.Is(err, repo.ErrDesignNotFound) {
			h.log.Error("create design", "design_id", id, "error", err)
			return fail(c, fiber.StatusInternalServerError, "Failed to create design")
		}
	}
	if _, err := h.repo.CreateDesign(design); err != nil {
		h.log.Error("create design", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to create design")
	}
	h.log.Info("design created", "design_id", design.UUID, "size", design.Size)
	h.published(design)
	return designResponse(c, fiber.StatusCreated, design)
}

// function to update a design; the id travels in the body
func (h *DesignHandler) UpdateDesign(c *fiber.Ctx) error {
	var dto designPayload
	if err := c.BodyParser(&dto); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if dto.ID == "" {
		return fail(c, fiber.StatusBadRequest, "Design ID is required")
	}
	id, err := uuid.Parse(dto.ID)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid design ID")
	}
	design, msg := h.toModel(dto)
	if design == nil {
		return fail(c, fiber.StatusBadRequest, msg)
	}

	design.UUID = id
	h.storeThumbnail(c.UserContext(), design)
	updated, err := h.repo.UpdateDesign(design)
	if errors.Is(err, repo.ErrDesignNotFound) {
		return fail(c, fiber.StatusNotFound, "Design not found")
	}
	if err != nil {
		h.log.Error("update design", "design_id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to update design")
	}
	h.log.Info("design updated", "design_id", id, "version", updated.Version)
	h.published(updated)
	return designResponse(c, fiber.StatusOK, updated)
}

// function to get a design by ID
func (h *DesignHandler) GetDesignByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("designId"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid design ID")
	}
	design, err := h.repo.GetDesignByID(id)
	if errors.Is(err, repo.ErrDesignNotFound) {
		return fail(c, fiber.StatusNotFound, "Design not found")
	}
	if err != nil {
		h.log.Error("get design", "design_id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to get design")
	}
	return designResponse(c, fiber.StatusOK, design)
}

// function to get all designs
func (h *DesignHandler) GetAllDesigns(c *fiber.Ctx) error {
	designs, err := h.repo.GetAllDesigns()
	if err != nil {
		h.log.Error("list designs", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to get designs")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"designs": designs},
	})
}

func (h *DesignHandler) DeleteDesign(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("designId"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid design ID")
	}
	err = h.repo.DeleteDesign(id)
	if errors.Is(err, repo.ErrDesignNotFound) {
		return fail(c, fiber.StatusNotFound, "Design not found")
	}
	if err != nil {
		h.log.Error("delete design", "design_id", id, "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to delete design")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Design deleted successfully",
	})
}

// function to generate an image for the canvas from a prompt
func (h *DesignHandler) GenerateImage(c *fiber.Ctx) error {
	if h.images == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Image generation is not configured")
	}
	var dto struct {
		Prompt string `json:"prompt"`
		Size   string `json:"size"`
	}
	if err := c.BodyParser(&dto); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(dto.Prompt) == "" {
		return fail(c, fiber.StatusBadRequest, "Prompt is required")
	}
	url, err := h.images.Generate(c.UserContext(), dto.Prompt, dto.Size)
	if err != nil {
		h.log.Error("generate image", "error", err)
		return fail(c, fiber.StatusBadGateway, "Failed to generate image")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"imageUrl": url},
	})
}
