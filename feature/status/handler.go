package status

import (
	"errors"

	"holdings-sync/core/logger"
	"holdings-sync/feature/catalog"
	"holdings-sync/feature/changes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for the status API.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the status routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/status")
	group.Get("/queue", h.HandleQueue)
	group.Get("/cursors", h.HandleCursors)
	group.Post("/enqueue/:id", h.HandleEnqueue)
	group.Get("/records/:id", h.HandlePreview)
}

// HandleQueue returns pending rows per priority.
func (h *Handler) HandleQueue(c *fiber.Ctx) error {
	report, err := h.service.Queue(c.Context())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Queue stats failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(report)
}

// HandleCursors returns the detector watermarks.
func (h *Handler) HandleCursors(c *fiber.Ctx) error {
	cursors, err := h.service.Cursors(c.Context())
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Cursor lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cursors)
}

// HandleEnqueue queues a record. The optional type query parameter sets the cause and so the priority.
func (h *Handler) HandleEnqueue(c *fiber.Ctx) error {
	id := c.Params("id")
	l := logger.WithRayID(h.service.logger, c).With(zap.String("record_id", id))

	typ := changes.Other
	if raw := c.Query("type"); raw != "" {
		parsed, err := changes.ParseType(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		typ = parsed
	}

	if err := h.service.Enqueue(c.Context(), id, typ); err != nil {
		l.Error("Manual enqueue failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	l.Info("Record enqueued", zap.String("type", string(typ)))
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"record_id": id,
		"type":      typ,
		"priority":  typ.Priority(),
	})
}

// HandlePreview returns the dry-run reconciliation of a record.
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	id := c.Params("id")
	preview, err := h.service.Preview(c.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Record preview failed", zap.String("record_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(preview)
}
