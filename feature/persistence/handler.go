package persistence

import (
	"errors"

	"portfolio-persist/core/logger"
	"portfolio-persist/core/persist"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves the persistence endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates the HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the persistence routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/persistence")
	group.Get("/status", h.HandleStatus)
	group.Get("/records/:kind/:id", h.HandleFind)
	group.Post("/records", h.HandleSubmit)
	group.Get("/deadletter", h.HandleDeadLetters)
}

// HandleStatus reports queue depths.
// @Summary Reconciler Status
// @Tags persistence
// @Produce json
// @Success 200 {object} Status
// @Router /persistence/status [get]
func (h *Handler) HandleStatus(c *fiber.Ctx) error {
	status, err := h.service.Status(c.Context())
	if err != nil {
		// Queue depths are still useful without the archive.
		logger.WithRayID(h.service.logger, c).Warn("Dead-letter count unavailable", zap.Error(err))
	}
	return c.JSON(status)
}

// HandleFind returns the stored state of one record.
// @Summary Find Record
// @Tags persistence
// @Produce json
// @Param kind path string true "Record kind"
// @Param id path string true "Record id"
// @Success 200 {object} persist.Record
// @Failure 404 {object} map[string]string
// @Router /persistence/records/{kind}/{id} [get]
func (h *Handler) HandleFind(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid record id"})
	}

	rec, err := h.service.Find(c.Context(), c.Params("kind"), id)
	if errors.Is(err, ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Record lookup failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rec)
}

// HandleSubmit queues a record for insert, merge or delete.
// With "sync": true the first attempt is made before responding.
// @Summary Submit Record
// @Tags persistence
// @Accept json
// @Produce json
// @Param submission body Submission true "Submission"
// @Success 202 {object} map[string]string
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 422 {object} map[string]interface{}
// @Router /persistence/records [post]
func (h *Handler) HandleSubmit(c *fiber.Ctx) error {
	var sub Submission
	if err := c.BodyParser(&sub); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	l := logger.WithRayID(h.service.logger, c)
	err := h.service.Submit(c.Context(), sub)

	var esc *persist.EscalationError
	switch {
	case err == nil && sub.Sync:
		return c.JSON(fiber.Map{"status": "processed"})
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
	case errors.Is(err, ErrInvalidSubmission):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &esc):
		l.Warn("Synchronous submission escalated", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":    err.Error(),
			"fault":    esc.Kind,
			"attempts": esc.Attempts,
		})
	default:
		l.Error("Submission failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// HandleDeadLetters lists archived escalations.
// @Summary List Dead Letters
// @Tags persistence
// @Produce json
// @Param kind query string false "Record kind"
// @Success 200 {array} deadletter.Object
// @Failure 503 {object} map[string]string
// @Router /persistence/deadletter [get]
func (h *Handler) HandleDeadLetters(c *fiber.Ctx) error {
	objs, err := h.service.DeadLetters(c.Context(), c.Query("kind"))
	if errors.Is(err, ErrNoArchive) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		logger.WithRayID(h.service.logger, c).Error("Dead-letter listing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(objs)
}
