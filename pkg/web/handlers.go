// Package web provides HTTP handlers for browsing run history.
package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/dukex/conveyor/pkg/history"
)

type RunHandlers struct {
	store history.Store
}

func NewRunHandlers(store history.Store) *RunHandlers {
	return &RunHandlers{store: store}
}

func (h *RunHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.store.HealthCheck(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *RunHandlers) GetRuns(c fiber.Ctx) error {
	records, err := h.store.Runs(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"runs":        records,
		"total_count": len(records),
	})
}

func (h *RunHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	record, err := h.store.RunByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}
