package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/logging"
)

// HandleGetFilters returns the current filter state
// GET /api/filters
func (a *API) HandleGetFilters(c fiber.Ctx) error {
	return c.JSON(a.session.Filters())
}

// HandleSetFilters replaces the filter state and refreshes the active page
// PUT /api/filters
func (a *API) HandleSetFilters(c fiber.Ctx) error {
	var state filters.State
	if err := c.Bind().JSON(&state); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	return a.applyFilters(c, a.session.OnFilterChanged(c.Context(), state))
}

// HandlePresets lists the date range presets
// GET /api/filters/presets
func (a *API) HandlePresets(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"presets": filters.PresetNames()})
}

// HandleApplyPreset sets the date range from a named preset
// POST /api/filters/preset/:name
func (a *API) HandleApplyPreset(c fiber.Ctx) error {
	return a.applyFilters(c, a.session.ApplyPreset(c.Context(), c.Params("name"), a.now()))
}

func (a *API) applyFilters(c fiber.Ctx, err error) error {
	if err != nil {
		var verr *filters.ValidationError
		if errors.As(err, &verr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": verr.Error(),
				"field": verr.Field,
			})
		}
		logging.L().Error("filter update failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to save filters")
	}
	return c.JSON(fiber.Map{
		"filters": a.session.Filters(),
		"charts":  a.session.Charts(),
	})
}
