package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/logging"
)

// HandlePages lists the dashboard pages
// GET /api/pages
func (a *API) HandlePages(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"pages": a.session.Pages()})
}

// HandleActivatePage switches the active page and loads its charts. Charts
// that failed to load are returned in their error state, not as an error.
// POST /api/pages/:page_key/activate
func (a *API) HandleActivatePage(c fiber.Ctx) error {
	page := chart.PageKey(c.Params("page_key"))

	if err := a.session.OnPageActivated(c.Context(), page); err != nil {
		if dashboard.IsUnknownPage(err) {
			return errorJSON(c, fiber.StatusNotFound, "Unknown page")
		}
		logging.L().Error("page activation failed", "page", page, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to activate page")
	}

	return c.JSON(fiber.Map{
		"page":   page,
		"charts": a.session.Charts(),
		"status": a.session.Status(),
	})
}
