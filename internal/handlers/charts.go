package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/logging"
	"github.com/seuros/scalex/internal/render"
)

// HandleCharts returns every chart on the active page
// GET /api/charts
func (a *API) HandleCharts(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"charts": a.session.Charts()})
}

// HandleChart returns one chart
// GET /api/charts/:chart_id
func (a *API) HandleChart(c fiber.Ctx) error {
	got, ok := a.session.Chart(chart.ID(c.Params("chart_id")))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "Chart not found")
	}
	return c.JSON(got)
}

// HandleOpenChart opens a chart in the modal
// POST /api/charts/:chart_id/open
func (a *API) HandleOpenChart(c fiber.Ctx) error {
	id := chart.ID(c.Params("chart_id"))
	if err := a.session.OnChartClicked(id); err != nil {
		if dashboard.IsNotRegistered(err) {
			return errorJSON(c, fiber.StatusNotFound, "Chart not on the current page")
		}
		logging.L().Error("modal open failed", "chart", id, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to open chart")
	}
	return a.HandleModal(c)
}

// HandleModal returns the open modal
// GET /api/modal
func (a *API) HandleModal(c fiber.Ctx) error {
	state, open := a.session.Modal()
	if !open {
		return c.JSON(fiber.Map{"open": false})
	}
	return c.JSON(fiber.Map{"open": true, "modal": state})
}

// HandleCloseModal closes the modal
// DELETE /api/modal
func (a *API) HandleCloseModal(c fiber.Ctx) error {
	a.session.OnModalDismissed()
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleExportModal renders the open modal as PNG
// GET /api/modal/export.png
func (a *API) HandleExportModal(c fiber.Ctx) error {
	img, err := a.session.ExportModal()
	switch {
	case errors.Is(err, dashboard.ErrModalClosed):
		return errorJSON(c, fiber.StatusNotFound, "No chart open")
	case errors.Is(err, render.ErrNothingToRender):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "Chart has no data to export")
	case err != nil:
		logging.L().Error("modal export failed", "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to export chart")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img)
}
