// Package handlers exposes the chart session to the browser page controller.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/mirror"
)

// Session is the dashboard session as used by the HTTP API.
type Session interface {
	OnPageActivated(ctx context.Context, page chart.PageKey) error
	OnFilterChanged(ctx context.Context, state filters.State) error
	ApplyPreset(ctx context.Context, name string, now time.Time) error
	OnChartClicked(id chart.ID) error
	OnModalDismissed()

	Filters() filters.State
	Charts() []chart.Registered
	Chart(id chart.ID) (chart.Registered, bool)
	Modal() (mirror.State, bool)
	ExportModal() ([]byte, error)
	Pages() []dashboard.PageInfo
	Status() dashboard.Status
}

// API serves the dashboard endpoints.
type API struct {
	session Session
	version string
	// ping checks optional dependencies for /up; nil means always up.
	ping func(ctx context.Context) error
	now  func() time.Time
}

// New creates the API for session.
func New(session Session, version string, ping func(ctx context.Context) error) *API {
	return &API{session: session, version: version, ping: ping, now: time.Now}
}

// Register mounts every route on r.
func (a *API) Register(r fiber.Router) {
	r.Get("/health", a.HandleHealth)
	r.Get("/up", a.HandleUp)
	r.Get("/api/version", a.HandleVersion)

	r.Get("/api/pages", a.HandlePages)
	r.Post("/api/pages/:page_key/activate", a.HandleActivatePage)

	r.Get("/api/filters", a.HandleGetFilters)
	r.Put("/api/filters", a.HandleSetFilters)
	r.Get("/api/filters/presets", a.HandlePresets)
	r.Post("/api/filters/preset/:name", a.HandleApplyPreset)

	r.Get("/api/charts", a.HandleCharts)
	r.Get("/api/charts/:chart_id", a.HandleChart)
	r.Post("/api/charts/:chart_id/open", a.HandleOpenChart)

	r.Get("/api/modal", a.HandleModal)
	r.Delete("/api/modal", a.HandleCloseModal)
	r.Get("/api/modal/export.png", a.HandleExportModal)
}

func errorJSON(c fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
