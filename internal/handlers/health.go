package handlers

import (
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/logging"
)

// HandleHealth returns the service status
// GET /health
func (a *API) HandleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "scalex",
		"version": a.version,
		"session": a.session.Status(),
	})
}

// HandleUp is the container health check
// GET /up
func (a *API) HandleUp(c fiber.Ctx) error {
	if a.ping != nil {
		if err := a.ping(c.Context()); err != nil {
			logging.L().Warn("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).SendString("database unavailable")
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

// HandleVersion returns the running version
// GET /api/version
func (a *API) HandleVersion(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": a.version})
}
