package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/handlers"
	"github.com/seuros/scalex/internal/logging"
	"github.com/seuros/scalex/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Scalex dashboard server",
	Long: `Start the Scalex dashboard server.

The server owns one chart session. Browsers connect to /ws to receive chart
operations and drive the session through the /api endpoints.

Environment variables:
  PORT                     Server port (default: 3000)
  SCALEX_API_BASE_URL      Performance API base URL (default: http://localhost:8000)
  SCALEX_FILTER_STORE      memory, file or postgres (default: file)
  SCALEX_REFRESH_INTERVAL  Periodic refresh of the active page, e.g. 5m (default: off)
  DATA_DIR                 Directory for the file filter store (default: ./data)
  DATABASE_URL             PostgreSQL connection string (postgres filter store)
  TRUSTED_ORIGINS          Comma-separated hosts allowed by CORS

Example:
  SCALEX_API_BASE_URL=http://localhost:8000 scalex serve --port 3000`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	drawer := realtime.NewDrawer()
	defer drawer.Close()

	rt, err := buildRuntime(ctx, cfg, drawer)
	if err != nil {
		return err
	}
	defer rt.Close()

	scheduler := dashboard.NewRefreshScheduler(rt.session, cfg.RefreshInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	app := newServer(rt, drawer)

	errCh := make(chan error, 1)
	go func() {
		logging.L().Info("starting server", "port", cfg.Port, "version", Version)
		errCh <- app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newServer builds the dashboard app around an assembled runtime.
func newServer(rt *runtime, drawer *realtime.Drawer) *fiber.App {
	app := fiber.New(createFiberConfig("Scalex"))

	app.Use(recover.New())
	app.Use(fiberzap.New(fiberzap.Config{Logger: logging.Zap()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: rt.cfg.CORSOrigins(),
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Add version header to all responses
	app.Use(func(c fiber.Ctx) error {
		c.Set("X-Scalex-Version", Version)
		return c.Next()
	})

	var ping func(ctx context.Context) error
	if rt.db != nil {
		ping = rt.db.PingContext
	}
	handlers.New(rt.session, Version, ping).Register(app)

	if drawer != nil {
		app.Get("/ws", drawer.Handler())
		app.Get("/api/realtime", func(c fiber.Ctx) error {
			return c.JSON(drawer.Hub().Stats())
		})
	}
	return app
}
