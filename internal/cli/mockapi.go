package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	fiberzap "github.com/gofiber/contrib/v3/zap"
	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"

	"github.com/seuros/scalex/internal/logging"
	"github.com/seuros/scalex/internal/performanceapi"
)

var (
	mockAPIPort      string
	mockAPILatency   time.Duration
	mockAPIFixtures  string
	mockAPIMetrics   string
	mockAPIMetricsDB bool
)

var mockAPICmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve fixture chart data on the performance API routes",
	Long: `Serve fixture chart data on the performance API routes.

Answers POST /api/v1/chart/{id} and POST /api/v1/page/{page} with canned
responses, for local development and demos without the real API. The
business and campaign KPI cards are derived from metric rows on each request.

Example:
  scalex mock-api --listen 8000 --latency 300ms
  scalex mock-api --fixtures ./fixtures.json
  scalex mock-api --metrics-db --database-url postgres://...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fixtures, err := loadFixtures(mockAPIFixtures)
		if err != nil {
			return err
		}
		metrics, closeMetrics, err := metricsSource(cmd.Context(), cfg, mockAPIMetrics, mockAPIMetricsDB)
		if err != nil {
			return err
		}
		defer closeMetrics()

		app := performanceapi.New(performanceapi.Options{
			Fixtures:   fixtures,
			Metrics:    metrics,
			Latency:    mockAPILatency,
			Middleware: []fiber.Handler{fiberzap.New(fiberzap.Config{Logger: logging.Zap()})},
		})

		logging.L().Info("starting mock performance api", "port", mockAPIPort, "charts", len(fixtures), "kpi_from_db", mockAPIMetricsDB)
		return app.Listen(":"+mockAPIPort, fiber.ListenConfig{DisableStartupMessage: true})
	},
}

// loadFixtures reads a chart-id to envelope map, or the embedded set when
// path is empty.
func loadFixtures(path string) (performanceapi.Fixtures, error) {
	if path == "" {
		return performanceapi.DefaultFixtures()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures performanceapi.Fixtures
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return fixtures, nil
}

func init() {
	mockAPICmd.Flags().StringVar(&mockAPIPort, "listen", "8000", "Port to listen on")
	mockAPICmd.Flags().DurationVar(&mockAPILatency, "latency", 0, "Delay added to every chart response")
	mockAPICmd.Flags().StringVar(&mockAPIFixtures, "fixtures", "", "JSON file mapping chart ids to response envelopes")
	mockAPICmd.Flags().StringVar(&mockAPIMetrics, "metrics", "", "YAML metric rows behind the KPI cards (default: embedded sample)")
	mockAPICmd.Flags().BoolVar(&mockAPIMetricsDB, "metrics-db", false, "Read KPI metric rows from the kpi_aggregate table")
}
