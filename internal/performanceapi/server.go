// Package performanceapi serves canned performance API responses. It backs
// `scalex mock-api` and the chart API client tests. The KPI cards are derived
// from metric rows on every request unless a fixture overrides them.
package performanceapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/kpi"
	"github.com/seuros/scalex/internal/logging"
)

//go:embed fixtures.json
var fixturesJSON []byte

// Fixtures maps a chart identifier to its full response envelope.
type Fixtures map[chart.ID]json.RawMessage

// DefaultFixtures returns the embedded responses.
func DefaultFixtures() (Fixtures, error) {
	var f Fixtures
	if err := json.Unmarshal(fixturesJSON, &f); err != nil {
		return nil, fmt.Errorf("parse embedded fixtures: %w", err)
	}
	return f, nil
}

// Options tunes the fixture server.
type Options struct {
	Fixtures Fixtures
	// Latency delays every chart response.
	Latency time.Duration
	// Latencies overrides Latency per chart.
	Latencies map[chart.ID]time.Duration
	// Metrics feeds the KPI cards. Nil means the embedded sample rows.
	Metrics kpi.Source
	// Middleware runs before every route.
	Middleware []fiber.Handler
}

type chartRequest struct {
	Identifier        string             `json:"identifier"`
	DateRange         map[string]string  `json:"dateRange"`
	ComparisonEnabled bool               `json:"comparisonEnabled"`
	SegmentFilters    map[string]*string `json:"segmentFilters"`
}

type pageRequest struct {
	Charts            []chart.ID         `json:"charts"`
	DateRange         map[string]string  `json:"dateRange"`
	ComparisonEnabled bool               `json:"comparisonEnabled"`
	SegmentFilters    map[string]*string `json:"segmentFilters"`
}

type server struct {
	opts Options
}

// New builds the fiber app serving opts.Fixtures.
func New(opts Options) *fiber.App {
	if opts.Metrics == nil {
		opts.Metrics = sampleSource{}
	}
	s := &server{opts: opts}

	app := fiber.New(fiber.Config{
		AppName: "scalex performance api (fixtures)",
	})
	for _, mw := range opts.Middleware {
		app.Use(mw)
	}
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "charts": len(s.opts.Fixtures)})
	})
	app.Post("/api/v1/chart/:chart_id", s.handleChart)
	app.Post("/api/v1/page/:page_key", s.handlePage)
	return app
}

func (s *server) handleChart(c fiber.Ctx) error {
	id := chart.ID(c.Params("chart_id"))

	var req chartRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	logging.L().Debug("chart request", "chart", id, "date_range", req.DateRange,
		"comparison", req.ComparisonEnabled, "segments", len(req.SegmentFilters))

	s.wait(id)
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(s.envelope(c.Context(), id))
}

func (s *server) handlePage(c fiber.Ctx) error {
	var req pageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}
	if len(req.Charts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "No charts requested"})
	}
	logging.L().Debug("page request", "page", c.Params("page_key"), "charts", len(req.Charts))

	data := make(map[chart.ID]json.RawMessage, len(req.Charts))
	for _, id := range req.Charts {
		s.wait(id)
		data[id] = s.envelope(c.Context(), id)
	}
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func (s *server) envelope(ctx context.Context, id chart.ID) json.RawMessage {
	if raw, ok := s.opts.Fixtures[id]; ok {
		return raw
	}
	if _, ok := kpi.Cards[id]; ok {
		return s.kpiEnvelope(ctx, id)
	}
	return failure(fmt.Sprintf("Chart '%s' not found", id))
}

func (s *server) kpiEnvelope(ctx context.Context, id chart.ID) json.RawMessage {
	card, err := kpi.Build(ctx, s.opts.Metrics, id)
	if err != nil {
		logging.L().Error("kpi card failed", "chart", id, "error", err)
		return failure("Failed to fetch KPI data.")
	}
	body, err := json.Marshal(fiber.Map{"success": true, "data": card, "error": nil})
	if err != nil {
		return failure("Failed to encode KPI data.")
	}
	return body
}

func failure(reason string) json.RawMessage {
	body, _ := json.Marshal(fiber.Map{"success": false, "error": reason})
	return body
}

type sampleSource struct{}

func (sampleSource) Metrics(context.Context) (kpi.Metrics, error) {
	return kpi.Sample()
}

func (s *server) wait(id chart.ID) {
	delay := s.opts.Latency
	if d, ok := s.opts.Latencies[id]; ok {
		delay = d
	}
	if delay > 0 {
		time.Sleep(delay)
	}
}
