package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/scalex/internal/chart/charttest"
	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/dashboard"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/performanceapi"
)

func setupApp(t *testing.T, ping func(context.Context) error) *fiber.App {
	t.Helper()

	fixtures, err := performanceapi.DefaultFixtures()
	require.NoError(t, err)
	upstream := performanceapi.New(performanceapi.Options{Fixtures: fixtures})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = upstream.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}) }()
	t.Cleanup(func() { _ = upstream.Shutdown() })
	base := "http://" + ln.Addr().String()

	catalog, err := dispatch.DefaultCatalog()
	require.NoError(t, err)
	session, err := dashboard.New(context.Background(), dashboard.Options{
		Catalog:     catalog,
		Drawer:      charttest.NewDrawer(),
		Fetcher:     chartapi.NewClient(base, 2*time.Second, 0),
		BaseURL:     base,
		Persister:   filters.NewMemoryPersister(),
		ModalWidth:  640,
		ModalHeight: 360,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	app := fiber.New()
	New(session, "1.2.3", ping).Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestActivatePage(t *testing.T) {
	app := setupApp(t, nil)

	resp, body := do(t, app, http.MethodPost, "/api/pages/performance-overview/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode(t, body)
	assert.Equal(t, "performance-overview", got["page"])
	assert.Len(t, got["charts"], 8)

	resp, body = do(t, app, http.MethodGet, "/api/charts/perf_funnel_by_channel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "perf_funnel_by_channel", decode(t, body)["id"])

	resp, _ = do(t, app, http.MethodGet, "/api/charts/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, app, http.MethodGet, "/api/pages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode(t, body)["pages"])
}

func TestActivateUnknownPage(t *testing.T) {
	app := setupApp(t, nil)

	resp, body := do(t, app, http.MethodPost, "/api/pages/does-not-exist/activate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Unknown page", decode(t, body)["error"])
}

func TestFilters(t *testing.T) {
	app := setupApp(t, nil)
	do(t, app, http.MethodPost, "/api/pages/performance-overview/activate", nil)

	state := filters.State{
		DateRange:         &filters.DateRange{Start: "2025-01-01", End: "2025-01-31"},
		ComparisonEnabled: true,
	}
	resp, body := do(t, app, http.MethodPut, "/api/filters", state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, body)["charts"], 8)

	resp, body = do(t, app, http.MethodGet, "/api/filters", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got filters.State
	require.NoError(t, json.Unmarshal(body, &got))
	assert.True(t, state.Equal(got))
}

func TestFiltersRejectsReversedRange(t *testing.T) {
	app := setupApp(t, nil)

	resp, body := do(t, app, http.MethodPut, "/api/filters", filters.State{
		DateRange: &filters.DateRange{Start: "2025-03-01", End: "2025-01-01"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, body)["field"], "dateRange")
}

func TestFiltersRejectsBadBody(t *testing.T) {
	app := setupApp(t, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/filters", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPresets(t *testing.T) {
	app := setupApp(t, nil)

	resp, body := do(t, app, http.MethodGet, "/api/filters/presets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	presets, ok := decode(t, body)["presets"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, presets)

	name := presets[0].(string)
	resp, body = do(t, app, http.MethodPost, "/api/filters/preset/"+name, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, decode(t, body)["filters"].(map[string]any)["dateRange"])

	resp, _ = do(t, app, http.MethodPost, "/api/filters/preset/fortnight-ish", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModalLifecycle(t *testing.T) {
	app := setupApp(t, nil)
	do(t, app, http.MethodPost, "/api/pages/performance-overview/activate", nil)

	resp, body := do(t, app, http.MethodGet, "/api/modal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode(t, body)["open"])

	resp, _ = do(t, app, http.MethodGet, "/api/modal/export.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/charts/not_on_page/open", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, app, http.MethodPost, "/api/charts/perf_funnel_by_channel/open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode(t, body)
	assert.Equal(t, true, got["open"])
	assert.Equal(t, "perf_funnel_by_channel", got["modal"].(map[string]any)["source"])

	resp, body = do(t, app, http.MethodGet, "/api/modal/export.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())

	resp, _ = do(t, app, http.MethodDelete, "/api/modal", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, app, http.MethodGet, "/api/modal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode(t, body)["open"])
}

func TestHealth(t *testing.T) {
	app := setupApp(t, nil)

	resp, body := do(t, app, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode(t, body)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, "1.2.3", got["version"])
	assert.Equal(t, "idle", got["session"].(map[string]any)["router"])

	resp, body = do(t, app, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.2.3", decode(t, body)["version"])

	resp, _ = do(t, app, http.MethodGet, "/up", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUpReportsDatabaseFailure(t *testing.T) {
	app := setupApp(t, func(context.Context) error { return assert.AnError })

	resp, _ := do(t, app, http.MethodGet, "/up", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
