package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/chart/charttest"
	"github.com/seuros/scalex/internal/chartapi"
	"github.com/seuros/scalex/internal/dispatch"
	"github.com/seuros/scalex/internal/filters"
	"github.com/seuros/scalex/internal/performanceapi"
)

// countingFetcher counts requests per chart on the way to the real client.
type countingFetcher struct {
	next  chartapi.Fetcher
	calls atomic.Int64
}

func (c *countingFetcher) FetchChart(ctx context.Context, req chartapi.Request) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.next.FetchChart(ctx, req)
}

func startFixtureAPI(t *testing.T) string {
	t.Helper()
	fixtures, err := performanceapi.DefaultFixtures()
	require.NoError(t, err)
	app := performanceapi.New(performanceapi.Options{Fixtures: fixtures})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newSession(t *testing.T, fetcher chartapi.Fetcher, base string) (*Session, *charttest.Drawer) {
	t.Helper()
	catalog, err := dispatch.DefaultCatalog()
	require.NoError(t, err)
	drawer := charttest.NewDrawer()

	s, err := New(context.Background(), Options{
		Catalog:     catalog,
		Drawer:      drawer,
		Fetcher:     fetcher,
		BaseURL:     base,
		Persister:   filters.NewMemoryPersister(),
		ModalWidth:  800,
		ModalHeight: 450,
	})
	require.NoError(t, err)
	return s, drawer
}

func TestSessionEndToEnd(t *testing.T) {
	base := startFixtureAPI(t)
	client := chartapi.NewClient(base, 2*time.Second, 1)
	fetcher := &countingFetcher{next: client}
	s, drawer := newSession(t, fetcher, base)
	ctx := context.Background()

	require.NoError(t, s.OnPageActivated(ctx, "performance-overview"))
	charts := s.Charts()
	require.Len(t, charts, 8)
	for _, c := range charts {
		assert.Empty(t, c.Meta.Error, c.ID)
		assert.NotEmpty(t, c.Payload.Labels, c.ID)
	}
	assert.Equal(t, int64(8), fetcher.calls.Load())

	funnel, ok := s.Chart("perf_funnel_by_channel")
	require.True(t, ok)
	assert.Equal(t, []string{"Spend", "Revenue", "ROAS", "ROI"}, funnel.Payload.Labels)
	require.Len(t, funnel.Payload.Series, 3)
	assert.Equal(t, "Meta", funnel.Payload.Series[0].Name)

	// A filter change refreshes the page exactly once, in place.
	require.NoError(t, s.OnFilterChanged(ctx, filters.State{
		DateRange: &filters.DateRange{Start: "2025-01-01", End: "2025-03-31"},
	}))
	assert.Equal(t, int64(16), fetcher.calls.Load())
	assert.Equal(t, 8, drawer.Count("create"))
	assert.Zero(t, drawer.Count("destroy"))

	// Modal mirror and export.
	require.NoError(t, s.OnChartClicked("perf_pipeline_value"))
	modal, open := s.Modal()
	require.True(t, open)
	assert.Equal(t, 800, modal.Width)
	img, err := s.ExportModal()
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 800, decoded.Bounds().Dx())
	assert.Equal(t, int64(16), fetcher.calls.Load())

	s.OnModalDismissed()
	_, open = s.Modal()
	assert.False(t, open)
	_, err = s.ExportModal()
	assert.ErrorIs(t, err, ErrModalClosed)

	// Switching pages leaves exactly the new page's charts.
	require.NoError(t, s.OnPageActivated(ctx, "business-kpis"))
	assert.Len(t, s.Charts(), 2)
	assert.Equal(t, 2, drawer.Live())

	status := s.Status()
	assert.Equal(t, chart.PageKey("business-kpis"), status.ActivePage)
	assert.Equal(t, uint64(2), status.Generation)
	assert.Equal(t, "idle", status.Router)
	assert.NotNil(t, status.LastCycle)
}

func TestSessionBatchedPage(t *testing.T) {
	base := startFixtureAPI(t)
	s, _ := newSession(t, chartapi.NewClient(base, 2*time.Second, 0), base)

	require.NoError(t, s.OnPageActivated(context.Background(), "channel-performance"))

	charts := s.Charts()
	require.Len(t, charts, 4)
	for _, c := range charts {
		assert.Empty(t, c.Meta.Error, c.ID)
	}
	mix, ok := s.Chart("perf_new_vs_repeat_mix")
	require.True(t, ok)
	assert.Len(t, mix.Payload.Series, 4)
}

func TestSessionRejectsReversedRange(t *testing.T) {
	base := startFixtureAPI(t)
	fetcher := &countingFetcher{next: chartapi.NewClient(base, time.Second, 0)}
	s, _ := newSession(t, fetcher, base)
	ctx := context.Background()
	require.NoError(t, s.OnPageActivated(ctx, "business-kpis"))
	before := s.Filters()
	calls := fetcher.calls.Load()

	err := s.OnFilterChanged(ctx, filters.State{
		DateRange: &filters.DateRange{Start: "2025-03-01", End: "2025-01-01"},
	})

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, filters.ErrInvalidRange)
	assert.True(t, before.Equal(s.Filters()))
	assert.Equal(t, calls, fetcher.calls.Load())
}

func TestSessionPreset(t *testing.T) {
	base := startFixtureAPI(t)
	s, _ := newSession(t, chartapi.NewClient(base, time.Second, 0), base)
	now := time.Date(2025, 5, 17, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.ApplyPreset(context.Background(), "month_to_date", now))
	assert.Equal(t, &filters.DateRange{Start: "2025-05-01", End: "2025-05-17"}, s.Filters().DateRange)

	err := s.ApplyPreset(context.Background(), "fortnight", now)
	assert.True(t, IsValidation(err))
}

func TestSessionErrors(t *testing.T) {
	base := startFixtureAPI(t)
	s, _ := newSession(t, chartapi.NewClient(base, time.Second, 0), base)

	err := s.OnPageActivated(context.Background(), "nope")
	assert.True(t, IsUnknownPage(err))

	err = s.OnChartClicked("kpi_roi")
	assert.True(t, IsNotRegistered(err))

	s.OnModalDismissed()
}

func TestSessionFailedChartShowsErrorState(t *testing.T) {
	base := startFixtureAPI(t)
	catalog, err := dispatch.ParseCatalog([]byte(`
pages:
  broken:
    charts: [kpi_roi, not_served]
charts:
  kpi_roi: {kind: kpi, title: ROI, sparkline: sparkline}
  not_served: {kind: fields, title: Missing, fields: [{name: V, path: v}]}
`))
	require.NoError(t, err)
	drawer := charttest.NewDrawer()
	s, err := New(context.Background(), Options{Catalog: catalog, Drawer: drawer, Fetcher: chartapi.NewClient(base, time.Second, 0), BaseURL: base})
	require.NoError(t, err)

	require.NoError(t, s.OnPageActivated(context.Background(), "broken"))

	roi, _ := s.Chart("kpi_roi")
	assert.Empty(t, roi.Meta.Error)
	missing, _ := s.Chart("not_served")
	assert.Contains(t, missing.Meta.Error, "Chart 'not_served' not found")
	assert.True(t, missing.Payload.Empty())

	pages := s.Pages()
	require.Len(t, pages, 1)
	assert.True(t, pages[0].Active)

	s.Close()
	assert.Zero(t, drawer.Live())
}

func TestNewRequiresCollaborators(t *testing.T) {
	catalog, err := dispatch.DefaultCatalog()
	require.NoError(t, err)

	_, err = New(context.Background(), Options{Drawer: charttest.NewDrawer()})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{Catalog: catalog})
	assert.Error(t, err)
	_, err = New(context.Background(), Options{Catalog: catalog, Drawer: charttest.NewDrawer()})
	assert.Error(t, err)
}
