package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/chart/charttest"
)

func payload(labels []string, values ...float64) chart.Payload {
	series := chart.Series{Name: "s"}
	for _, v := range values {
		series.Values = append(series.Values, chart.Float(v))
	}
	return chart.Payload{Labels: labels, Series: []chart.Series{series}}
}

func TestUpsertTwiceKeepsOneHandle(t *testing.T) {
	drawer := charttest.NewDrawer()
	reg := New(drawer)
	meta := chart.DisplayMeta{Title: "Pipeline"}

	p1 := payload([]string{"Oct", "Nov"}, 1, 2)
	p2 := payload([]string{"Oct", "Nov"}, 3, 4)

	reg.Upsert("perf_pipeline_value", p1, meta)
	reg.Upsert("perf_pipeline_value", p2, meta)

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, drawer.Live())
	assert.Equal(t, 1, drawer.Count("create"))
	assert.Equal(t, 1, drawer.Count("update"))
	assert.Zero(t, drawer.Count("destroy"))

	got, ok := reg.Get("perf_pipeline_value")
	require.True(t, ok)
	assert.True(t, p2.Equal(got.Payload))

	shown, _, ok := drawer.Shown("perf_pipeline_value")
	require.True(t, ok)
	assert.True(t, p2.Equal(shown))
}

func TestUpsertIdenticalPayloadIsNoop(t *testing.T) {
	drawer := charttest.NewDrawer()
	reg := New(drawer)
	meta := chart.DisplayMeta{Title: "ROAS"}
	p := payload([]string{"a"}, 3.2)

	reg.Upsert("kpi_roas", p, meta)
	reg.Upsert("kpi_roas", p.Clone(), meta)

	assert.Equal(t, 1, drawer.Count("create"))
	assert.Zero(t, drawer.Count("update"))

	reg.Upsert("kpi_roas", p, chart.DisplayMeta{Title: "ROAS", Subtitle: "changed"})
	assert.Equal(t, 1, drawer.Count("update"))
}

func TestUpsertNormalizesSeriesLength(t *testing.T) {
	reg := New(charttest.NewDrawer())
	reg.Upsert("c", payload([]string{"a", "b", "c"}, 1), chart.DisplayMeta{})

	got, ok := reg.Get("c")
	require.True(t, ok)
	require.Len(t, got.Payload.Series[0].Values, 3)
	assert.Nil(t, got.Payload.Series[0].Values[2])
}

func TestUpsertCreateFailureLeavesNoEntry(t *testing.T) {
	drawer := charttest.NewDrawer()
	drawer.FailCreate["broken"] = errors.New("no canvas")
	reg := New(drawer)

	reg.Upsert("broken", payload([]string{"a"}, 1), chart.DisplayMeta{})

	_, ok := reg.Get("broken")
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
}

func TestUpsertUpdateFailureStillRecordsPayload(t *testing.T) {
	drawer := charttest.NewDrawer()
	reg := New(drawer)
	reg.Upsert("c", payload([]string{"a"}, 1), chart.DisplayMeta{})

	drawer.FailUpdate["c"] = errors.New("redraw failed")
	reg.Upsert("c", payload([]string{"a"}, 2), chart.DisplayMeta{})

	got, ok := reg.Get("c")
	require.True(t, ok)
	assert.Equal(t, 2.0, *got.Payload.Series[0].Values[0])
	assert.Equal(t, 1, drawer.Live())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	drawer := charttest.NewDrawer()
	reg := New(drawer)

	reg.Remove("missing")
	assert.Empty(t, drawer.Ops())
}

func TestRemoveDestroysHandle(t *testing.T) {
	drawer := charttest.NewDrawer()
	reg := New(drawer)
	reg.Upsert("c", payload([]string{"a"}, 1), chart.DisplayMeta{})

	reg.Remove("c")
	assert.Zero(t, reg.Len())
	assert.Zero(t, drawer.Live())
	assert.Equal(t, 1, drawer.Count("destroy"))
}

func TestClearAllContinuesPastDestroyErrors(t *testing.T) {
	drawer := charttest.NewDrawer()
	drawer.FailDestroy["b"] = errors.New("destroy exploded")
	reg := New(drawer)

	for _, id := range []chart.ID{"a", "b", "c"} {
		reg.Upsert(id, payload([]string{"x"}, 1), chart.DisplayMeta{})
	}

	reg.ClearAll()
	assert.Zero(t, reg.Len())
	assert.Equal(t, 3, drawer.Count("destroy"))
	assert.Empty(t, reg.IDs())
}

func TestClearAllThenRenderLeavesOnlyNewPage(t *testing.T) {
	reg := New(charttest.NewDrawer())
	for _, id := range []chart.ID{"old_1", "old_2"} {
		reg.Upsert(id, payload([]string{"x"}, 1), chart.DisplayMeta{})
	}

	reg.ClearAll()
	for _, id := range []chart.ID{"new_b", "new_a"} {
		reg.Upsert(id, payload([]string{"x"}, 1), chart.DisplayMeta{})
	}

	assert.Equal(t, []chart.ID{"new_a", "new_b"}, reg.IDs())
}

func TestGetReturnsCopy(t *testing.T) {
	reg := New(charttest.NewDrawer())
	reg.Upsert("c", payload([]string{"a"}, 1), chart.DisplayMeta{Title: "t"})

	got, ok := reg.Get("c")
	require.True(t, ok)
	*got.Payload.Series[0].Values[0] = 99

	again, _ := reg.Get("c")
	assert.Equal(t, 1.0, *again.Payload.Series[0].Values[0])

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, chart.ID("c"), snap[0].ID)
	assert.Equal(t, "t", snap[0].Meta.Title)
}
