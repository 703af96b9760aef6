package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/registry"
)

func attach(t *testing.T, d *Drawer) *subscriber {
	t.Helper()
	return join(t, d.hub, 64)
}

func next(t *testing.T, sub *subscriber) Message {
	t.Helper()
	select {
	case raw := <-sub.outbox:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no realtime message")
		return Message{}
	}
}

func TestDrawerBroadcastsLifecycle(t *testing.T) {
	d := NewDrawer()
	t.Cleanup(d.Close)
	client := attach(t, d)

	p := chart.Payload{Labels: []string{"Oct"}, Series: []chart.Series{{Name: "s", Values: []*float64{chart.Float(1)}}}}
	h, err := d.CreateHandle(chart.Container{ID: "kpi_roi", Width: 640, Height: 360}, p, chart.DisplayMeta{Title: "ROI"})
	require.NoError(t, err)

	created := next(t, client)
	assert.Equal(t, OpCreate, created.Op)
	assert.Equal(t, "kpi_roi", created.Container.ID)
	assert.Equal(t, "ROI", created.Meta.Title)
	assert.Equal(t, []string{"Oct"}, created.Payload.Labels)

	p.Series[0].Values[0] = chart.Float(2)
	require.NoError(t, d.UpdateHandle(h, p, chart.DisplayMeta{Title: "ROI"}))
	updated := next(t, client)
	assert.Equal(t, OpUpdate, updated.Op)
	assert.Equal(t, created.Handle, updated.Handle)
	assert.Equal(t, 2.0, *updated.Payload.Series[0].Values[0])
	assert.Greater(t, updated.Seq, created.Seq)

	require.NoError(t, d.DestroyHandle(h))
	destroyed := next(t, client)
	assert.Equal(t, OpDestroy, destroyed.Op)
	assert.Nil(t, destroyed.Payload)
	assert.Zero(t, d.Live())

	assert.Error(t, d.DestroyHandle(h))
	assert.Error(t, d.UpdateHandle(h, p, chart.DisplayMeta{}))
	assert.Error(t, d.DestroyHandle("bogus"))
}

func TestDrawerReplaysLiveHandlesInCreationOrder(t *testing.T) {
	d := NewDrawer()
	t.Cleanup(d.Close)
	reg := registry.New(d)

	reg.Upsert("b", chart.Payload{Labels: []string{"x"}}, chart.DisplayMeta{Title: "B"})
	reg.Upsert("a", chart.Payload{Labels: []string{"x"}}, chart.DisplayMeta{Title: "A"})
	reg.Upsert("gone", chart.Payload{}, chart.DisplayMeta{})
	reg.Remove("gone")

	client := attach(t, d)

	first, second := next(t, client), next(t, client)
	assert.Equal(t, "B", first.Meta.Title)
	assert.Equal(t, "A", second.Meta.Title)
	assert.Equal(t, OpCreate, first.Op)
	assert.Equal(t, first.Seq, second.Seq)
	assert.Equal(t, 2, d.Live())
}
