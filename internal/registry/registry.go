// Package registry owns every live chart handle on the current page.
//
// Each operation holds the registry lock for its whole duration and performs
// no network I/O, so callers observe Upsert, Remove and ClearAll as atomic.
// Handles never leave this package; readers get deep-copied snapshots.
package registry

import (
	"slices"
	"sync"
	"time"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/logging"
)

// Default container size for on-page charts.
const (
	DefaultWidth  = 640
	DefaultHeight = 360
)

var nowFunc = time.Now

type entry struct {
	handle    chart.Handle
	payload   chart.Payload
	meta      chart.DisplayMeta
	updatedAt time.Time
}

// Registry maps chart identifiers to their live handle and current data.
type Registry struct {
	mu      sync.Mutex
	drawer  chart.Drawer
	entries map[chart.ID]*entry
	width   int
	height  int
}

// New creates an empty registry drawing through drawer.
func New(drawer chart.Drawer) *Registry {
	return &Registry{
		drawer:  drawer,
		entries: make(map[chart.ID]*entry),
		width:   DefaultWidth,
		height:  DefaultHeight,
	}
}

// Upsert creates the chart on first sight and redraws it in place afterwards.
// Repeating an identical payload and meta is a no-op.
func (r *Registry) Upsert(id chart.ID, payload chart.Payload, meta chart.DisplayMeta) {
	payload = payload.Clone().Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[id]; ok {
		if existing.meta == meta && existing.payload.Equal(payload) {
			return
		}
		if err := r.drawer.UpdateHandle(existing.handle, payload.Clone(), meta); err != nil {
			logging.L().Warn("chart redraw failed", "chart", id, "error", err)
		}
		// Keep the latest data even when the redraw failed.
		existing.payload = payload
		existing.meta = meta
		existing.updatedAt = nowFunc()
		return
	}

	container := chart.Container{ID: string(id), Width: r.width, Height: r.height}
	handle, err := r.drawer.CreateHandle(container, payload.Clone(), meta)
	if err != nil {
		logging.L().Warn("chart creation failed", "chart", id, "error", err)
		return
	}
	r.entries[id] = &entry{
		handle:    handle,
		payload:   payload,
		meta:      meta,
		updatedAt: nowFunc(),
	}
}

// Remove destroys the chart's handle and forgets it. Unknown ids are ignored.
func (r *Registry) Remove(id chart.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// ClearAll destroys every chart. Destroy failures are logged and skipped.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.sortedIDsLocked() {
		r.removeLocked(id)
	}
}

func (r *Registry) removeLocked(id chart.ID) {
	existing, ok := r.entries[id]
	if !ok {
		return
	}
	delete(r.entries, id)
	if err := r.drawer.DestroyHandle(existing.handle); err != nil {
		logging.L().Warn("chart destroy failed", "chart", id, "error", err)
	}
}

// Get returns a snapshot of the chart, if registered.
func (r *Registry) Get(id chart.ID) (chart.Registered, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[id]
	if !ok {
		return chart.Registered{}, false
	}
	return snapshot(id, existing), true
}

// IDs lists registered identifiers in lexical order.
func (r *Registry) IDs() []chart.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedIDsLocked()
}

// Len reports the number of live charts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns copies of every registered chart in lexical id order.
func (r *Registry) Snapshot() []chart.Registered {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.sortedIDsLocked()
	out := make([]chart.Registered, 0, len(ids))
	for _, id := range ids {
		out = append(out, snapshot(id, r.entries[id]))
	}
	return out
}

func (r *Registry) sortedIDsLocked() []chart.ID {
	ids := make([]chart.ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func snapshot(id chart.ID, e *entry) chart.Registered {
	return chart.Registered{
		ID:        id,
		Payload:   e.payload.Clone(),
		Meta:      e.meta,
		UpdatedAt: e.updatedAt,
	}
}
