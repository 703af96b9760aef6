// Package mirror shows one registered chart in the fullscreen modal. The mirror
// draws from a copy taken at open time through its own handle, so it never
// shares state with the on-page chart.
package mirror

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/logging"
)

// ErrNotRegistered is returned by Open when the chart is not on the page.
var ErrNotRegistered = errors.New("chart not registered")

// ContainerID is the container the mirror handle is drawn into.
const ContainerID = "modal"

// Source is the read side of the chart registry.
type Source interface {
	Get(id chart.ID) (chart.Registered, bool)
}

// State describes the open mirror.
type State struct {
	Source   chart.ID          `json:"source"`
	Payload  chart.Payload     `json:"payload"`
	Meta     chart.DisplayMeta `json:"meta"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	OpenedAt time.Time         `json:"opened_at"`
}

// Mirror holds at most one open modal.
type Mirror struct {
	mu     sync.Mutex
	source Source
	drawer chart.Drawer
	width  int
	height int

	state  *State
	handle chart.Handle
}

// New creates a closed mirror sized to the modal viewport.
func New(source Source, drawer chart.Drawer, width, height int) *Mirror {
	return &Mirror{source: source, drawer: drawer, width: width, height: height}
}

// Open copies the chart's current payload and meta into a new modal handle,
// closing any mirror already open. An unregistered chart leaves the modal as
// it was.
func (m *Mirror) Open(id chart.ID) error {
	src, ok := m.source.Get(id)
	if !ok {
		logging.L().Warn("modal open for unregistered chart", "chart", id)
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked()

	payload := src.Payload.Clone()
	container := chart.Container{ID: ContainerID, Width: m.width, Height: m.height}
	handle, err := m.drawer.CreateHandle(container, payload, src.Meta)
	if err != nil {
		logging.L().Error("modal create failed", "chart", id, "error", err)
		return fmt.Errorf("open modal for %s: %w", id, err)
	}

	m.handle = handle
	m.state = &State{
		Source:   id,
		Payload:  payload,
		Meta:     src.Meta,
		Width:    m.width,
		Height:   m.height,
		OpenedAt: time.Now(),
	}
	logging.L().Debug("modal opened", "chart", id)
	return nil
}

// Close destroys the mirror handle. It is safe to call with nothing open.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Mirror) closeLocked() {
	if m.state == nil {
		return
	}
	if err := m.drawer.DestroyHandle(m.handle); err != nil {
		logging.L().Warn("modal destroy failed", "chart", m.state.Source, "error", err)
	}
	m.handle = nil
	m.state = nil
}

// State returns a copy of the open mirror.
func (m *Mirror) State() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, false
	}
	s := *m.state
	s.Payload = s.Payload.Clone()
	return s, true
}
