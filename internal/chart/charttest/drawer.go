// Package charttest provides an in-memory chart.Drawer for tests.
package charttest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/seuros/scalex/internal/chart"
)

// ErrUnknownHandle is returned when a handle was not created by this drawer
// or was already destroyed.
var ErrUnknownHandle = errors.New("unknown handle")

// Handle is the handle type produced by Drawer.
type Handle struct {
	N         int
	Container chart.Container
}

// Op records one call made against the drawer.
type Op struct {
	Kind    string // create, update, destroy
	Handle  int
	Payload chart.Payload
	Meta    chart.DisplayMeta
}

type live struct {
	container chart.Container
	payload   chart.Payload
	meta      chart.DisplayMeta
}

// Drawer keeps every live handle in memory and records all operations.
type Drawer struct {
	mu   sync.Mutex
	next int
	live map[int]*live
	ops  []Op

	// Failure injection, keyed by container id.
	FailCreate  map[string]error
	FailUpdate  map[string]error
	FailDestroy map[string]error
}

// NewDrawer returns an empty recording drawer.
func NewDrawer() *Drawer {
	return &Drawer{
		live:        make(map[int]*live),
		FailCreate:  make(map[string]error),
		FailUpdate:  make(map[string]error),
		FailDestroy: make(map[string]error),
	}
}

func (d *Drawer) CreateHandle(container chart.Container, payload chart.Payload, meta chart.DisplayMeta) (chart.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.FailCreate[container.ID]; err != nil {
		return nil, err
	}
	d.next++
	d.live[d.next] = &live{container: container, payload: payload.Clone(), meta: meta}
	d.ops = append(d.ops, Op{Kind: "create", Handle: d.next, Payload: payload.Clone(), Meta: meta})
	return Handle{N: d.next, Container: container}, nil
}

func (d *Drawer) UpdateHandle(handle chart.Handle, payload chart.Payload, meta chart.DisplayMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, l, err := d.lookup(handle)
	if err != nil {
		return err
	}
	d.ops = append(d.ops, Op{Kind: "update", Handle: h.N, Payload: payload.Clone(), Meta: meta})
	if err := d.FailUpdate[l.container.ID]; err != nil {
		return err
	}
	l.payload = payload.Clone()
	l.meta = meta
	return nil
}

func (d *Drawer) DestroyHandle(handle chart.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, l, err := d.lookup(handle)
	if err != nil {
		return err
	}
	d.ops = append(d.ops, Op{Kind: "destroy", Handle: h.N})
	delete(d.live, h.N)
	return d.FailDestroy[l.container.ID]
}

func (d *Drawer) lookup(handle chart.Handle) (Handle, *live, error) {
	h, ok := handle.(Handle)
	if !ok {
		return Handle{}, nil, fmt.Errorf("%w: %T", ErrUnknownHandle, handle)
	}
	l, ok := d.live[h.N]
	if !ok {
		return Handle{}, nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h.N)
	}
	return h, l, nil
}

// Live returns the number of handles that have not been destroyed.
func (d *Drawer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// Shown returns what the live handle drawn in container id currently shows.
func (d *Drawer) Shown(containerID string) (chart.Payload, chart.DisplayMeta, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range d.live {
		if l.container.ID == containerID {
			return l.payload.Clone(), l.meta, true
		}
	}
	return chart.Payload{}, chart.DisplayMeta{}, false
}

// Ops returns a copy of the recorded operations.
func (d *Drawer) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Op(nil), d.ops...)
}

// Count returns how many operations of the given kind were recorded.
func (d *Drawer) Count(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, op := range d.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}
