package realtime

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Operations sent to the browser.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpDestroy = "destroy"
)

// Message is one handle operation. Seq increases with every operation; a
// replayed create carries the sequence number of the snapshot it was taken
// from, so clients can skip live messages they have already seen.
type Message struct {
	Op        string             `json:"op"`
	Seq       uint64             `json:"seq"`
	Handle    string             `json:"handle"`
	Container *chart.Container   `json:"container,omitempty"`
	Payload   *chart.Payload     `json:"payload,omitempty"`
	Meta      *chart.DisplayMeta `json:"meta,omitempty"`
}

// Handle identifies a chart drawn in connected browsers.
type Handle struct {
	ID string
}

type liveChart struct {
	container chart.Container
	payload   chart.Payload
	meta      chart.DisplayMeta
	order     uint64
}

// Drawer is a chart.Drawer whose handles live in the browser.
type Drawer struct {
	hub *Hub

	mu   sync.Mutex
	seq  uint64
	live map[string]*liveChart
}

// NewDrawer starts a hub that replays the live handles to new clients.
func NewDrawer() *Drawer {
	d := &Drawer{live: make(map[string]*liveChart)}
	d.hub = NewHub(d.replay)
	return d
}

// Hub returns the websocket hub.
func (d *Drawer) Hub() *Hub {
	return d.hub
}

// Handler upgrades the request to a websocket joined to the hub.
func (d *Drawer) Handler() fiber.Handler {
	return d.hub.Handler()
}

// Close disconnects every client.
func (d *Drawer) Close() {
	d.hub.Close()
}

func (d *Drawer) CreateHandle(container chart.Container, payload chart.Payload, meta chart.DisplayMeta) (chart.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.NewString()
	d.seq++
	c := &liveChart{container: container, payload: payload.Clone(), meta: meta, order: d.seq}
	d.live[id] = c
	d.send(Message{Op: OpCreate, Seq: d.seq, Handle: id, Container: &c.container, Payload: &c.payload, Meta: &c.meta})
	return Handle{ID: id}, nil
}

func (d *Drawer) UpdateHandle(handle chart.Handle, payload chart.Payload, meta chart.DisplayMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, c, err := d.lookup(handle)
	if err != nil {
		return err
	}
	c.payload = payload.Clone()
	c.meta = meta
	d.seq++
	d.send(Message{Op: OpUpdate, Seq: d.seq, Handle: id, Payload: &c.payload, Meta: &c.meta})
	return nil
}

func (d *Drawer) DestroyHandle(handle chart.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, _, err := d.lookup(handle)
	if err != nil {
		return err
	}
	delete(d.live, id)
	d.seq++
	d.send(Message{Op: OpDestroy, Seq: d.seq, Handle: id})
	return nil
}

// Live returns the number of handles not yet destroyed.
func (d *Drawer) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

func (d *Drawer) lookup(handle chart.Handle) (string, *liveChart, error) {
	h, ok := handle.(Handle)
	if !ok {
		return "", nil, fmt.Errorf("not a realtime handle: %T", handle)
	}
	c, ok := d.live[h.ID]
	if !ok {
		return "", nil, fmt.Errorf("unknown realtime handle %s", h.ID)
	}
	return h.ID, c, nil
}

// send must be called with d.mu held.
func (d *Drawer) send(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.L().Error("encode realtime message", "op", msg.Op, "error", err)
		return
	}
	d.hub.Broadcast(data)
}

// replay encodes a create for every live handle in creation order.
func (d *Drawer) replay() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.live))
	for id := range d.live {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Compare(d.live[a].order, d.live[b].order)
	})

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		c := d.live[id]
		data, err := json.Marshal(Message{Op: OpCreate, Seq: d.seq, Handle: id, Container: &c.container, Payload: &c.payload, Meta: &c.meta})
		if err != nil {
			logging.L().Error("encode realtime replay", "handle", id, "error", err)
			continue
		}
		out = append(out, data)
	}
	return out
}
