// Package realtime pushes chart handle operations to connected dashboards over
// websockets.
package realtime

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/gofiber/fiber/v3"

	"github.com/seuros/scalex/internal/logging"
)

// outboxSize bounds the messages queued per subscriber before it is dropped.
const outboxSize = 512

// resyncRequest is the only message a browser sends. It asks for the snapshot
// again after the browser saw a gap in sequence numbers.
var resyncRequest = []byte(`{"op":"resync"}`)

// Stats describes the hub at one instant.
type Stats struct {
	Subscribers int   `json:"subscribers"`
	Dropped     int64 `json:"dropped"`
}

// Hub fans chart operations out to every subscriber. A new subscriber, and
// one that asks for a resync, first receives the snapshot messages.
type Hub struct {
	join      chan *subscriber
	leave     chan *subscriber
	resync    chan *subscriber
	outgoing  chan []byte
	stats     chan chan Stats
	done      chan struct{}
	closeOnce sync.Once

	subs     map[*subscriber]struct{}
	snapshot func() [][]byte
	dropped  atomic.Int64
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	Close() error
}

type subscriber struct {
	hub    *Hub
	conn   wsConn
	outbox chan []byte
}

type pingTicker interface {
	C() <-chan time.Time
	Stop()
}

type timePingTicker struct {
	*time.Ticker
}

func (t timePingTicker) C() <-chan time.Time {
	return t.Ticker.C
}

var pingTickerFactory = func() pingTicker {
	return timePingTicker{time.NewTicker(30 * time.Second)}
}

// NewHub starts the hub loop. snapshot may be nil.
func NewHub(snapshot func() [][]byte) *Hub {
	h := &Hub{
		join:     make(chan *subscriber),
		leave:    make(chan *subscriber),
		resync:   make(chan *subscriber),
		outgoing: make(chan []byte, outboxSize),
		stats:    make(chan chan Stats),
		done:     make(chan struct{}),
		subs:     make(map[*subscriber]struct{}),
		snapshot: snapshot,
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case sub := <-h.join:
			h.subs[sub] = struct{}{}
			h.sendSnapshot(sub)
		case sub := <-h.resync:
			if _, ok := h.subs[sub]; ok {
				h.sendSnapshot(sub)
			}
		case sub := <-h.leave:
			if _, ok := h.subs[sub]; ok {
				h.drop(sub)
				_ = sub.conn.Close()
			}
		case msg := <-h.outgoing:
			for sub := range h.subs {
				h.enqueue(sub, msg)
			}
		case reply := <-h.stats:
			reply <- Stats{Subscribers: len(h.subs), Dropped: h.dropped.Load()}
		case <-h.done:
			for sub := range h.subs {
				h.drop(sub)
			}
			return
		}
	}
}

func (h *Hub) sendSnapshot(sub *subscriber) {
	if h.snapshot == nil {
		return
	}
	for _, msg := range h.snapshot() {
		if !h.enqueue(sub, msg) {
			return
		}
	}
}

// enqueue queues msg for sub, dropping a subscriber whose outbox is full.
func (h *Hub) enqueue(sub *subscriber, msg []byte) bool {
	select {
	case sub.outbox <- msg:
		return true
	default:
		logging.L().Warn("dropping slow realtime subscriber", "queued", len(sub.outbox))
		h.dropped.Add(1)
		h.drop(sub)
		return false
	}
}

func (h *Hub) drop(sub *subscriber) {
	delete(h.subs, sub)
	close(sub.outbox)
}

// Broadcast queues msg for every subscriber without blocking.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.outgoing <- msg:
	default:
		h.dropped.Add(1)
		logging.L().Warn("dropping realtime message", "reason", "hub backlog full")
	}
}

// Stats reports the subscriber count and how many messages or subscribers
// were dropped so far.
func (h *Hub) Stats() Stats {
	reply := make(chan Stats)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return Stats{Dropped: h.dropped.Load()}
	}
}

// Close disconnects every subscriber and stops the hub loop.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Handler upgrades the request and subscribes the connection.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sub := &subscriber{
			hub:    h,
			conn:   conn,
			outbox: make(chan []byte, outboxSize),
		}
		if !h.subscribe(sub) {
			_ = conn.Close()
			return
		}
		go sub.writeLoop()
		sub.readLoop()
	})
}

func (h *Hub) subscribe(sub *subscriber) bool {
	select {
	case h.join <- sub:
		return true
	case <-h.done:
		return false
	}
}

// readLoop handles resync requests until the connection fails.
func (s *subscriber) readLoop() {
	defer func() {
		select {
		case s.hub.leave <- s:
		case <-s.hub.done:
		}
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if !bytes.Equal(bytes.TrimSpace(msg), resyncRequest) {
			continue
		}
		select {
		case s.hub.resync <- s:
		case <-s.hub.done:
			return
		}
	}
}

func (s *subscriber) writeLoop() {
	ticker := pingTickerFactory()
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.outbox:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C():
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
