package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/contrib/v3/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventually(t *testing.T, fn func() bool) {
	t.Helper()
	require.Eventually(t, fn, time.Second, 5*time.Millisecond)
}

func join(t *testing.T, h *Hub, outbox int) *subscriber {
	t.Helper()
	sub := &subscriber{hub: h, conn: newFakeConn(), outbox: make(chan []byte, outbox)}
	require.True(t, h.subscribe(sub))
	return sub
}

func recv(t *testing.T, sub *subscriber) string {
	t.Helper()
	select {
	case msg, ok := <-sub.outbox:
		require.True(t, ok, "outbox closed")
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("nothing delivered")
		return ""
	}
}

func TestHubDeliversBroadcasts(t *testing.T) {
	h := NewHub(nil)
	t.Cleanup(h.Close)

	a, b := join(t, h, 4), join(t, h, 4)
	eventually(t, func() bool { return h.Stats().Subscribers == 2 })

	h.Broadcast([]byte(`{"op":"create"}`))
	assert.Equal(t, `{"op":"create"}`, recv(t, a))
	assert.Equal(t, `{"op":"create"}`, recv(t, b))

	h.leave <- a
	eventually(t, func() bool { return h.Stats().Subscribers == 1 })
	assert.Equal(t, 1, a.conn.(*fakeConn).closeCount())
}

func TestHubSendsSnapshotBeforeLiveMessages(t *testing.T) {
	h := NewHub(func() [][]byte {
		return [][]byte{[]byte("snap-1"), []byte("snap-2")}
	})
	t.Cleanup(h.Close)

	sub := join(t, h, 8)
	h.Broadcast([]byte("live"))

	assert.Equal(t, "snap-1", recv(t, sub))
	assert.Equal(t, "snap-2", recv(t, sub))
	assert.Equal(t, "live", recv(t, sub))
}

func TestHubDropsSubscriberWithFullOutbox(t *testing.T) {
	h := NewHub(nil)
	t.Cleanup(h.Close)

	sub := join(t, h, 0)
	eventually(t, func() bool { return h.Stats().Subscribers == 1 })

	h.Broadcast([]byte("too much"))
	eventually(t, func() bool { return h.Stats().Subscribers == 0 })
	assert.EqualValues(t, 1, h.Stats().Dropped)

	_, ok := <-sub.outbox
	assert.False(t, ok)
}

func TestHubDropsSubscriberThatCannotTakeSnapshot(t *testing.T) {
	h := NewHub(func() [][]byte {
		return [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	})
	t.Cleanup(h.Close)

	sub := join(t, h, 2)
	eventually(t, func() bool { return h.Stats().Dropped == 1 })
	assert.Equal(t, "1", recv(t, sub))
	assert.Equal(t, "2", recv(t, sub))
	_, ok := <-sub.outbox
	assert.False(t, ok)
}

func TestResyncRequestReplaysSnapshot(t *testing.T) {
	var calls atomic.Int32
	h := NewHub(func() [][]byte {
		calls.Add(1)
		return [][]byte{[]byte("snap")}
	})
	t.Cleanup(h.Close)

	conn := newFakeConn()
	sub := &subscriber{hub: h, conn: conn, outbox: make(chan []byte, 8)}
	require.True(t, h.subscribe(sub))
	go sub.readLoop()

	assert.Equal(t, "snap", recv(t, sub))

	conn.reads <- []byte("hello")
	conn.reads <- []byte(` {"op":"resync"} `)
	assert.Equal(t, "snap", recv(t, sub))

	close(conn.reads)
	eventually(t, func() bool { return h.Stats().Subscribers == 0 })
	assert.EqualValues(t, 2, calls.Load())
}

func TestHubCloseEndsEverySubscriber(t *testing.T) {
	h := NewHub(nil)
	sub := join(t, h, 1)
	eventually(t, func() bool { return h.Stats().Subscribers == 1 })

	h.Close()
	h.Close()

	eventually(t, func() bool {
		select {
		case _, ok := <-sub.outbox:
			return !ok
		default:
			return false
		}
	})
	assert.Zero(t, h.Stats().Subscribers)
	assert.False(t, h.subscribe(&subscriber{hub: h, outbox: make(chan []byte)}))
}

type stepTicker struct {
	ch      chan time.Time
	stopped bool
}

func (s *stepTicker) C() <-chan time.Time { return s.ch }
func (s *stepTicker) Stop()               { s.stopped = true }

func TestWriteLoopForwardsOutboxAndPings(t *testing.T) {
	ticker := &stepTicker{ch: make(chan time.Time, 1)}
	orig := pingTickerFactory
	pingTickerFactory = func() pingTicker { return ticker }
	t.Cleanup(func() { pingTickerFactory = orig })

	conn := newFakeConn()
	sub := &subscriber{hub: &Hub{}, conn: conn, outbox: make(chan []byte, 1)}
	done := make(chan struct{})
	go func() {
		sub.writeLoop()
		close(done)
	}()

	sub.outbox <- []byte("payload")
	eventually(t, func() bool { return len(conn.frames()) == 1 })
	ticker.ch <- time.Now()
	eventually(t, func() bool { return len(conn.frames()) == 2 })

	close(sub.outbox)
	<-done

	frames := conn.frames()
	require.Len(t, frames, 3)
	assert.Equal(t, websocket.TextMessage, frames[0].kind)
	assert.Equal(t, "payload", string(frames[0].data))
	assert.Equal(t, websocket.PingMessage, frames[1].kind)
	assert.Equal(t, websocket.CloseMessage, frames[2].kind)
	assert.Equal(t, 1, conn.closeCount())
	assert.True(t, ticker.stopped)
}
