package realtime

import (
	"io"
	"sync"
)

type sentFrame struct {
	kind int
	data []byte
}

// fakeConn feeds reads from a channel; closing the channel ends the read side.
type fakeConn struct {
	reads chan []byte

	mu     sync.Mutex
	sent   []sentFrame
	closed int
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 4)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.reads
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, msg, nil
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentFrame{kind: kind, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) frames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.sent...)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
