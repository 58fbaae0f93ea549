package connmgr

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// connState tracks one accepted TCP connection through its lifecycle:
// accepted -> key-exchanged -> identified. This is the idiomatic-Go stand-in
// for the ConnectionState the spec's originating design tracked per
// registered SelectionKey; here it is just a struct owned by two
// goroutines (read loop, write loop) rather than fields polled by a single
// event loop thread (spec.md §9).
type connState struct {
	conn    net.Conn
	channel uint64

	// clientID is 0 until CREATE_USER/CONNECT_USER succeeds.
	clientID atomic.Int32

	wake   chan struct{} // buffered(1); signals the write loop to drain
	closed chan struct{}
	once   sync.Once

	// writeMu serializes every write to conn: the write loop (draining the
	// per-client queue) and Reply (direct, pre-identification replies) can
	// both write concurrently otherwise.
	writeMu sync.Mutex

	keyExchangeTimer *time.Timer
	identifyTimer    *time.Timer
}

func newConnState(conn net.Conn, channel uint64) *connState {
	return &connState{
		conn:    conn,
		channel: channel,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// signalWrite wakes the write loop if it is idle. Non-blocking: if a wake
// is already pending, this is a no-op (the loop will drain everything
// currently queued on its next pass anyway).
func (c *connState) signalWrite() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *connState) close() {
	c.once.Do(func() {
		close(c.closed)
		c.conn.Close()
		if c.keyExchangeTimer != nil {
			c.keyExchangeTimer.Stop()
		}
		if c.identifyTimer != nil {
			c.identifyTimer.Stop()
		}
	})
}

func (c *connState) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
