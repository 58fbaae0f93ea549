package connmgr

import (
	"sync"

	"github.com/chatrelay/relayd/internal/wire"
)

// sendQueue is a per-client FIFO of outbound messages. Its existence is
// independent of any connection: a handler may push to a client's queue
// while that client is offline, and the queue survives until a future
// connection binds to the client id and drains it (spec.md §5's "send
// queues ... keys may exist without an active connection").
type sendQueue struct {
	mu    sync.Mutex
	items []*wire.ProtocolMessage
}

func (q *sendQueue) push(msg *wire.ProtocolMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

func (q *sendQueue) pop() (*wire.ProtocolMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}
