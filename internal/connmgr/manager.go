// Package connmgr owns the relay's TCP listener and every accepted
// connection's lifecycle: the key-exchange/identify handshake gate, framed
// read/write loops, and per-client send queues that outlive any single
// connection. It is the goroutine-per-connection generalization of the
// teacher's acceptLoop/handleConnection pair in pkg/network/relay_connection.go
// (spec.md §4.2/§5 — substituting Go's native blocking-I/O concurrency for
// the originating design's single-threaded selector loop, per spec.md §9's
// own note that this substitution is expected).
package connmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/chatrelay/relayd/internal/router"
	"github.com/chatrelay/relayd/internal/scheduler"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/session"
	"github.com/chatrelay/relayd/internal/wire"
	"github.com/chatrelay/relayd/internal/workerpool"
)

// Manager implements servercontext.Sender and drives the relay's network
// I/O. One Manager serves the whole process.
type Manager struct {
	cfg        Config
	sessionSvc *session.Service
	router     *router.Router
	sc         *servercontext.Context
	pool       *workerpool.Pool
	sched      *scheduler.Scheduler

	listener    net.Listener
	nextChannel atomic.Uint64

	conns    sync.Map // uint64 channel -> *connState
	byClient sync.Map // int32 clientID -> *connState
	queues   sync.Map // int32 clientID -> *sendQueue

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Manager. SetContext must be called with a *servercontext.Context
// pointing back at this Manager before Start.
func New(cfg Config, sessionSvc *session.Service, rtr *router.Router) *Manager {
	return &Manager{
		cfg:        cfg,
		sessionSvc: sessionSvc,
		router:     rtr,
		pool:       workerpool.New(cfg.WorkerThreads),
		sched:      scheduler.New(),
		stopCh:     make(chan struct{}),
	}
}

// SetContext wires the server context the manager dispatches into. Kept
// separate from New because the context's Sender is the Manager itself.
func (m *Manager) SetContext(sc *servercontext.Context) {
	m.sc = sc
}

// Start opens the listener and begins accepting connections.
func (m *Manager) Start() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", m.cfg.Port))
	if err != nil {
		return err
	}
	m.listener = l
	log.Printf("📡 relay listening on %s", l.Addr())

	m.wg.Add(1)
	go m.acceptLoop()
	return nil
}

// Stop closes the listener, every open connection, and the scheduler, then
// waits for all goroutines to exit.
func (m *Manager) Stop() error {
	var err error
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.listener != nil {
			err = m.listener.Close()
		}
		m.conns.Range(func(_, v any) bool {
			v.(*connState).close()
			return true
		})
		m.sched.Stop()
	})
	m.wg.Wait()
	return err
}

func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
			}
			log.Printf("accept error: %v", err)
			return
		}
		m.wg.Add(1)
		go m.handleConnection(conn)
	}
}

func (m *Manager) handleConnection(conn net.Conn) {
	defer m.wg.Done()

	channel := m.nextChannel.Add(1)
	cs := newConnState(conn, channel)
	m.conns.Store(channel, cs)
	log.Printf("🔌 connection accepted ch=%d from %s", channel, conn.RemoteAddr())

	defer m.cleanup(cs)

	pkt, err := m.sessionSvc.InitiateKeyExchange(session.ChannelID(channel))
	if err != nil {
		log.Printf("key exchange init failed ch=%d: %v", channel, err)
		return
	}
	cs.writeMu.Lock()
	_, err = conn.Write(pkt.Encode())
	cs.writeMu.Unlock()
	if err != nil {
		log.Printf("write error ch=%d: %v", channel, err)
		return
	}

	cs.keyExchangeTimer = m.sched.After(m.cfg.KeyExchangeTimeout, func() {
		if !m.sessionSvc.Established(session.ChannelID(channel)) {
			log.Printf("⏱️  key exchange timeout ch=%d", channel)
			cs.close()
		}
	})

	m.wg.Add(1)
	go m.writeLoop(cs)

	m.readLoop(cs)
}

func (m *Manager) readLoop(cs *connState) {
	for {
		header, err := wire.ReadHeader(cs.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !cs.isClosed() {
				log.Printf("header read error ch=%d: %v", cs.channel, err)
			}
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(cs.conn, payload); err != nil {
			if !cs.isClosed() {
				log.Printf("payload read error ch=%d: %v", cs.channel, err)
			}
			return
		}

		pkt := &wire.Packet{Header: *header, Payload: payload}
		m.pool.Submit(func() {
			m.processPacket(cs, pkt)
		})

		if cs.isClosed() {
			return
		}
	}
}

// processPacket enforces the handshake gate (spec.md §4.5/§8 property 9)
// before a packet ever reaches the router: nothing but the handshake
// response is accepted before encryption is established, and nothing but an
// ENCRYPTED wrapper (or the opaque client-to-client key-exchange types,
// exempted by wire.MessageType.IsHandshake) is accepted afterward.
func (m *Manager) processPacket(cs *connState, pkt *wire.Packet) {
	channel := session.ChannelID(cs.channel)

	if pkt.Header.Type == wire.TypeServerKeyExchangeResponse {
		m.completeHandshake(cs, pkt)
		return
	}

	if !m.sessionSvc.Established(channel) {
		log.Printf("dropping pre-handshake packet ch=%d type=%s", cs.channel, pkt.Header.Type)
		cs.close()
		return
	}

	var msg *wire.ProtocolMessage
	var err error
	switch {
	case pkt.Header.Type == wire.TypeEncrypted:
		msg, err = m.sessionSvc.DecryptIncoming(channel, pkt)
		if err != nil {
			log.Printf("🔒 security violation ch=%d: %v", cs.channel, err)
			cs.close()
			return
		}
	case pkt.Header.Type.IsHandshake():
		msg, err = wire.Decode(pkt)
		if err != nil {
			log.Printf("malformed packet ch=%d: %v", cs.channel, err)
			return
		}
	default:
		log.Printf("dropping unencrypted packet ch=%d type=%s", cs.channel, pkt.Header.Type)
		cs.close()
		return
	}

	call := servercontext.HandlerCall{
		Message:           msg,
		ConnectionChannel: cs.channel,
		ClientID:          cs.clientID.Load(),
	}
	if err := m.router.Dispatch(context.Background(), m.sc, call); err != nil {
		log.Printf("dispatch error ch=%d type=%s: %v", cs.channel, msg.Type, err)
	}
}

func (m *Manager) completeHandshake(cs *connState, pkt *wire.Packet) {
	msg, err := wire.Decode(pkt)
	if err != nil {
		log.Printf("malformed handshake response ch=%d: %v", cs.channel, err)
		cs.close()
		return
	}
	resp, ok := msg.Body.(*wire.ServerKeyExchangeResponse)
	if !ok {
		cs.close()
		return
	}
	if !m.sessionSvc.HandleKeyExchangeResponse(session.ChannelID(cs.channel), resp.PublicKey) {
		log.Printf("key exchange rejected ch=%d", cs.channel)
		cs.close()
		return
	}
	if cs.keyExchangeTimer != nil {
		cs.keyExchangeTimer.Stop()
	}
	log.Printf("🔑 session established ch=%d", cs.channel)

	cs.identifyTimer = m.sched.After(m.cfg.IdentifyTimeout, func() {
		if cs.clientID.Load() == 0 {
			log.Printf("⏱️  identify timeout ch=%d", cs.channel)
			cs.close()
		}
	})
}

func (m *Manager) writeLoop(cs *connState) {
	defer m.wg.Done()
	for {
		select {
		case <-cs.closed:
			return
		case <-cs.wake:
		}

		for {
			id := cs.clientID.Load()
			if id == 0 {
				break
			}
			q := m.queueFor(id)
			msg, ok := q.pop()
			if !ok {
				break
			}

			var out []byte
			channel := session.ChannelID(cs.channel)
			if m.sessionSvc.Established(channel) && session.ShouldEncrypt(msg.Type) {
				pkt, err := m.sessionSvc.EncryptOutgoing(channel, msg)
				if err != nil {
					log.Printf("encrypt error ch=%d: %v", cs.channel, err)
					continue
				}
				out = pkt.Encode()
			} else {
				out = wire.Encode(msg).Encode()
			}

			cs.writeMu.Lock()
			_, err := cs.conn.Write(out)
			cs.writeMu.Unlock()
			if err != nil {
				log.Printf("write error ch=%d: %v", cs.channel, err)
				cs.close()
				return
			}
		}
	}
}

func (m *Manager) cleanup(cs *connState) {
	cs.close()
	m.conns.Delete(cs.channel)
	if id := cs.clientID.Load(); id != 0 {
		m.byClient.CompareAndDelete(id, cs)
	}
	m.sessionSvc.OnConnectionClosed(session.ChannelID(cs.channel))
	log.Printf("connection closed ch=%d", cs.channel)
}

func (m *Manager) queueFor(clientID int32) *sendQueue {
	v, _ := m.queues.LoadOrStore(clientID, &sendQueue{})
	return v.(*sendQueue)
}

// Send implements servercontext.Sender.
func (m *Manager) Send(msg *wire.ProtocolMessage) {
	if msg.To == 0 {
		return
	}
	m.SendAs(msg, msg.To)
}

// SendAs implements servercontext.Sender: it queues msg onto clientID's send
// queue without touching msg.To, so a group fan-out copy still shows the
// group id as its recipient field once it reaches the member's connection.
func (m *Manager) SendAs(msg *wire.ProtocolMessage, clientID int32) {
	if clientID == 0 {
		return
	}
	m.queueFor(clientID).push(msg)
	if v, ok := m.byClient.Load(clientID); ok {
		v.(*connState).signalWrite()
	}
}

// Close implements servercontext.Sender.
func (m *Manager) Close(channel uint64) {
	if v, ok := m.conns.Load(channel); ok {
		v.(*connState).close()
	}
}

// Bind implements servercontext.Sender: it atomically claims clientID for
// channel's connection, failing if another live connection already holds
// it, so two CONNECT_USER requests racing for the same id can't both
// succeed. On success it also releases any id this same connection was
// previously bound to, so rebinding never leaves a stale "active" entry
// behind for cleanup to miss.
func (m *Manager) Bind(channel uint64, clientID int32) bool {
	v, ok := m.conns.Load(channel)
	if !ok {
		return false
	}
	cs := v.(*connState)

	actual, loaded := m.byClient.LoadOrStore(clientID, cs)
	if loaded && actual.(*connState) != cs {
		return false
	}

	if old := cs.clientID.Swap(clientID); old != 0 && old != clientID {
		m.byClient.CompareAndDelete(old, cs)
	}
	if cs.identifyTimer != nil {
		cs.identifyTimer.Stop()
	}
	cs.signalWrite()
	return true
}

// IsActive implements servercontext.Sender.
func (m *Manager) IsActive(clientID int32) bool {
	_, ok := m.byClient.Load(clientID)
	return ok
}

// Reply implements servercontext.Sender.
func (m *Manager) Reply(channel uint64, msg *wire.ProtocolMessage) {
	v, ok := m.conns.Load(channel)
	if !ok {
		return
	}
	cs := v.(*connState)

	var out []byte
	sessChannel := session.ChannelID(channel)
	if m.sessionSvc.Established(sessChannel) && session.ShouldEncrypt(msg.Type) {
		pkt, err := m.sessionSvc.EncryptOutgoing(sessChannel, msg)
		if err != nil {
			log.Printf("encrypt error ch=%d: %v", channel, err)
			return
		}
		out = pkt.Encode()
	} else {
		out = wire.Encode(msg).Encode()
	}

	cs.writeMu.Lock()
	_, err := cs.conn.Write(out)
	cs.writeMu.Unlock()
	if err != nil {
		log.Printf("write error ch=%d: %v", channel, err)
		cs.close()
	}
}
