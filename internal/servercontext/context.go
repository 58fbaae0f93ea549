// Package servercontext gives every handler an explicit, passed-in facade
// over the relay's shared state: repositories, outbound delivery and id
// generation. spec.md §9 calls out that a language without thread-locals
// should pass this kind of context explicitly through the call chain rather
// than fake one with a goroutine-local lookup, so HandlerCall plays the role
// the teacher's RelayServer receiver plays in pkg/network/relay_handlers.go,
// minus the implicit *Peer-by-net.Conn lookup.
package servercontext

import (
	"log"

	"github.com/chatrelay/relayd/internal/ack"
	"github.com/chatrelay/relayd/internal/idgen"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/wire"
)

// Sender is the subset of the connection manager a handler is allowed to
// call: enqueue an outbound message for a client, and report how a
// connection's identity maps to a client id. Depending on this narrow
// interface instead of *connmgr.Manager directly keeps internal/handler
// free of an import cycle back to internal/connmgr.
type Sender interface {
	// Send enqueues msg for delivery to msg.To. Delivery is best-effort: if
	// the recipient has no active connection the packet waits in that
	// client's send queue until one reconnects.
	Send(msg *wire.ProtocolMessage)
	// SendAs enqueues msg for delivery to clientID's connection without
	// rewriting msg.To, e.g. group fan-out where every member's copy must
	// still carry the group id as the recipient field (spec.md §4.6's
	// send(packet, clientId) override).
	SendAs(msg *wire.ProtocolMessage, clientID int32)
	// Close terminates the connection identified by channel, e.g. after a
	// critical protocol violation.
	Close(channel uint64)
	// Bind marks channel as identified as clientID, moving its connection
	// state from key-exchanged to identified and draining any messages
	// already queued for clientID from a previous session. Returns false
	// without binding if another connection already holds clientID.
	Bind(channel uint64, clientID int32) bool
	// IsActive reports whether clientID currently has an identified
	// connection bound to it.
	IsActive(clientID int32) bool
	// Reply writes msg directly to channel, bypassing the per-client send
	// queue. Used for replies to a connection that has not identified
	// itself yet, so there is no client id to address Send() with.
	Reply(channel uint64, msg *wire.ProtocolMessage)
}

// Context bundles everything a handler needs beyond the inbound message
// itself: the shared repositories, id generation, and a way to talk back to
// the connection manager.
type Context struct {
	Users           *repo.Users
	Groups          *repo.Groups
	ContactRequests *repo.ContactRequests
	IDs             *idgen.Generator
	Sender          Sender
}

// New builds a Context over the given repositories and sender.
func New(users *repo.Users, groups *repo.Groups, reqs *repo.ContactRequests, ids *idgen.Generator, sender Sender) *Context {
	return &Context{Users: users, Groups: groups, ContactRequests: reqs, IDs: ids, Sender: sender}
}

// HandlerCall is one inbound message dispatch: the decoded message plus the
// identity of the connection it arrived on. ConnectionChannel is opaque
// outside internal/connmgr; handlers use it only to address Close and to
// tell the server context which connection is "self" for error replies.
type HandlerCall struct {
	Message           *wire.ProtocolMessage
	ConnectionChannel uint64
	// ClientID is the identified sender on this connection, or 0 if the
	// connection has not completed CREATE_USER/CONNECT_USER yet.
	ClientID int32
}

// Send delivers msg via the underlying Sender.
func (c *Context) Send(msg *wire.ProtocolMessage) {
	c.Sender.Send(msg)
}

// SendTo is a convenience wrapper building and sending a ProtocolMessage
// addressed to recipient.
func (c *Context) SendTo(from, recipient int32, msgType wire.MessageType, body wire.Body) {
	c.Send(&wire.ProtocolMessage{From: from, To: recipient, Type: msgType, Body: body})
}

// SendToMember delivers a message to clientID's connection while keeping
// groupID as the packet's To field, so every group member's copy carries the
// group id as the recipient rather than its own client id (spec.md §4.5
// "using the group id as the recipient field of the forwarded packet").
func (c *Context) SendToMember(clientID, from, groupID int32, msgType wire.MessageType, body wire.Body) {
	c.Sender.SendAs(&wire.ProtocolMessage{From: from, To: groupID, Type: msgType, Body: body}, clientID)
}

// SendAck sends an acknowledgement for acknowledgedMessageID to recipient.
func (c *Context) SendAck(recipient int32, body *wire.AckMessage) {
	c.Send(ack.AsMessage(recipient, body))
}

// SendError reports a connection-level problem to recipient. Handlers use
// this instead of silently dropping malformed or unauthorized requests, per
// spec.md §7.
func (c *Context) SendError(recipient int32, level wire.ErrorLevel, errType, message string) {
	c.SendTo(0, recipient, wire.TypeError, &wire.ErrorMessage{
		Level:   level,
		Type:    errType,
		Message: message,
	})
	log.Printf("⚠️  sent %s to client %d: %s", errType, recipient, message)
}

// NextID returns the next monotonically increasing client/group id.
func (c *Context) NextID() int32 {
	return c.IDs.Next()
}

// Close terminates the calling connection, e.g. after ErrSecurityViolation
// or a malformed management request that leaves no safe way to continue.
func (c *Context) Close(channel uint64) {
	c.Sender.Close(channel)
}

// Bind identifies channel as clientID (CREATE_USER/CONNECT_USER success).
// Returns false if clientID is already bound to a different connection.
func (c *Context) Bind(channel uint64, clientID int32) bool {
	return c.Sender.Bind(channel, clientID)
}

// IsActive reports whether clientID has a live, identified connection.
func (c *Context) IsActive(clientID int32) bool {
	return c.Sender.IsActive(clientID)
}

// ReplyError sends an ErrorMessage directly to channel, for connections
// that have not identified themselves yet (so Send/SendAck, which address
// by client id, cannot reach them).
func (c *Context) ReplyError(channel uint64, level wire.ErrorLevel, errType, message string) {
	c.Sender.Reply(channel, &wire.ProtocolMessage{
		Type: wire.TypeError,
		Body: &wire.ErrorMessage{Level: level, Type: errType, Message: message},
	})
	log.Printf("⚠️  replied %s on ch=%d: %s", errType, channel, message)
}
