package handler

import (
	"context"

	"github.com/chatrelay/relayd/internal/ack"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// RelayMessageHandler relays TEXT, MEDIA and REACTION messages to a single
// recipient or, when To names a group, to every member but the sender
// (spec.md §4.5 "group fan-out excluding sender"). Grounded on the
// handleRelayForward/deliverMessage pair in
// pkg/network/relay_handlers.go, replacing onion-layer forwarding with
// direct recipient/group lookups against internal/repo.
type RelayMessageHandler struct{}

// NewRelayMessageHandler builds a RelayMessageHandler.
func NewRelayMessageHandler() *RelayMessageHandler { return &RelayMessageHandler{} }

func (h *RelayMessageHandler) Name() string { return "relay" }

func (h *RelayMessageHandler) CanHandle(t wire.MessageType) bool {
	switch t {
	case wire.TypeText, wire.TypeMedia, wire.TypeReaction:
		return true
	default:
		return false
	}
}

func messageID(body wire.Body) string {
	switch m := body.(type) {
	case *wire.TextMessage:
		return m.MessageID
	case *wire.MediaMessage:
		return m.MessageID
	case *wire.ReactionMessage:
		return m.MessageID
	default:
		return ""
	}
}

func (h *RelayMessageHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	msgID := messageID(msg.Body)

	if call.ClientID == 0 || msg.From != call.ClientID {
		sc.SendError(call.ClientID, wire.LevelWarning, wire.ErrTypeUserNotFound, "sender not identified on this connection")
		return nil
	}

	if group, ok := sc.Groups.Get(msg.To); ok {
		if !group.IsMember(msg.From) {
			sc.SendAck(msg.From, ack.Failed(msgID, "not a member of this group"))
			return nil
		}
		for _, member := range group.Members() {
			if member == msg.From {
				continue
			}
			sc.SendToMember(member, msg.From, msg.To, msg.Type, msg.Body)
		}
		sc.SendAck(msg.From, ack.Sent(msgID))
		return nil
	}

	sender, ok := sc.Users.Get(msg.From)
	if !ok {
		sc.SendAck(msg.From, ack.Failed(msgID, "sender unknown"))
		return nil
	}
	if !sc.Users.Exists(msg.To) {
		sc.SendAck(msg.From, ack.Failed(msgID, "recipient does not exist"))
		return nil
	}
	if !sender.HasContact(msg.To) {
		sc.SendAck(msg.From, ack.Failed(msgID, "Recipient not in contacts"))
		return nil
	}

	sc.SendTo(msg.From, msg.To, msg.Type, msg.Body)
	sc.SendAck(msg.From, ack.Sent(msgID))
	return nil
}
