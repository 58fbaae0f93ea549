package handler

import (
	"context"

	"github.com/chatrelay/relayd/internal/ack"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// AckMessageHandler forwards a DELIVERED/READ acknowledgement from its
// recipient back to the original sender, so the sender's client sees the
// full SENT→DELIVERED→READ lifecycle described in spec.md §2. The relay's
// own SENT/FAILED acks (built by internal/ack and sent directly from
// RelayMessageHandler) never re-enter this handler since they carry To=0's
// counterpart address directly, not a round-trip forward.
type AckMessageHandler struct{}

// NewAckMessageHandler builds an AckMessageHandler.
func NewAckMessageHandler() *AckMessageHandler { return &AckMessageHandler{} }

func (h *AckMessageHandler) Name() string { return "ack" }

func (h *AckMessageHandler) CanHandle(t wire.MessageType) bool { return t == wire.TypeMessageAck }

func (h *AckMessageHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	if call.ClientID == 0 || msg.From != call.ClientID {
		return nil
	}
	if msg.To == 0 {
		// A client-originated ack with no target has nothing to forward.
		return nil
	}

	body, _ := msg.Body.(*wire.AckMessage)
	var msgID string
	if body != nil {
		msgID = body.AcknowledgedMessageID
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
	return nil
}
