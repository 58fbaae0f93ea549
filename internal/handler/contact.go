package handler

import (
	"context"
	"time"

	"github.com/chatrelay/relayd/internal/ack"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// ContactRequestHandler implements the two-step contact-request flow: a
// CONTACT_REQUEST is recorded as pending and forwarded to the receiver, and
// a matching CONTACT_REQUEST_RESPONSE either makes the two users mutual
// contacts or drops the pending entry (spec.md §3/§4.5). Unanswered
// requests are swept after seven days by internal/repo's ContactRequests.
type ContactRequestHandler struct{}

// NewContactRequestHandler builds a ContactRequestHandler.
func NewContactRequestHandler() *ContactRequestHandler { return &ContactRequestHandler{} }

func (h *ContactRequestHandler) Name() string { return "contact_request" }

func (h *ContactRequestHandler) CanHandle(t wire.MessageType) bool {
	switch t {
	case wire.TypeContactRequest, wire.TypeContactRequestResponse:
		return true
	default:
		return false
	}
}

func (h *ContactRequestHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	if call.ClientID == 0 || msg.From != call.ClientID {
		return nil
	}

	switch body := msg.Body.(type) {
	case *wire.ContactRequestMessage:
		h.handleRequest(sc, msg, body)
	case *wire.ContactRequestResponseMessage:
		h.handleResponse(sc, msg, body)
	}
	return nil
}

func (h *ContactRequestHandler) handleRequest(sc *servercontext.Context, msg *wire.ProtocolMessage, body *wire.ContactRequestMessage) {
	if msg.From == msg.To {
		sc.SendAck(msg.From, ack.Failed(body.RequestID, "cannot send a contact request to yourself"))
		return
	}
	sender, ok := sc.Users.Get(msg.From)
	if !ok {
		sc.SendAck(msg.From, ack.Failed(body.RequestID, "sender not registered"))
		return
	}
	if !sc.Users.Exists(msg.To) {
		sc.SendAck(msg.From, ack.Failed(body.RequestID, "contact request target does not exist"))
		return
	}
	if sender.HasContact(msg.To) {
		sc.SendAck(msg.From, ack.Failed(body.RequestID, "already contacts"))
		return
	}

	req := &repo.PendingContactRequest{
		RequestID:  body.RequestID,
		SenderID:   msg.From,
		ReceiverID: msg.To,
		Timestamp:  time.Now(),
	}
	sc.ContactRequests.PutIfAbsent(req)

	sc.SendTo(msg.From, msg.To, wire.TypeContactRequest, &wire.ContactRequestMessage{RequestID: body.RequestID})
}

// handleResponse validates that the responder is the stored request's
// receiver and the response targets the stored sender (spec.md §4.5) before
// applying it; mismatches are silently dropped, matching the handler's other
// invariant-violation-is-logged-and-swallowed failure mode (spec.md §4.5).
func (h *ContactRequestHandler) handleResponse(sc *servercontext.Context, msg *wire.ProtocolMessage, body *wire.ContactRequestResponseMessage) {
	req, ok := sc.ContactRequests.Get(body.RequestID)
	if !ok || req.ReceiverID != msg.From || req.SenderID != msg.To {
		return
	}
	sc.ContactRequests.Remove(body.RequestID)

	if body.Accepted {
		if sender, ok := sc.Users.Get(req.SenderID); ok {
			sender.AddContact(req.ReceiverID)
		}
		if receiver, ok := sc.Users.Get(req.ReceiverID); ok {
			receiver.AddContact(req.SenderID)
		}
	}

	sc.SendTo(msg.From, req.SenderID, wire.TypeContactRequestResponse, &wire.ContactRequestResponseMessage{
		RequestID: body.RequestID,
		Accepted:  body.Accepted,
	})
}
