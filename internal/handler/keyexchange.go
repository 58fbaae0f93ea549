package handler

import (
	"context"

	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/wire"
)

// KeyExchangeRelayHandler forwards the application-level (client-to-client)
// KEY_EXCHANGE/KEY_EXCHANGE_RESPONSE pair opaquely between contacts, for
// clients that layer their own end-to-end key agreement on top of the
// relay's transport-level session (spec.md §4.3/§6: "the server never
// inspects its content"). The connection-level SERVER_KEY_EXCHANGE
// handshake that sets up transport encryption never reaches the router; it
// is handled directly inside internal/connmgr, which owns the per-channel
// internal/session.Service.
type KeyExchangeRelayHandler struct{}

// NewKeyExchangeRelayHandler builds a KeyExchangeRelayHandler.
func NewKeyExchangeRelayHandler() *KeyExchangeRelayHandler { return &KeyExchangeRelayHandler{} }

func (h *KeyExchangeRelayHandler) Name() string { return "key_exchange_relay" }

func (h *KeyExchangeRelayHandler) CanHandle(t wire.MessageType) bool {
	switch t {
	case wire.TypeKeyExchange, wire.TypeKeyExchangeResponse:
		return true
	default:
		return false
	}
}

func (h *KeyExchangeRelayHandler) Handle(_ context.Context, sc *servercontext.Context, call servercontext.HandlerCall) error {
	msg := call.Message
	if call.ClientID == 0 || msg.From != call.ClientID {
		return nil
	}
	sender, ok := sc.Users.Get(msg.From)
	if !ok || !sender.HasContact(msg.To) || !sc.Users.Exists(msg.To) {
		return nil
	}
	sc.SendTo(msg.From, msg.To, msg.Type, msg.Body)
	return nil
}
