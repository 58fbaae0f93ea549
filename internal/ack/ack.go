// Package ack builds the canonical AckMessage variants: SENT, DELIVERED,
// READ and FAILED acknowledgements.
package ack

import "github.com/chatrelay/relayd/internal/wire"

// Sent builds a SENT ack for acknowledgedMessageID.
func Sent(acknowledgedMessageID string) *wire.AckMessage {
	return &wire.AckMessage{AcknowledgedMessageID: acknowledgedMessageID, Status: wire.AckSent}
}

// Delivered builds a DELIVERED ack for acknowledgedMessageID.
func Delivered(acknowledgedMessageID string) *wire.AckMessage {
	return &wire.AckMessage{AcknowledgedMessageID: acknowledgedMessageID, Status: wire.AckDelivered}
}

// Read builds a READ ack for acknowledgedMessageID.
func Read(acknowledgedMessageID string) *wire.AckMessage {
	return &wire.AckMessage{AcknowledgedMessageID: acknowledgedMessageID, Status: wire.AckRead}
}

// Failed builds a FAILED ack carrying a human-readable reason.
func Failed(acknowledgedMessageID, reason string) *wire.AckMessage {
	return &wire.AckMessage{
		AcknowledgedMessageID: acknowledgedMessageID,
		Status:                wire.AckFailed,
		HasErrorReason:        true,
		ErrorReason:           reason,
	}
}

// AsMessage wraps an AckMessage into a routable ProtocolMessage addressed
// from the relay (from=0) to recipient.
func AsMessage(recipient int32, body *wire.AckMessage) *wire.ProtocolMessage {
	return &wire.ProtocolMessage{
		From: 0,
		To:   recipient,
		Type: wire.TypeMessageAck,
		Body: body,
	}
}
