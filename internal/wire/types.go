// Package wire implements the relay's framed binary packet protocol: a
// fixed-size header followed by a type-specific payload, and the typed
// ProtocolMessage views decoded from that payload.
package wire

import (
	"errors"
	"sort"
)

// MaxMessageSize bounds a packet payload to 1MiB (2^20 bytes), per the
// header's length invariant.
const MaxMessageSize = 1 << 20

// HeaderSize is the fixed width of a packet header in bytes:
// u32 length | u32 type | u32 from | u32 to.
const HeaderSize = 16

// MessageType is the closed enumeration of wire tags.
type MessageType uint32

const (
	TypeNone MessageType = iota
	TypeText
	TypeMedia
	TypeReaction
	TypeMessageAck
	TypeError
	TypeCreateUser
	TypeConnectUser
	TypeUpdatePseudo
	TypeAddContact
	TypeRemoveContact
	TypeContactRequest
	TypeContactRequestResponse
	TypeCreateGroup
	TypeDeleteGroup
	TypeLeaveGroup
	TypeAddGroupMember
	TypeRemoveGroupMember
	TypeUpdateGroupName
	TypeKeyExchange
	TypeKeyExchangeResponse
	TypeServerKeyExchange
	TypeServerKeyExchangeResponse
	TypeEncrypted
)

var typeNames = map[MessageType]string{
	TypeNone:                   "NONE",
	TypeText:                   "TEXT",
	TypeMedia:                  "MEDIA",
	TypeReaction:               "REACTION",
	TypeMessageAck:             "MESSAGE_ACK",
	TypeError:                  "ERROR",
	TypeCreateUser:             "CREATE_USER",
	TypeConnectUser:            "CONNECT_USER",
	TypeUpdatePseudo:           "UPDATE_PSEUDO",
	TypeAddContact:             "ADD_CONTACT",
	TypeRemoveContact:          "REMOVE_CONTACT",
	TypeContactRequest:         "CONTACT_REQUEST",
	TypeContactRequestResponse: "CONTACT_REQUEST_RESPONSE",
	TypeCreateGroup:            "CREATE_GROUP",
	TypeDeleteGroup:            "DELETE_GROUP",
	TypeLeaveGroup:             "LEAVE_GROUP",
	TypeAddGroupMember:         "ADD_GROUP_MEMBER",
	TypeRemoveGroupMember:      "REMOVE_GROUP_MEMBER",
	TypeUpdateGroupName:        "UPDATE_GROUP_NAME",
	TypeKeyExchange:            "KEY_EXCHANGE",
	TypeKeyExchangeResponse:    "KEY_EXCHANGE_RESPONSE",
	TypeServerKeyExchange:      "SERVER_KEY_EXCHANGE",
	TypeServerKeyExchangeResponse: "SERVER_KEY_EXCHANGE_RESPONSE",
	TypeEncrypted:              "ENCRYPTED",
}

// String returns the tag's wire name, or "UNKNOWN" for unknown codes.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Registered reports whether t is a known wire tag.
func (t MessageType) Registered() bool {
	_, ok := typeNames[t]
	return ok
}

// AllTypes returns every registered MessageType, in ascending numeric order.
// internal/router uses this to detect conflicting handler registrations at
// startup.
func AllTypes() []MessageType {
	out := make([]MessageType, 0, len(typeNames))
	for t := range typeNames {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsHandshake reports whether t is exempt from encryption, per §4.3.
func (t MessageType) IsHandshake() bool {
	switch t {
	case TypeServerKeyExchange, TypeServerKeyExchangeResponse,
		TypeKeyExchange, TypeKeyExchangeResponse:
		return true
	default:
		return false
	}
}

// Errors returned by the codec. The codec never performs I/O.
var (
	ErrMalformedHeader  = errors.New("wire: malformed header")
	ErrUnknownType      = errors.New("wire: unknown message type")
	ErrMalformedPayload = errors.New("wire: malformed payload")
)

// AckStatus is the acknowledgement status enumeration, wire bytes 0..5.
type AckStatus uint8

const (
	AckSending AckStatus = iota
	AckSent
	AckDelivered
	AckRead
	AckFailed
	AckCriticalFailure
)

// ErrorLevel is the severity carried by an ErrorMessage.
type ErrorLevel uint8

const (
	LevelInfo ErrorLevel = iota
	LevelWarning
	LevelError
	LevelCritical
)

// Well-known ERROR message "type" strings, used by the handlers in
// internal/handler.
const (
	ErrTypeUserNotFound     = "USER_NOT_FOUND"
	ErrTypeAlreadyConnected = "ALREADY_CONNECTED"
)
