package wire

import (
	"encoding/base64"
	"fmt"
)

// ProtocolMessage is the decoded, typed view of a packet: the header's
// from/to/type plus a type-specific Body. Handlers switch on Type (or type
// switch on Body) rather than using runtime reflection, per spec.md's
// design notes on replacing instanceof dispatch with a tagged sum.
type ProtocolMessage struct {
	From int32
	To   int32
	Type MessageType
	Body Body
}

// Body is implemented by every payload variant. encode() never performs
// I/O; it only produces the type-specific sub-framing that follows the
// packet header.
type Body interface {
	encode() []byte
}

// ---- TEXT / MEDIA / REACTION ----

// TextMessage is a plain text relay message.
type TextMessage struct {
	MessageID         string
	Timestamp         int64
	ReplyToMessageID  string // empty if absent
	HasReplyTo        bool
	Content           string
}

func (m *TextMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.MessageID)
	b.putUint64(uint64(m.Timestamp))
	b.putBool(m.HasReplyTo)
	if m.HasReplyTo {
		b.putString(m.ReplyToMessageID)
	}
	b.putString(m.Content)
	return b.bytes()
}

func decodeTextMessage(c *cursor) (*TextMessage, error) {
	m := &TextMessage{}
	var err error
	if m.MessageID, err = c.getString(); err != nil {
		return nil, err
	}
	ts, err := c.getUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	if m.HasReplyTo, err = c.getBool(); err != nil {
		return nil, err
	}
	if m.HasReplyTo {
		if m.ReplyToMessageID, err = c.getString(); err != nil {
			return nil, err
		}
	}
	if m.Content, err = c.getString(); err != nil {
		return nil, err
	}
	return m, nil
}

// MediaMessage carries Base64-encoded binary so it can survive the same
// length-prefixed textual-safe sub-framing as every other variant.
type MediaMessage struct {
	MessageID        string
	Timestamp        int64
	ReplyToMessageID string
	HasReplyTo       bool
	MediaName        string
	Chunk            []byte
	Size             int64
}

func (m *MediaMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.MessageID)
	b.putUint64(uint64(m.Timestamp))
	b.putBool(m.HasReplyTo)
	if m.HasReplyTo {
		b.putString(m.ReplyToMessageID)
	}
	b.putString(m.MediaName)
	b.putString(base64.StdEncoding.EncodeToString(m.Chunk))
	b.putUint64(uint64(m.Size))
	return b.bytes()
}

func decodeMediaMessage(c *cursor) (*MediaMessage, error) {
	m := &MediaMessage{}
	var err error
	if m.MessageID, err = c.getString(); err != nil {
		return nil, err
	}
	ts, err := c.getUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	if m.HasReplyTo, err = c.getBool(); err != nil {
		return nil, err
	}
	if m.HasReplyTo {
		if m.ReplyToMessageID, err = c.getString(); err != nil {
			return nil, err
		}
	}
	if m.MediaName, err = c.getString(); err != nil {
		return nil, err
	}
	encoded, err := c.getString()
	if err != nil {
		return nil, err
	}
	chunk, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformedPayload
	}
	m.Chunk = chunk
	size, err := c.getUint64()
	if err != nil {
		return nil, err
	}
	m.Size = int64(size)
	return m, nil
}

// ReactionMessage is a reaction attached to a prior message.
type ReactionMessage struct {
	MessageID        string
	Timestamp        int64
	ReplyToMessageID string
	HasReplyTo       bool
	Content          string
}

func (m *ReactionMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.MessageID)
	b.putUint64(uint64(m.Timestamp))
	b.putBool(m.HasReplyTo)
	if m.HasReplyTo {
		b.putString(m.ReplyToMessageID)
	}
	b.putString(m.Content)
	return b.bytes()
}

func decodeReactionMessage(c *cursor) (*ReactionMessage, error) {
	m := &ReactionMessage{}
	var err error
	if m.MessageID, err = c.getString(); err != nil {
		return nil, err
	}
	ts, err := c.getUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	if m.HasReplyTo, err = c.getBool(); err != nil {
		return nil, err
	}
	if m.HasReplyTo {
		if m.ReplyToMessageID, err = c.getString(); err != nil {
			return nil, err
		}
	}
	if m.Content, err = c.getString(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- ACK ----

// AckMessage acknowledges delivery state for a previously-sent message.
type AckMessage struct {
	AcknowledgedMessageID string
	Status                AckStatus
	ErrorReason           string
	HasErrorReason        bool
}

func (m *AckMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.AcknowledgedMessageID)
	b.putByte(byte(m.Status))
	b.putBool(m.HasErrorReason)
	if m.HasErrorReason {
		b.putString(m.ErrorReason)
	}
	return b.bytes()
}

func decodeAckMessage(c *cursor) (*AckMessage, error) {
	m := &AckMessage{}
	var err error
	if m.AcknowledgedMessageID, err = c.getString(); err != nil {
		return nil, err
	}
	status, err := c.getByte()
	if err != nil {
		return nil, err
	}
	m.Status = AckStatus(status)
	if m.HasErrorReason, err = c.getBool(); err != nil {
		return nil, err
	}
	if m.HasErrorReason {
		if m.ErrorReason, err = c.getString(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ---- MANAGEMENT ----

// ParamKind tags the dynamic type of a ManagementMessage parameter.
type ParamKind byte

const (
	ParamString ParamKind = iota
	ParamInt
	ParamBool
)

// ManagementMessage carries a string-keyed, dynamically-typed parameter
// mapping used by user- and group-management operations (e.g. {clientId,
// pseudo} or {groupId, adminId, name, member0..memberN}).
type ManagementMessage struct {
	Params map[string]any
}

func NewManagementMessage() *ManagementMessage {
	return &ManagementMessage{Params: make(map[string]any)}
}

func (m *ManagementMessage) encode() []byte {
	b := &buffer{}
	b.putUint32(uint32(len(m.Params)))
	for k, v := range m.Params {
		b.putString(k)
		switch val := v.(type) {
		case string:
			b.putByte(byte(ParamString))
			b.putString(val)
		case int:
			b.putByte(byte(ParamInt))
			b.putUint64(uint64(int64(val)))
		case int64:
			b.putByte(byte(ParamInt))
			b.putUint64(uint64(val))
		case bool:
			b.putByte(byte(ParamBool))
			b.putBool(val)
		default:
			// Unknown dynamic types are encoded as their string form; this
			// keeps encode total rather than panicking on caller mistakes.
			b.putByte(byte(ParamString))
			b.putString(fmt.Sprint(val))
		}
	}
	return b.bytes()
}

func decodeManagementMessage(c *cursor) (*ManagementMessage, error) {
	count, err := c.getUint32()
	if err != nil {
		return nil, err
	}
	m := NewManagementMessage()
	for i := uint32(0); i < count; i++ {
		key, err := c.getString()
		if err != nil {
			return nil, err
		}
		kind, err := c.getByte()
		if err != nil {
			return nil, err
		}
		switch ParamKind(kind) {
		case ParamString:
			v, err := c.getString()
			if err != nil {
				return nil, err
			}
			m.Params[key] = v
		case ParamInt:
			v, err := c.getUint64()
			if err != nil {
				return nil, err
			}
			m.Params[key] = int64(v)
		case ParamBool:
			v, err := c.getBool()
			if err != nil {
				return nil, err
			}
			m.Params[key] = v
		default:
			return nil, ErrMalformedPayload
		}
	}
	return m, nil
}

// ---- CONTACT REQUEST ----

// ContactRequestMessage proposes a contact relationship.
type ContactRequestMessage struct {
	RequestID string
}

func (m *ContactRequestMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.RequestID)
	return b.bytes()
}

func decodeContactRequestMessage(c *cursor) (*ContactRequestMessage, error) {
	m := &ContactRequestMessage{}
	var err error
	if m.RequestID, err = c.getString(); err != nil {
		return nil, err
	}
	return m, nil
}

// ContactRequestResponseMessage answers a pending ContactRequestMessage.
type ContactRequestResponseMessage struct {
	RequestID string
	Accepted  bool
}

func (m *ContactRequestResponseMessage) encode() []byte {
	b := &buffer{}
	b.putString(m.RequestID)
	b.putBool(m.Accepted)
	return b.bytes()
}

func decodeContactRequestResponseMessage(c *cursor) (*ContactRequestResponseMessage, error) {
	m := &ContactRequestResponseMessage{}
	var err error
	if m.RequestID, err = c.getString(); err != nil {
		return nil, err
	}
	if m.Accepted, err = c.getBool(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- ERROR ----

// ErrorMessage reports a connection-level problem to the client.
type ErrorMessage struct {
	Level   ErrorLevel
	Type    string
	Message string
}

func (m *ErrorMessage) encode() []byte {
	b := &buffer{}
	b.putByte(byte(m.Level))
	b.putString(m.Type)
	b.putString(m.Message)
	return b.bytes()
}

func decodeErrorMessage(c *cursor) (*ErrorMessage, error) {
	m := &ErrorMessage{}
	level, err := c.getByte()
	if err != nil {
		return nil, err
	}
	m.Level = ErrorLevel(level)
	if m.Type, err = c.getString(); err != nil {
		return nil, err
	}
	if m.Message, err = c.getString(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- KEY EXCHANGE ----

// KeyExchangeMessage carries a client's client-level (not connection-level)
// public key, relayed end-to-end between peers for E2E session setup; the
// server never inspects its content (see §4.3 shouldEncrypt exemption).
type KeyExchangeMessage struct {
	PublicKey []byte
}

func (m *KeyExchangeMessage) encode() []byte {
	b := &buffer{}
	b.putBytes(m.PublicKey)
	return b.bytes()
}

func decodeKeyExchangeMessage(c *cursor) (*KeyExchangeMessage, error) {
	m := &KeyExchangeMessage{}
	var err error
	if m.PublicKey, err = c.getBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// KeyExchangeResponseMessage answers a KeyExchangeMessage.
type KeyExchangeResponseMessage struct {
	PublicKey []byte
}

func (m *KeyExchangeResponseMessage) encode() []byte {
	b := &buffer{}
	b.putBytes(m.PublicKey)
	return b.bytes()
}

func decodeKeyExchangeResponseMessage(c *cursor) (*KeyExchangeResponseMessage, error) {
	m := &KeyExchangeResponseMessage{}
	var err error
	if m.PublicKey, err = c.getBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// ServerKeyExchange is the server's half of the connection-level handshake
// (§4.3/§6 step 1): the server's ephemeral public key, sent unencrypted.
type ServerKeyExchange struct {
	PublicKey []byte
}

func (m *ServerKeyExchange) encode() []byte {
	b := &buffer{}
	b.putBytes(m.PublicKey)
	return b.bytes()
}

func decodeServerKeyExchange(c *cursor) (*ServerKeyExchange, error) {
	m := &ServerKeyExchange{}
	var err error
	if m.PublicKey, err = c.getBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// ServerKeyExchangeResponse is the client's half of the handshake (§6 step
// 2): the client's ephemeral public key, also sent unencrypted.
type ServerKeyExchangeResponse struct {
	PublicKey []byte
}

func (m *ServerKeyExchangeResponse) encode() []byte {
	b := &buffer{}
	b.putBytes(m.PublicKey)
	return b.bytes()
}

func decodeServerKeyExchangeResponse(c *cursor) (*ServerKeyExchangeResponse, error) {
	m := &ServerKeyExchangeResponse{}
	var err error
	if m.PublicKey, err = c.getBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- ENCRYPTED ----

// EncryptedWrapper is the hop-by-hop ciphertext wrapper for every
// non-handshake packet once encryption is established. Header from/to
// fields remain in the clear on the enclosing packet so the relay can
// still route; InnerType identifies the wrapped message's real type after
// decryption.
type EncryptedWrapper struct {
	InnerType  MessageType
	Sequence   uint64
	Nonce      []byte
	Ciphertext []byte
}

func (m *EncryptedWrapper) encode() []byte {
	b := &buffer{}
	b.putUint32(uint32(m.InnerType))
	b.putUint64(m.Sequence)
	b.putBytes(m.Nonce)
	b.putBytes(m.Ciphertext)
	return b.bytes()
}

func decodeEncryptedWrapper(c *cursor) (*EncryptedWrapper, error) {
	m := &EncryptedWrapper{}
	inner, err := c.getUint32()
	if err != nil {
		return nil, err
	}
	m.InnerType = MessageType(inner)
	if m.Sequence, err = c.getUint64(); err != nil {
		return nil, err
	}
	if m.Nonce, err = c.getBytes(); err != nil {
		return nil, err
	}
	if m.Ciphertext, err = c.getBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// ---- packet <-> ProtocolMessage ----

// Encode serializes msg into a framed Packet ready for the wire.
func Encode(msg *ProtocolMessage) *Packet {
	payload := msg.Body.encode()
	return NewPacket(msg.Type, msg.From, msg.To, payload)
}

// Decode parses a packet's payload into a typed ProtocolMessage.
func Decode(p *Packet) (*ProtocolMessage, error) {
	if !p.Header.Type.Registered() {
		return nil, ErrUnknownType
	}

	c := newCursor(p.Payload)
	var body Body
	var err error

	switch p.Header.Type {
	case TypeText:
		body, err = decodeTextMessage(c)
	case TypeMedia:
		body, err = decodeMediaMessage(c)
	case TypeReaction:
		body, err = decodeReactionMessage(c)
	case TypeMessageAck:
		body, err = decodeAckMessage(c)
	case TypeError:
		body, err = decodeErrorMessage(c)
	case TypeCreateUser, TypeConnectUser, TypeUpdatePseudo, TypeAddContact,
		TypeRemoveContact, TypeCreateGroup, TypeDeleteGroup, TypeLeaveGroup,
		TypeAddGroupMember, TypeRemoveGroupMember, TypeUpdateGroupName:
		body, err = decodeManagementMessage(c)
	case TypeContactRequest:
		body, err = decodeContactRequestMessage(c)
	case TypeContactRequestResponse:
		body, err = decodeContactRequestResponseMessage(c)
	case TypeKeyExchange:
		body, err = decodeKeyExchangeMessage(c)
	case TypeKeyExchangeResponse:
		body, err = decodeKeyExchangeResponseMessage(c)
	case TypeServerKeyExchange:
		body, err = decodeServerKeyExchange(c)
	case TypeServerKeyExchangeResponse:
		body, err = decodeServerKeyExchangeResponse(c)
	case TypeEncrypted:
		body, err = decodeEncryptedWrapper(c)
	case TypeNone:
		body = &ManagementMessage{Params: map[string]any{}}
	default:
		return nil, ErrUnknownType
	}

	if err != nil {
		return nil, err
	}
	if !c.done() {
		return nil, ErrMalformedPayload
	}

	return &ProtocolMessage{
		From: p.Header.From,
		To:   p.Header.To,
		Type: p.Header.Type,
		Body: body,
	}, nil
}
