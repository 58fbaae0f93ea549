package wire

import (
	"encoding/binary"
	"io"
)

// Header is the fixed-size packet header: length|type|from|to, all u32,
// big-endian, length excluding the header itself.
type Header struct {
	Length uint32
	Type   MessageType
	From   int32
	To     int32
}

// Encode serializes the header in wire order.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.From))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.To))
	return buf
}

// DecodeHeader decodes a header from exactly HeaderSize bytes and validates
// the length invariant (0 <= length <= MaxMessageSize).
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ErrMalformedHeader
	}

	length := binary.BigEndian.Uint32(buf[0:4])
	if length > MaxMessageSize {
		return nil, ErrMalformedHeader
	}

	h := &Header{
		Length: length,
		Type:   MessageType(binary.BigEndian.Uint32(buf[4:8])),
		From:   int32(binary.BigEndian.Uint32(buf[8:12])),
		To:     int32(binary.BigEndian.Uint32(buf[12:16])),
	}
	return h, nil
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return DecodeHeader(buf)
}

// WriteHeader writes h to w.
func WriteHeader(w io.Writer, h *Header) error {
	_, err := w.Write(h.Encode())
	return err
}

// Packet is a fully-framed wire unit: header plus opaque payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewPacket builds a packet with a correctly-sized header for payload.
func NewPacket(msgType MessageType, from, to int32, payload []byte) *Packet {
	return &Packet{
		Header: Header{
			Length: uint32(len(payload)),
			Type:   msgType,
			From:   from,
			To:     to,
		},
		Payload: payload,
	}
}

// Encode serializes the full packet (header + payload).
func (p *Packet) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+len(p.Payload))
	buf = append(buf, p.Header.Encode()...)
	buf = append(buf, p.Payload...)
	return buf
}
