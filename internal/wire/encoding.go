package wire

import "encoding/binary"

// buffer is a small cursor-based byte writer used by every Body variant's
// offset-tracking encode method.
type buffer struct {
	buf []byte
}

func (b *buffer) putUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *buffer) putUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *buffer) putByte(v byte) {
	b.buf = append(b.buf, v)
}

func (b *buffer) putBool(v bool) {
	if v {
		b.putByte(1)
	} else {
		b.putByte(0)
	}
}

func (b *buffer) putBytes(v []byte) {
	b.putUint32(uint32(len(v)))
	b.buf = append(b.buf, v...)
}

func (b *buffer) putString(v string) {
	b.putBytes([]byte(v))
}

func (b *buffer) bytes() []byte {
	return b.buf
}

// cursor is the matching reader: it tracks how much of an incoming payload
// has been consumed and reports ErrMalformedPayload on underrun, rather
// than panicking on a short slice.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) need(n int) error {
	if c.pos+n > len(c.buf) {
		return ErrMalformedPayload
	}
	return nil
}

func (c *cursor) getUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *cursor) getUint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

func (c *cursor) getByte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) getBool() (bool, error) {
	v, err := c.getByte()
	return v != 0, err
}

func (c *cursor) getBytes() ([]byte, error) {
	n, err := c.getUint32()
	if err != nil {
		return nil, err
	}
	if err := c.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+int(n)])
	c.pos += int(n)
	return out, nil
}

func (c *cursor) getString() (string, error) {
	b, err := c.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *cursor) done() bool {
	return c.pos == len(c.buf)
}
