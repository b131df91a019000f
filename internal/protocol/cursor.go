package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Cursor is a forward-only, bounds-checked reader over a byte buffer.
// Every read method fails with ErrMalformedWireData instead of panicking
// when the buffer is exhausted.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor creates a cursor over buf. The cursor does not copy the buffer.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

// need verifies that n more bytes are available.
func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrMalformedWireData, n, c.pos, len(c.buf)-c.pos)
	}
	return nil
}

// ReadUint8 reads a single byte.
func (c *Cursor) ReadUint8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// ReadBool reads a single byte and interprets any non-zero value as true.
func (c *Cursor) ReadBool() (bool, error) {
	v, err := c.ReadUint8()
	return v != 0, err
}

// ReadInt8 reads a signed byte.
func (c *Cursor) ReadInt8() (int8, error) {
	v, err := c.ReadUint8()
	return int8(v), err
}

// ReadInt16 reads a big-endian signed 16-bit integer.
func (c *Cursor) ReadInt16() (int16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(c.buf[c.pos:]))
	c.pos += 2
	return v, nil
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func (c *Cursor) ReadInt32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

// ReadInt64 reads a big-endian signed 64-bit integer.
func (c *Cursor) ReadInt64() (int64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

// ReadFloat32 reads a big-endian IEEE 754 single-precision float.
func (c *Cursor) ReadFloat32() (float32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(c.buf[c.pos:]))
	c.pos += 4
	return v, nil
}

// ReadFloat64 reads a big-endian IEEE 754 double-precision float.
func (c *Cursor) ReadFloat64() (float64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(c.buf[c.pos:]))
	c.pos += 8
	return v, nil
}

// ReadBytes reads exactly n raw bytes. The returned slice is a copy.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// ReadUTF reads a UTF-8 string with a signed 16-bit length prefix.
func (c *Cursor) ReadUTF() (string, error) {
	n, err := c.ReadInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d at offset %d",
			ErrMalformedWireData, n, c.pos-2)
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}

// ReadText reads a UTF-8 string with a signed 32-bit length prefix.
func (c *Cursor) ReadText() (string, error) {
	n, err := c.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative text length %d at offset %d",
			ErrMalformedWireData, n, c.pos-4)
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.pos : c.pos+int(n)])
	c.pos += int(n)
	return s, nil
}

// Builder constructs wire-format byte sequences. All multi-byte writes are
// big-endian. Methods return the builder for chaining.
type Builder struct {
	buf bytes.Buffer
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf.Reset()
}

// WriteUint8 writes a single byte.
func (b *Builder) WriteUint8(v byte) *Builder {
	b.buf.WriteByte(v)
	return b
}

// WriteBool writes a bool as one byte (1 or 0).
func (b *Builder) WriteBool(v bool) *Builder {
	if v {
		b.buf.WriteByte(1)
	} else {
		b.buf.WriteByte(0)
	}
	return b
}

// WriteInt8 writes a signed byte.
func (b *Builder) WriteInt8(v int8) *Builder {
	b.buf.WriteByte(byte(v))
	return b
}

// WriteInt16 writes a big-endian signed 16-bit integer.
func (b *Builder) WriteInt16(v int16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteInt32 writes a big-endian signed 32-bit integer.
func (b *Builder) WriteInt32(v int32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteInt64 writes a big-endian signed 64-bit integer.
func (b *Builder) WriteInt64(v int64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteFloat32 writes a big-endian IEEE 754 single-precision float.
func (b *Builder) WriteFloat32(v float32) *Builder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteFloat64 writes a big-endian IEEE 754 double-precision float.
func (b *Builder) WriteFloat64(v float64) *Builder {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.buf.Write(tmp[:])
	return b
}

// WriteBytes writes raw bytes with no prefix.
func (b *Builder) WriteBytes(data []byte) *Builder {
	b.buf.Write(data)
	return b
}

// WriteUTF writes a UTF-8 string with a signed 16-bit length prefix.
// Strings longer than 32767 bytes are truncated at the limit, backing
// off to the nearest rune boundary so the wire bytes stay valid UTF-8.
func (b *Builder) WriteUTF(s string) *Builder {
	data := []byte(s)
	if len(data) > math.MaxInt16 {
		cut := math.MaxInt16
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		data = data[:cut]
	}
	b.WriteInt16(int16(len(data)))
	b.buf.Write(data)
	return b
}

// WriteText writes a UTF-8 string with a signed 32-bit length prefix.
func (b *Builder) WriteText(s string) *Builder {
	b.WriteInt32(int32(len(s)))
	b.buf.WriteString(s)
	return b
}

// Len returns the current size of the buffer.
func (b *Builder) Len() int {
	return b.buf.Len()
}

// Bytes returns the accumulated bytes. The slice is owned by the builder
// and is invalidated by further writes or Reset.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}
