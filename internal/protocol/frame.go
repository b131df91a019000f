package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message kind bytes. Requests and their responses share a kind; the
// correlation id ties a response to the request that produced it. Event
// kinds (0x20+) are server-initiated and carry correlation id 0.
const (
	KindHandshake      byte = 0x00
	KindLogin          byte = 0x01
	KindRoomList       byte = 0x02
	KindCreateRoom     byte = 0x03
	KindJoinRoom       byte = 0x04
	KindLeaveRoom      byte = 0x05
	KindSetReady       byte = 0x06
	KindUpdateSettings byte = 0x07
	KindStartGame      byte = 0x08
	KindDisconnect     byte = 0x09

	KindUserJoined      byte = 0x20
	KindUserLeft        byte = 0x21
	KindReadyChanged    byte = 0x22
	KindSettingsChanged byte = 0x23
	KindGameStarted     byte = 0x24
	KindOwnerChanged    byte = 0x25
	KindRoomRemoved     byte = 0x26

	KindExtension byte = 0x30
	KindError     byte = 0xFF
)

const (
	// FrameHeaderSize is [kind:1][correlationId:2][payloadLength:4].
	FrameHeaderSize = 7

	// DefaultMaxFrameSize bounds memory per message on the stream
	// transport. The ceiling covers the header plus payload.
	DefaultMaxFrameSize = 64 * 1024
)

// Frame is one transport message: a kind byte, a correlation id echoed
// back in responses, and a typed-value payload.
type Frame struct {
	Kind          byte
	CorrelationID uint16
	Payload       Value
}

// NewFrame creates a frame with the given kind and payload.
func NewFrame(kind byte, correlationID uint16, payload Value) *Frame {
	return &Frame{Kind: kind, CorrelationID: correlationID, Payload: payload}
}

// Encode serializes the frame header and payload, without the outer
// stream length prefix.
func (f *Frame) Encode() []byte {
	payload := Encode(f.Payload)

	out := make([]byte, FrameHeaderSize+len(payload))
	out[0] = f.Kind
	binary.BigEndian.PutUint16(out[1:3], f.CorrelationID)
	binary.BigEndian.PutUint32(out[3:7], uint32(len(payload)))
	copy(out[FrameHeaderSize:], payload)
	return out
}

// DecodeFrame parses a frame from buf. The declared payload length must
// account for every remaining byte; trailing garbage is rejected since it
// means framing integrity is already lost.
func DecodeFrame(buf []byte) (*Frame, error) {
	if len(buf) < FrameHeaderSize {
		return nil, fmt.Errorf("%w: frame shorter than header (%d bytes)",
			ErrMalformedWireData, len(buf))
	}

	kind := buf[0]
	corrID := binary.BigEndian.Uint16(buf[1:3])
	payloadLen := binary.BigEndian.Uint32(buf[3:7])

	body := buf[FrameHeaderSize:]
	if uint32(len(body)) != payloadLen {
		return nil, fmt.Errorf("%w: declared payload length %d, have %d bytes",
			ErrMalformedWireData, payloadLen, len(body))
	}

	payload, consumed, err := Decode(body)
	if err != nil {
		return nil, err
	}
	if consumed != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload",
			ErrMalformedWireData, len(body)-consumed)
	}

	return &Frame{Kind: kind, CorrelationID: corrID, Payload: payload}, nil
}

// ReadFrame reads one length-prefixed frame from a stream. The 4-byte
// big-endian prefix covers everything after itself. Returns
// ErrFrameTooLarge when the declared length exceeds maxSize and
// ErrIncompleteFrame when the stream ends mid-frame.
func ReadFrame(r io.Reader, maxSize uint32) (*Frame, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream closed inside length prefix", ErrIncompleteFrame)
		}
		return nil, err
	}

	total := binary.BigEndian.Uint32(lenBuf[:])
	if total < FrameHeaderSize {
		return nil, fmt.Errorf("%w: declared frame length %d below header size",
			ErrMalformedWireData, total)
	}
	if total > maxSize {
		return nil, fmt.Errorf("%w: declared frame length %d exceeds limit %d",
			ErrFrameTooLarge, total, maxSize)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: stream closed inside a %d-byte frame",
				ErrIncompleteFrame, total)
		}
		return nil, err
	}

	return DecodeFrame(body)
}

// WriteFrame writes f to a stream with the 4-byte length prefix.
func WriteFrame(w io.Writer, f *Frame) error {
	data := f.Encode()

	out := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(out[:4], uint32(len(data)))
	copy(out[4:], data)

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ErrorFrame builds a KindError frame carrying a code and message in the
// payload object.
func ErrorFrame(correlationID uint16, code int32, message string) *Frame {
	payload := NewObject().
		PutInt("errorCode", code).
		PutString("message", message)
	return NewFrame(KindError, correlationID, payload.Value())
}
