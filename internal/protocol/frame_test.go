package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeLayout(t *testing.T) {
	payload := NewObject().PutString("zone", "lobbies")
	f := NewFrame(KindLogin, 0x0102, payload.Value())

	encoded := f.Encode()
	require.GreaterOrEqual(t, len(encoded), FrameHeaderSize)

	assert.Equal(t, KindLogin, encoded[0])
	assert.Equal(t, uint16(0x0102), binary.BigEndian.Uint16(encoded[1:3]))
	assert.Equal(t, uint32(len(encoded)-FrameHeaderSize), binary.BigEndian.Uint32(encoded[3:7]))
}

func TestFrameRoundTrip(t *testing.T) {
	payload := NewObject().
		PutString("name", "Test").
		PutInt("maxUsers", 2)
	f := NewFrame(KindCreateRoom, 7, payload.Value())

	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, KindCreateRoom, decoded.Kind)
	assert.Equal(t, uint16(7), decoded.CorrelationID)

	obj, ok := decoded.Payload.Object()
	require.True(t, ok)
	name, _ := obj.GetString("name")
	assert.Equal(t, "Test", name)
}

func TestDecodeFrameRejectsLengthMismatch(t *testing.T) {
	f := NewFrame(KindRoomList, 1, Null())
	encoded := f.Encode()

	// Corrupt the declared payload length.
	binary.BigEndian.PutUint32(encoded[3:7], 99)
	_, err := DecodeFrame(encoded)
	assert.ErrorIs(t, err, ErrMalformedWireData)

	// Truncate below the header.
	_, err = DecodeFrame(encoded[:3])
	assert.ErrorIs(t, err, ErrMalformedWireData)
}

func TestReadWriteFrameStream(t *testing.T) {
	var buf bytes.Buffer
	f := NewFrame(KindJoinRoom, 42, NewObject().PutInt("roomId", 5).Value())
	require.NoError(t, WriteFrame(&buf, f))

	// Stream prefix covers everything after itself.
	prefix := binary.BigEndian.Uint32(buf.Bytes()[:4])
	assert.Equal(t, uint32(buf.Len()-4), prefix)

	got, err := ReadFrame(&buf, 0)
	require.NoError(t, err)
	assert.Equal(t, KindJoinRoom, got.Kind)
	assert.Equal(t, uint16(42), got.CorrelationID)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 1<<20)
	buf.Write(prefix[:])

	_, err := ReadFrame(&buf, DefaultMaxFrameSize)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadFrameIncomplete(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, WriteFrame(&full, NewFrame(KindLeaveRoom, 1, Null())))

	// Cut the stream mid-frame.
	truncated := bytes.NewReader(full.Bytes()[:full.Len()-2])
	_, err := ReadFrame(truncated, 0)
	assert.ErrorIs(t, err, ErrIncompleteFrame)

	// Cut inside the length prefix.
	short := bytes.NewReader(full.Bytes()[:2])
	_, err = ReadFrame(short, 0)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
}

func TestErrorFrame(t *testing.T) {
	f := ErrorFrame(3, 1, "Invalid http session !")
	decoded, err := DecodeFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, KindError, decoded.Kind)

	obj, ok := decoded.Payload.Object()
	require.True(t, ok)
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, int32(1), code)
	msg, _ := obj.GetString("message")
	assert.Equal(t, "Invalid http session !", msg)
}
