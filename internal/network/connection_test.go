package network

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefox-project/bluefox/internal/protocol"
)

func TestConnectionFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(server, time.Second)
	defer conn.Close()

	payload := protocol.NewObject().PutString("hello", "world")
	sent := protocol.NewFrame(protocol.KindHandshake, 42, payload.Value())

	done := make(chan error, 1)
	go func() {
		done <- conn.WriteFrame(sent)
	}()

	got, err := protocol.ReadFrame(client, 0)
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, sent.Kind, got.Kind)
	assert.Equal(t, uint16(42), got.CorrelationID)
	obj, ok := got.Payload.Object()
	require.True(t, ok)
	v, _ := obj.GetString("hello")
	assert.Equal(t, "world", v)
}

func TestConnectionReadFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(server, time.Second)
	defer conn.Close()

	frame := protocol.NewFrame(protocol.KindLogin, 7, protocol.Null())
	go protocol.WriteFrame(client, frame)

	got, err := conn.ReadFrame(time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindLogin, got.Kind)
}

func TestConnectionWriteAfterClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	conn := NewConnection(server, time.Second)
	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())

	err := conn.WriteRaw([]byte{0x00})
	assert.Error(t, err)
}

func TestConnectionRegistry(t *testing.T) {
	r := NewConnectionRegistry()

	a1, a2 := net.Pipe()
	defer a1.Close()
	defer a2.Close()
	conn := NewConnection(a2, time.Second)
	conn.BindSession("SESS_aaaaaaaaaaaaaaaa")

	r.Register("SESS_aaaaaaaaaaaaaaaa", conn)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("SESS_aaaaaaaaaaaaaaaa")
	require.True(t, ok)
	assert.Equal(t, conn, got)

	// Re-registering the same session closes the old socket.
	b1, b2 := net.Pipe()
	defer b1.Close()
	replacement := NewConnection(b2, time.Second)
	r.Register("SESS_aaaaaaaaaaaaaaaa", replacement)
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 1, r.Count())

	r.Unregister("SESS_aaaaaaaaaaaaaaaa")
	assert.True(t, replacement.IsClosed())
	assert.Equal(t, 0, r.Count())

	r.Register("SESS_bbbbbbbbbbbbbbbb", replacement)
	r.CloseAll()
	assert.Equal(t, 0, r.Count())
}
