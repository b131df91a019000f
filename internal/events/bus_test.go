package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitSyncRunsAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls int64
	bus.Subscribe(EventRoomCreated, "a", func(ctx context.Context, ev Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	bus.Subscribe(EventRoomCreated, "b", func(ctx context.Context, ev Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventRoomCreated, Source: "test"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestEmitSyncReturnsHandlerError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	wantErr := errors.New("handler failed")
	bus.Subscribe(EventAlert, "failing", func(ctx context.Context, ev Event) error {
		return wantErr
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventAlert, Source: "test"})
	assert.Equal(t, wantErr, err)
}

func TestEmitAsyncDelivers(t *testing.T) {
	bus := NewEventBus()

	done := make(chan SessionPayload, 1)
	bus.Subscribe(EventSessionCreated, "capture", func(ctx context.Context, ev Event) error {
		done <- ev.Payload.(SessionPayload)
		return nil
	})

	bus.Emit(context.Background(), Event{
		Type:    EventSessionCreated,
		Source:  "test",
		Payload: SessionPayload{SessionID: "SESS_1", ClientIP: "10.0.0.1"},
	})

	select {
	case p := <-done:
		assert.Equal(t, "SESS_1", p.SessionID)
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}

	bus.Stop()
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventRoomClosed, "x", func(ctx context.Context, ev Event) error { return nil })
	require.Equal(t, 1, bus.HandlerCount(EventRoomClosed))

	bus.Unsubscribe(EventRoomClosed, "x")
	assert.Equal(t, 0, bus.HandlerCount(EventRoomClosed))
}

func TestEmitAfterStopIsNoop(t *testing.T) {
	bus := NewEventBus()

	var calls int64
	bus.Subscribe(EventShutdown, "late", func(ctx context.Context, ev Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	})
	bus.Stop()

	bus.Emit(context.Background(), Event{Type: EventShutdown, Source: "test"})
	assert.Equal(t, int64(0), atomic.LoadInt64(&calls))
}

func TestHandlerPanicDoesNotCrashBus(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventAlert, "panics", func(ctx context.Context, ev Event) error {
		panic("boom")
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventAlert, Source: "test"})
	assert.NoError(t, err)
}
