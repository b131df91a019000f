package session

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionTokenFormat(t *testing.T) {
	r := NewRegistry()

	s, err := r.CreateSession("10.0.0.1")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^SESS_[0-9a-f]{16}$`), s.ID())
	assert.Equal(t, "10.0.0.1", s.ClientIP())
	assert.True(t, s.Connected())
	assert.Same(t, s, r.GetSession(s.ID()))
}

func TestTokensAreUnique(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := r.CreateSession("127.0.0.1")
		require.NoError(t, err)
		require.False(t, seen[s.ID()], "duplicate token %s", s.ID())
		seen[s.ID()] = true
	}
}

func TestTouchRefreshesActivityOnly(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	created := s.CreatedAt()
	before := s.LastActivity()

	time.Sleep(5 * time.Millisecond)
	require.True(t, r.Touch(s.ID()))
	require.True(t, r.Touch(s.ID()))

	assert.Equal(t, created, s.CreatedAt(), "created_at must never move")
	assert.True(t, s.LastActivity().After(before))
}

func TestTouchUnknownSession(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Touch("SESS_0000000000000000"))
}

func TestQueueFIFO(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	for _, m := range []string{"a", "b", "c"} {
		require.True(t, r.Enqueue(s.ID(), []byte(m)))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.Dequeue(s.ID())
		require.True(t, ok)
		assert.Equal(t, want, string(got))
	}

	_, ok := r.Dequeue(s.ID())
	assert.False(t, ok, "queue should be empty")
}

func TestEnqueueAfterDisconnect(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	require.True(t, r.Enqueue(s.ID(), []byte("pending")))
	require.True(t, r.Disconnect(s.ID()))

	// Queue is discarded and the session is gone from the registry.
	assert.False(t, r.Enqueue(s.ID(), []byte("late")))
	assert.Nil(t, r.GetSession(s.ID()))
	assert.False(t, r.Disconnect(s.ID()))
}

func TestBindPlayerAndRoom(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("192.168.1.5")
	require.NoError(t, err)

	ident := PlayerIdentity{Provider: "steam", ID: "7656119", IP: "192.168.1.5", Port: 27015}
	require.True(t, r.BindPlayer(s.ID(), ident))
	require.True(t, r.BindRoom(s.ID(), 3))

	got := s.Player()
	require.NotNil(t, got)
	assert.Equal(t, "steam:7656119@192.168.1.5:27015", got.String())
	assert.Equal(t, int32(3), s.RoomID())

	require.True(t, r.BindRoom(s.ID(), 0))
	assert.Equal(t, int32(0), s.RoomID())
}

func TestDeliverPrefersDirectWriter(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	var written [][]byte
	require.True(t, r.BindWriter(s.ID(), func(p []byte) error {
		written = append(written, p)
		return nil
	}))

	require.True(t, r.Deliver(s.ID(), []byte("direct")))
	assert.Len(t, written, 1)
	assert.Equal(t, 0, s.QueueLen(), "direct delivery must not queue")
}

func TestDeliverQueuesWithoutWriter(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	require.True(t, r.Deliver(s.ID(), []byte("queued")))
	got, ok := r.Dequeue(s.ID())
	require.True(t, ok)
	assert.Equal(t, "queued", string(got))
}

func TestSweepExpiredBoundary(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	// Pin last activity to a known point in the past.
	idle := 100 * time.Millisecond
	s.mu.Lock()
	s.lastActivity = time.Now().Add(-idle)
	s.mu.Unlock()

	// Exactly at the threshold: not yet expired. Sweeping with a larger
	// timeout must keep the session.
	assert.Equal(t, 0, r.SweepExpired(idle+time.Minute))
	assert.NotNil(t, r.GetSession(s.ID()))

	// One unit past the threshold: expired.
	assert.Equal(t, 1, r.SweepExpired(idle-time.Millisecond))
	assert.Nil(t, r.GetSession(s.ID()))
}

func TestSweepRemovesOnlyIdle(t *testing.T) {
	r := NewRegistry()
	stale, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)
	fresh, err := r.CreateSession("127.0.0.2")
	require.NoError(t, err)

	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	assert.Equal(t, 1, r.SweepExpired(30*time.Minute))
	assert.Nil(t, r.GetSession(stale.ID()))
	assert.NotNil(t, r.GetSession(fresh.ID()))
	assert.Equal(t, 1, r.Count())
}

func TestConcurrentSessionOperations(t *testing.T) {
	r := NewRegistry()
	s, err := r.CreateSession("127.0.0.1")
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Enqueue(s.ID(), []byte{byte(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Touch(s.ID())
		}
	}()
	wg.Wait()

	assert.Equal(t, n, s.QueueLen())
}
