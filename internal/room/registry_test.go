package room

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefox-project/bluefox/internal/session"
)

func player(n int) session.PlayerIdentity {
	return session.PlayerIdentity{
		Provider: "steam",
		ID:       fmt.Sprintf("7656119%04d", n),
		IP:       "10.0.0.1",
		Port:     int32(27000 + n),
	}
}

func newTestRoom(t *testing.T, r *Registry, maxUsers int) (*Room, session.PlayerIdentity) {
	t.Helper()
	owner := player(0)
	rm := r.CreateRoom(CreateParams{
		Name:     "Skirmish",
		GroupID:  "default",
		MaxUsers: maxUsers,
	}, owner)
	require.NotNil(t, rm)
	return rm, owner
}

func TestCreateRoomSeedsRoom(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)

	assert.Equal(t, int32(1), rm.ID())
	assert.Equal(t, "Skirmish", rm.Name())
	assert.Equal(t, "Skirmish", rm.Settings().Name)
	assert.Equal(t, owner, rm.Owner())
	assert.Equal(t, StateWaitingForPlayers, rm.State())
	assert.Equal(t, 1, rm.UserCount())
	assert.NotEmpty(t, rm.GUID())

	rm2, _ := newTestRoom(t, r, 4)
	assert.Equal(t, int32(2), rm2.ID())
	assert.NotEqual(t, rm.GUID(), rm2.GUID())
}

func TestJoinRoomCapacityInvariant(t *testing.T) {
	r := NewRegistry()
	rm, _ := newTestRoom(t, r, 3)

	require.NoError(t, r.JoinRoom(rm.ID(), player(1), ""))
	require.NoError(t, r.JoinRoom(rm.ID(), player(2), ""))
	assert.Equal(t, 3, rm.UserCount())

	err := r.JoinRoom(rm.ID(), player(3), "")
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 3, rm.UserCount())
}

func TestJoinRoomRejections(t *testing.T) {
	r := NewRegistry()
	owner := player(0)
	rm := r.CreateRoom(CreateParams{
		Name:     "Private",
		GroupID:  "default",
		MaxUsers: 4,
		Password: "hunter2",
	}, owner)

	assert.ErrorIs(t, r.JoinRoom(999, player(1), "hunter2"), ErrRoomNotFound)
	assert.ErrorIs(t, r.JoinRoom(rm.ID(), player(1), "wrong"), ErrBadPassword)
	assert.ErrorIs(t, r.JoinRoom(rm.ID(), player(1), ""), ErrBadPassword)
	assert.ErrorIs(t, r.JoinRoom(rm.ID(), owner, "hunter2"), ErrAlreadyJoined)
	assert.NoError(t, r.JoinRoom(rm.ID(), player(1), "hunter2"))
}

func TestLeaveRoomOwnershipTransfer(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)
	second := player(1)
	third := player(2)
	require.NoError(t, r.JoinRoom(rm.ID(), second, ""))
	require.NoError(t, r.JoinRoom(rm.ID(), third, ""))

	res, err := r.LeaveRoom(rm.ID(), owner)
	require.NoError(t, err)
	require.NotNil(t, res.NewOwner)
	assert.False(t, res.Closed)

	// Earliest-joined remaining user becomes the owner.
	assert.Equal(t, second, *res.NewOwner)
	assert.Equal(t, second, rm.Owner())
	assert.Equal(t, 2, rm.UserCount())
}

func TestLeaveRoomNonOwnerKeepsOwner(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)
	second := player(1)
	require.NoError(t, r.JoinRoom(rm.ID(), second, ""))

	res, err := r.LeaveRoom(rm.ID(), second)
	require.NoError(t, err)
	assert.Nil(t, res.NewOwner)
	assert.False(t, res.Closed)
	assert.Equal(t, owner, rm.Owner())
}

func TestLeaveRoomLastUserAbandons(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)

	res, err := r.LeaveRoom(rm.ID(), owner)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Nil(t, res.NewOwner)
	assert.Equal(t, StateAbandoned, rm.State())
}

func TestLeaveRoomLastUserCompletesStartedGame(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)
	second := player(1)
	require.NoError(t, r.JoinRoom(rm.ID(), second, ""))
	require.NoError(t, r.SetReady(rm.ID(), owner, true))
	require.NoError(t, r.SetReady(rm.ID(), second, true))
	require.NoError(t, r.StartGame(rm.ID(), owner))

	_, err := r.LeaveRoom(rm.ID(), second)
	require.NoError(t, err)
	res, err := r.LeaveRoom(rm.ID(), owner)
	require.NoError(t, err)
	assert.True(t, res.Closed)
	assert.Equal(t, StateGameCompleted, rm.State())
}

func TestLeaveRoomNotMember(t *testing.T) {
	r := NewRegistry()
	rm, _ := newTestRoom(t, r, 4)
	_, err := r.LeaveRoom(rm.ID(), player(9))
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestStartGameGating(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)

	// One ready user is not enough.
	require.NoError(t, r.SetReady(rm.ID(), owner, true))
	assert.ErrorIs(t, r.StartGame(rm.ID(), owner), ErrCannotStart)

	second := player(1)
	require.NoError(t, r.JoinRoom(rm.ID(), second, ""))

	// Two users, one not ready yet.
	assert.ErrorIs(t, r.StartGame(rm.ID(), owner), ErrCannotStart)

	require.NoError(t, r.SetReady(rm.ID(), second, true))

	// Non-owner may not start even when the room is ready.
	assert.ErrorIs(t, r.StartGame(rm.ID(), second), ErrNotOwner)

	require.NoError(t, r.StartGame(rm.ID(), owner))
	assert.Equal(t, StateGameInProgress, rm.State())

	// No second start, and no further joins.
	assert.ErrorIs(t, r.StartGame(rm.ID(), owner), ErrCannotStart)
	assert.ErrorIs(t, r.JoinRoom(rm.ID(), player(2), ""), ErrWrongState)
}

func TestSetReadyRules(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)

	assert.ErrorIs(t, r.SetReady(rm.ID(), player(9), true), ErrNotMember)
	assert.ErrorIs(t, r.SetReady(999, owner, true), ErrRoomNotFound)

	require.NoError(t, r.SetReady(rm.ID(), owner, true))
	require.NoError(t, r.SetReady(rm.ID(), owner, false))
	assert.Equal(t, 0, rm.Info().ReadyCount)
}

func TestUpdateSettingsOwnerOnly(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 4)
	second := player(1)
	require.NoError(t, r.JoinRoom(rm.ID(), second, ""))

	s := rm.Settings()
	s.MapSize = 3

	_, err := r.UpdateSettings(rm.ID(), s, 4, second)
	assert.ErrorIs(t, err, ErrNotOwner)

	evicted, err := r.UpdateSettings(rm.ID(), s, 4, owner)
	require.NoError(t, err)
	assert.Empty(t, evicted)
	assert.Equal(t, int32(3), rm.Settings().MapSize)

	// Room name is authoritative over whatever the payload carried.
	assert.Equal(t, rm.Name(), rm.Settings().Name)
}

func TestUpdateSettingsShrinkEvictsMostRecent(t *testing.T) {
	r := NewRegistry()
	rm, owner := newTestRoom(t, r, 5)
	for i := 1; i <= 4; i++ {
		require.NoError(t, r.JoinRoom(rm.ID(), player(i), ""))
	}
	require.NoError(t, r.SetReady(rm.ID(), player(4), true))

	evicted, err := r.UpdateSettings(rm.ID(), rm.Settings(), 3, owner)
	require.NoError(t, err)

	// Latest joiners leave first.
	require.Len(t, evicted, 2)
	assert.Equal(t, player(4), evicted[0])
	assert.Equal(t, player(3), evicted[1])
	assert.Equal(t, 3, rm.UserCount())
	assert.Equal(t, owner, rm.Owner())
	assert.Equal(t, 0, rm.Info().ReadyCount)
}

func TestRoomsInGroup(t *testing.T) {
	r := NewRegistry()
	r.CreateRoom(CreateParams{Name: "a", GroupID: "alpha", MaxUsers: 2}, player(0))
	r.CreateRoom(CreateParams{Name: "b", GroupID: "alpha", MaxUsers: 2}, player(1))
	r.CreateRoom(CreateParams{Name: "c", GroupID: "beta", MaxUsers: 2}, player(2))

	assert.Len(t, r.RoomsInGroup("alpha"), 2)
	assert.Len(t, r.RoomsInGroup("beta"), 1)
	assert.Empty(t, r.RoomsInGroup("gamma"))
	assert.Equal(t, 3, r.Count())
}

func TestSweepAbandonedRemovesTerminalAndIdle(t *testing.T) {
	r := NewRegistry()

	abandoned, owner := newTestRoom(t, r, 4)
	_, err := r.LeaveRoom(abandoned.ID(), owner)
	require.NoError(t, err)

	live, _ := newTestRoom(t, r, 4)

	stale, _ := newTestRoom(t, r, 4)
	stale.mu.Lock()
	stale.lastActivity = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	removed := r.SweepAbandoned(10 * time.Minute)
	assert.Len(t, removed, 2)
	assert.ElementsMatch(t, []int32{abandoned.ID(), stale.ID()}, removed)
	assert.Nil(t, r.GetRoom(abandoned.ID()))
	assert.Nil(t, r.GetRoom(stale.ID()))
	assert.NotNil(t, r.GetRoom(live.ID()))
}

func TestSweepKeepsIdleRoomWithinTimeout(t *testing.T) {
	r := NewRegistry()
	rm, _ := newTestRoom(t, r, 4)

	rm.mu.Lock()
	rm.lastActivity = time.Now().Add(-10 * time.Minute)
	rm.mu.Unlock()

	assert.Empty(t, r.SweepAbandoned(time.Hour))
	assert.NotNil(t, r.GetRoom(rm.ID()))
}

func TestCreateRoomEnforcesCapUnderLock(t *testing.T) {
	r := NewRegistry()
	r.SetLimit(2)

	require.NotNil(t, r.CreateRoom(CreateParams{Name: "A", GroupID: "default", MaxUsers: 4}, player(1)))
	require.NotNil(t, r.CreateRoom(CreateParams{Name: "B", GroupID: "default", MaxUsers: 4}, player(2)))
	assert.True(t, r.AtCapacity())

	assert.Nil(t, r.CreateRoom(CreateParams{Name: "C", GroupID: "default", MaxUsers: 4}, player(3)))
	assert.Equal(t, 2, r.Count())
}

func TestCreateRoomConcurrentNeverOvershootsCap(t *testing.T) {
	r := NewRegistry()
	r.SetLimit(8)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.CreateRoom(CreateParams{Name: fmt.Sprintf("R%d", n), GroupID: "default", MaxUsers: 4}, player(n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, r.Count())
}
