package lobby

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluefox-project/bluefox/internal/protocol"
	"github.com/bluefox-project/bluefox/internal/room"
	"github.com/bluefox-project/bluefox/internal/session"
)

type stubBans struct {
	banned map[string]string
}

func (b *stubBans) IsBanned(_ context.Context, provider, playerID string) (bool, string, error) {
	reason, ok := b.banned[provider+":"+playerID]
	return ok, reason, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(session.NewRegistry(), room.NewRegistry(), nil, nil)
}

func connect(t *testing.T, svc *Service, ip string) string {
	t.Helper()
	sess, err := svc.Sessions().CreateSession(ip)
	require.NoError(t, err)
	return sess.ID()
}

func dispatch(t *testing.T, svc *Service, sessionID string, kind byte, corrID uint16, payload *protocol.Object) {
	t.Helper()
	var v protocol.Value
	if payload != nil {
		v = payload.Value()
	} else {
		v = protocol.Null()
	}
	err := svc.Dispatch(context.Background(), sessionID, protocol.NewFrame(kind, corrID, v))
	require.NoError(t, err)
}

// nextFrame pops and decodes the oldest queued frame for a session.
func nextFrame(t *testing.T, svc *Service, sessionID string) *protocol.Frame {
	t.Helper()
	raw, ok := svc.Sessions().Dequeue(sessionID)
	require.True(t, ok, "expected a queued frame for %s", sessionID)
	frame, err := protocol.DecodeFrame(raw)
	require.NoError(t, err)
	return frame
}

func login(t *testing.T, svc *Service, sessionID, playerID string, port int32) {
	t.Helper()
	payload := protocol.NewObject().
		PutString("provider", "steam").
		PutString("id", playerID).
		PutInt("port", port)
	dispatch(t, svc, sessionID, protocol.KindLogin, 1, payload)

	frame := nextFrame(t, svc, sessionID)
	require.Equal(t, protocol.KindLogin, frame.Kind)
	obj, ok := frame.Payload.Object()
	require.True(t, ok)
	success, _ := obj.GetBool("success")
	require.True(t, success)
}

func createRoom(t *testing.T, svc *Service, sessionID, name string, maxUsers int32) int32 {
	t.Helper()
	payload := protocol.NewObject().
		PutString("name", name).
		PutInt("maxUsers", maxUsers)
	dispatch(t, svc, sessionID, protocol.KindCreateRoom, 2, payload)

	frame := nextFrame(t, svc, sessionID)
	require.Equal(t, protocol.KindCreateRoom, frame.Kind)
	obj, ok := frame.Payload.Object()
	require.True(t, ok)
	id, ok := obj.GetInt("id")
	require.True(t, ok)
	return id
}

func TestHandshakeReturnsToken(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")

	dispatch(t, svc, id, protocol.KindHandshake, 7, protocol.NewObject().PutString("api", "1.2"))

	frame := nextFrame(t, svc, id)
	assert.Equal(t, protocol.KindHandshake, frame.Kind)
	assert.Equal(t, uint16(7), frame.CorrelationID)

	obj, ok := frame.Payload.Object()
	require.True(t, ok)
	token, _ := obj.GetString("sessionToken")
	assert.Equal(t, id, token)
}

func TestLoginBindsObservedAddress(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "203.0.113.9")

	login(t, svc, id, "76561190042", 27015)

	player := svc.Sessions().GetSession(id).Player()
	require.NotNil(t, player)
	// The rendezvous IP is the transport-observed one, not client-supplied.
	assert.Equal(t, "203.0.113.9", player.IP)
	assert.Equal(t, int32(27015), player.Port)
	assert.Equal(t, "steam:76561190042@203.0.113.9:27015", player.String())
}

func TestLoginRejectsMissingFields(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")

	dispatch(t, svc, id, protocol.KindLogin, 3, protocol.NewObject().PutString("provider", "steam"))

	frame := nextFrame(t, svc, id)
	require.Equal(t, protocol.KindError, frame.Kind)
	obj, _ := frame.Payload.Object()
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, CodeBadPayload, code)
}

func TestLoginBannedPlayer(t *testing.T) {
	bans := &stubBans{banned: map[string]string{"steam:badguy": "griefing"}}
	svc := NewService(session.NewRegistry(), room.NewRegistry(), bans, nil)
	id := connect(t, svc, "10.0.0.1")

	payload := protocol.NewObject().
		PutString("provider", "steam").
		PutString("id", "badguy").
		PutInt("port", 27015)
	dispatch(t, svc, id, protocol.KindLogin, 1, payload)

	frame := nextFrame(t, svc, id)
	require.Equal(t, protocol.KindError, frame.Kind)
	obj, _ := frame.Payload.Object()
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, CodeLoginRejected, code)
	assert.Nil(t, svc.Sessions().GetSession(id).Player())
}

func TestCreateRoomRequiresLogin(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")

	payload := protocol.NewObject().PutString("name", "Test").PutInt("maxUsers", 2)
	dispatch(t, svc, id, protocol.KindCreateRoom, 5, payload)

	frame := nextFrame(t, svc, id)
	require.Equal(t, protocol.KindError, frame.Kind)
	obj, _ := frame.Payload.Object()
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, CodeNotLoggedIn, code)
}

func TestCreateRoomBindsSession(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")
	login(t, svc, id, "owner1", 27001)

	roomID := createRoom(t, svc, id, "Test", 2)

	assert.Equal(t, roomID, svc.Sessions().GetSession(id).RoomID())
	rm := svc.Rooms().GetRoom(roomID)
	require.NotNil(t, rm)
	assert.Equal(t, "Test", rm.Name())
	assert.NotEmpty(t, rm.GUID())
	assert.Equal(t, 1, rm.UserCount())
}

func TestCreateRoomHonorsLimit(t *testing.T) {
	svc := newTestService(t)
	svc.SetRoomLimit(1)

	first := connect(t, svc, "10.0.0.1")
	login(t, svc, first, "owner1", 27001)
	createRoom(t, svc, first, "First", 2)

	second := connect(t, svc, "10.0.0.2")
	login(t, svc, second, "owner2", 27002)

	payload := protocol.NewObject().PutString("name", "Second").PutInt("maxUsers", 2)
	dispatch(t, svc, second, protocol.KindCreateRoom, 5, payload)

	frame := nextFrame(t, svc, second)
	require.Equal(t, protocol.KindError, frame.Kind)
	obj, _ := frame.Payload.Object()
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, CodeRoomRejected, code)
	assert.Equal(t, 1, svc.Rooms().Count())
}

func TestJoinRoomNotifiesMembers(t *testing.T) {
	svc := newTestService(t)
	owner := connect(t, svc, "10.0.0.1")
	login(t, svc, owner, "owner1", 27001)
	roomID := createRoom(t, svc, owner, "Test", 2)

	joiner := connect(t, svc, "10.0.0.2")
	login(t, svc, joiner, "guest1", 27002)

	dispatch(t, svc, joiner, protocol.KindJoinRoom, 9, protocol.NewObject().PutInt("roomId", roomID))

	// Joiner gets the room description back.
	frame := nextFrame(t, svc, joiner)
	require.Equal(t, protocol.KindJoinRoom, frame.Kind)
	obj, _ := frame.Payload.Object()
	count, _ := obj.GetInt("userCount")
	assert.Equal(t, int32(2), count)

	// Both members receive the user-joined event.
	event := nextFrame(t, svc, owner)
	require.Equal(t, protocol.KindUserJoined, event.Kind)
	assert.Equal(t, uint16(0), event.CorrelationID)

	event = nextFrame(t, svc, joiner)
	require.Equal(t, protocol.KindUserJoined, event.Kind)
}

func TestJoinUnknownRoom(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")
	login(t, svc, id, "p1", 27001)

	dispatch(t, svc, id, protocol.KindJoinRoom, 4, protocol.NewObject().PutInt("roomId", 999))

	frame := nextFrame(t, svc, id)
	require.Equal(t, protocol.KindError, frame.Kind)
	assert.Equal(t, uint16(4), frame.CorrelationID)
	obj, _ := frame.Payload.Object()
	code, _ := obj.GetInt("errorCode")
	assert.Equal(t, CodeRoomNotFound, code)
}

func TestRoomListFiltersByGroup(t *testing.T) {
	svc := newTestService(t)
	a := connect(t, svc, "10.0.0.1")
	login(t, svc, a, "p1", 27001)
	createRoom(t, svc, a, "One", 4)

	b := connect(t, svc, "10.0.0.2")
	login(t, svc, b, "p2", 27002)
	dispatch(t, svc, b, protocol.KindCreateRoom, 2, protocol.NewObject().
		PutString("name", "Two").
		PutString("groupId", "ranked").
		PutInt("maxUsers", 4))
	nextFrame(t, svc, b)

	viewer := connect(t, svc, "10.0.0.3")
	dispatch(t, svc, viewer, protocol.KindRoomList, 6, protocol.NewObject().PutString("groupId", "ranked"))

	frame := nextFrame(t, svc, viewer)
	require.Equal(t, protocol.KindRoomList, frame.Kind)
	obj, _ := frame.Payload.Object()
	rooms, ok := obj.GetArray("rooms")
	require.True(t, ok)
	require.Equal(t, 1, rooms.Size())

	entry, _ := rooms.Get(0)
	entryObj, _ := entry.Object()
	name, _ := entryObj.GetString("name")
	assert.Equal(t, "Two", name)
	settings, ok := entryObj.GetArray("settings")
	require.True(t, ok)
	assert.Equal(t, room.SettingsFieldCount, settings.Size())
}

func TestReadyAndStartFlow(t *testing.T) {
	svc := newTestService(t)
	owner := connect(t, svc, "10.0.0.1")
	login(t, svc, owner, "owner1", 27001)
	roomID := createRoom(t, svc, owner, "Test", 2)

	guest := connect(t, svc, "10.0.0.2")
	login(t, svc, guest, "guest1", 27002)
	dispatch(t, svc, guest, protocol.KindJoinRoom, 3, protocol.NewObject().PutInt("roomId", roomID))
	nextFrame(t, svc, guest) // join response
	nextFrame(t, svc, owner) // user-joined event
	nextFrame(t, svc, guest) // user-joined event

	// Start before anyone is ready fails.
	dispatch(t, svc, owner, protocol.KindStartGame, 4, nil)
	frame := nextFrame(t, svc, owner)
	require.Equal(t, protocol.KindError, frame.Kind)

	for _, id := range []string{owner, guest} {
		dispatch(t, svc, id, protocol.KindSetReady, 5, protocol.NewObject().PutBool("ready", true))
	}
	// Drain ready acks and ready-changed events.
	for svc.Sessions().GetSession(owner).QueueLen() > 0 {
		nextFrame(t, svc, owner)
	}
	for svc.Sessions().GetSession(guest).QueueLen() > 0 {
		nextFrame(t, svc, guest)
	}

	dispatch(t, svc, owner, protocol.KindStartGame, 6, nil)

	ack := nextFrame(t, svc, owner)
	require.Equal(t, protocol.KindStartGame, ack.Kind)

	started := nextFrame(t, svc, owner)
	require.Equal(t, protocol.KindGameStarted, started.Kind)
	obj, _ := started.Payload.Object()
	guid, _ := obj.GetString("serverGUID")
	assert.Equal(t, svc.Rooms().GetRoom(roomID).GUID(), guid)

	started = nextFrame(t, svc, guest)
	assert.Equal(t, protocol.KindGameStarted, started.Kind)
	assert.Equal(t, room.StateGameInProgress, svc.Rooms().GetRoom(roomID).State())
}

func TestOwnerDisconnectTransfersOwnership(t *testing.T) {
	svc := newTestService(t)
	owner := connect(t, svc, "10.0.0.1")
	login(t, svc, owner, "owner1", 27001)
	roomID := createRoom(t, svc, owner, "Test", 3)

	guest := connect(t, svc, "10.0.0.2")
	login(t, svc, guest, "guest1", 27002)
	dispatch(t, svc, guest, protocol.KindJoinRoom, 2, protocol.NewObject().PutInt("roomId", roomID))
	for svc.Sessions().GetSession(guest).QueueLen() > 0 {
		nextFrame(t, svc, guest)
	}

	dispatch(t, svc, owner, protocol.KindDisconnect, 0, nil)

	assert.Nil(t, svc.Sessions().GetSession(owner))
	rm := svc.Rooms().GetRoom(roomID)
	require.NotNil(t, rm)
	assert.Equal(t, 1, rm.UserCount())
	assert.Equal(t, "guest1", rm.Owner().ID)

	left := nextFrame(t, svc, guest)
	assert.Equal(t, protocol.KindUserLeft, left.Kind)
	ownerEvt := nextFrame(t, svc, guest)
	assert.Equal(t, protocol.KindOwnerChanged, ownerEvt.Kind)
}

func TestDispatchUnknownSession(t *testing.T) {
	svc := newTestService(t)
	err := svc.Dispatch(context.Background(), "SESS_0000000000000000",
		protocol.NewFrame(protocol.KindHandshake, 1, protocol.Null()))
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestHandleRawRejectsGarbage(t *testing.T) {
	svc := newTestService(t)
	id := connect(t, svc, "10.0.0.1")

	err := svc.HandleRaw(context.Background(), id, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, protocol.ErrMalformedWireData)
}
