package lobby

import (
	"context"

	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/protocol"
	"github.com/bluefox-project/bluefox/internal/room"
	"github.com/bluefox-project/bluefox/internal/session"
)

// requirePlayer resolves the logged-in identity for a session, answering
// with an error frame when the session never completed a login.
func (s *Service) requirePlayer(sessionID string, corrID uint16) (session.PlayerIdentity, bool) {
	sess := s.sessions.GetSession(sessionID)
	if sess == nil {
		return session.PlayerIdentity{}, false
	}
	player := sess.Player()
	if player == nil {
		s.reject(sessionID, corrID, CodeNotLoggedIn, "login required")
		return session.PlayerIdentity{}, false
	}
	return *player, true
}

// payloadObject extracts the request payload object, answering with an
// error frame when the payload is not an object.
func (s *Service) payloadObject(sessionID string, frame *protocol.Frame) (*protocol.Object, bool) {
	obj, ok := frame.Payload.Object()
	if !ok {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "payload must be an object")
		return nil, false
	}
	return obj, true
}

func (s *Service) handleHandshake(ctx context.Context, sessionID string, frame *protocol.Frame) {
	// The handshake payload carries client/api version strings; they are
	// logged but not enforced, version gating lives in the settings
	// compatibility key.
	if obj, ok := frame.Payload.Object(); ok {
		api, _ := obj.GetString("api")
		client, _ := obj.GetString("client")
		s.logger.Debug().
			Str("session", sessionID).
			Str("api", api).
			Str("client", client).
			Msg("handshake")
	}

	resp := protocol.NewObject().
		PutBool("success", true).
		PutString("sessionToken", sessionID)
	s.respond(sessionID, protocol.KindHandshake, frame.CorrelationID, resp.Value())
}

func (s *Service) handleLogin(ctx context.Context, sessionID string, frame *protocol.Frame) {
	obj, ok := s.payloadObject(sessionID, frame)
	if !ok {
		return
	}

	provider, ok := obj.GetString("provider")
	if !ok || provider == "" {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing provider")
		return
	}
	playerID, ok := obj.GetString("id")
	if !ok || playerID == "" {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing player id")
		return
	}
	port, ok := obj.GetInt("port")
	if !ok {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing rendezvous port")
		return
	}

	if s.bans != nil {
		banned, reason, err := s.bans.IsBanned(ctx, provider, playerID)
		if err != nil {
			s.logger.Error().Err(err).Str("player", playerID).Msg("ban lookup failed")
		}
		if banned {
			s.logger.Warn().
				Str("session", sessionID).
				Str("player", provider+":"+playerID).
				Str("reason", reason).
				Msg("login rejected, player banned")
			s.emit(ctx, events.EventLoginRejected, events.ModerationPayload{
				Target: provider + ":" + playerID,
				Reason: reason,
			})
			s.reject(sessionID, frame.CorrelationID, CodeLoginRejected, "account banned: "+reason)
			return
		}
	}

	sess := s.sessions.GetSession(sessionID)
	if sess == nil {
		return
	}

	// The session's observed address is authoritative for the rendezvous
	// IP; clients behind NAT routinely misreport their own.
	player := session.PlayerIdentity{
		Provider: provider,
		ID:       playerID,
		IP:       sess.ClientIP(),
		Port:     port,
	}
	if !s.sessions.BindPlayer(sessionID, player) {
		return
	}

	s.logger.Info().
		Str("session", sessionID).
		Str("player", player.String()).
		Msg("player logged in")
	s.emit(ctx, events.EventSessionLoggedIn, events.SessionPayload{
		SessionID: sessionID,
		ClientIP:  sess.ClientIP(),
		Player:    player.String(),
	})

	resp := protocol.NewObject().
		PutBool("success", true).
		PutString("sessionToken", sessionID).
		PutString("player", player.String()).
		PutString("ip", player.IP).
		PutInt("port", player.Port)
	s.respond(sessionID, protocol.KindLogin, frame.CorrelationID, resp.Value())
}

func (s *Service) handleRoomList(sessionID string, frame *protocol.Frame) {
	groupID := "default"
	if obj, ok := frame.Payload.Object(); ok {
		if g, ok := obj.GetString("groupId"); ok && g != "" {
			groupID = g
		}
	}

	list := protocol.NewArray()
	for _, rm := range s.rooms.RoomsInGroup(groupID) {
		list.Add(describeRoom(rm).Value())
	}

	resp := protocol.NewObject().
		PutString("groupId", groupID).
		PutArray("rooms", list)
	s.respond(sessionID, protocol.KindRoomList, frame.CorrelationID, resp.Value())
}

func (s *Service) handleCreateRoom(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}
	obj, ok := s.payloadObject(sessionID, frame)
	if !ok {
		return
	}

	name, ok := obj.GetString("name")
	if !ok || name == "" {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing room name")
		return
	}
	maxUsers, ok := obj.GetInt("maxUsers")
	if !ok || maxUsers < 1 {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing or invalid maxUsers")
		return
	}
	groupID, _ := obj.GetString("groupId")
	if groupID == "" {
		groupID = "default"
	}
	password, _ := obj.GetString("password")

	var settings room.Settings
	if arr, ok := obj.GetArray("settings"); ok {
		decoded, err := room.DecodeSettings(arr)
		if err != nil {
			s.reject(sessionID, frame.CorrelationID, CodeBadPayload, err.Error())
			return
		}
		settings = decoded
	}

	// Early reject before the creator is pulled out of their current room;
	// the registry re-checks the cap under its own lock.
	if s.rooms.AtCapacity() {
		s.reject(sessionID, frame.CorrelationID, CodeRoomRejected, "room limit reached")
		return
	}

	// A creator already in a room leaves it first; one room per session.
	s.leaveCurrentRoom(ctx, sessionID, player)

	rm := s.rooms.CreateRoom(room.CreateParams{
		Name:     name,
		GroupID:  groupID,
		MaxUsers: int(maxUsers),
		Password: password,
		Settings: settings,
	}, player)
	if rm == nil {
		s.reject(sessionID, frame.CorrelationID, CodeRoomRejected, "room limit reached")
		return
	}
	s.sessions.BindRoom(sessionID, rm.ID())

	s.emit(ctx, events.EventRoomCreated, roomEventPayload(rm))
	s.respond(sessionID, protocol.KindCreateRoom, frame.CorrelationID, describeRoom(rm).Value())
}

func (s *Service) handleJoinRoom(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}
	obj, ok := s.payloadObject(sessionID, frame)
	if !ok {
		return
	}
	roomID, ok := obj.GetInt("roomId")
	if !ok {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing roomId")
		return
	}
	password, _ := obj.GetString("password")

	s.leaveCurrentRoom(ctx, sessionID, player)

	if err := s.rooms.JoinRoom(roomID, player, password); err != nil {
		s.rejectRoomErr(sessionID, frame.CorrelationID, err)
		return
	}
	s.sessions.BindRoom(sessionID, roomID)

	rm := s.rooms.GetRoom(roomID)
	if rm == nil {
		return
	}

	s.emit(ctx, events.EventRoomUserJoined, roomEventPayload(rm))
	s.respond(sessionID, protocol.KindJoinRoom, frame.CorrelationID, describeRoom(rm).Value())

	event := protocol.NewObject().
		PutInt("roomId", roomID).
		PutString("user", player.String()).
		PutInt("userCount", int32(rm.UserCount()))
	s.broadcast(roomID, protocol.KindUserJoined, event.Value())
}

func (s *Service) handleLeaveRoom(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}

	sess := s.sessions.GetSession(sessionID)
	if sess == nil || sess.RoomID() == 0 {
		s.reject(sessionID, frame.CorrelationID, CodeNotMember, "not in a room")
		return
	}

	s.leaveCurrentRoom(ctx, sessionID, player)

	resp := protocol.NewObject().PutBool("success", true)
	s.respond(sessionID, protocol.KindLeaveRoom, frame.CorrelationID, resp.Value())
}

// leaveCurrentRoom detaches the session from whatever room it occupies and
// notifies the remaining members. No-op when the session is roomless.
func (s *Service) leaveCurrentRoom(ctx context.Context, sessionID string, player session.PlayerIdentity) {
	sess := s.sessions.GetSession(sessionID)
	if sess == nil {
		return
	}
	roomID := sess.RoomID()
	if roomID == 0 {
		return
	}

	s.sessions.BindRoom(sessionID, 0)

	res, err := s.rooms.LeaveRoom(roomID, player)
	if err != nil {
		s.logger.Debug().Err(err).Int32("room", roomID).Str("session", sessionID).Msg("leave skipped")
		return
	}

	if res.Closed {
		// Terminal state; the sweeper reclaims the record.
		if rm := s.rooms.GetRoom(roomID); rm != nil {
			s.emit(ctx, events.EventRoomClosed, roomEventPayload(rm))
		}
		return
	}

	rm := s.rooms.GetRoom(roomID)
	if rm == nil {
		return
	}

	event := protocol.NewObject().
		PutInt("roomId", roomID).
		PutString("user", player.String()).
		PutInt("userCount", int32(rm.UserCount()))
	s.broadcast(roomID, protocol.KindUserLeft, event.Value())
	s.emit(ctx, events.EventRoomUserLeft, roomEventPayload(rm))

	if res.NewOwner != nil {
		owner := protocol.NewObject().
			PutInt("roomId", roomID).
			PutString("owner", res.NewOwner.String())
		s.broadcast(roomID, protocol.KindOwnerChanged, owner.Value())
		s.emit(ctx, events.EventRoomOwnerChange, roomEventPayload(rm))
	}
}

func (s *Service) handleSetReady(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}
	obj, ok := s.payloadObject(sessionID, frame)
	if !ok {
		return
	}
	isReady, ok := obj.GetBool("ready")
	if !ok {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing ready flag")
		return
	}

	sess := s.sessions.GetSession(sessionID)
	if sess == nil || sess.RoomID() == 0 {
		s.reject(sessionID, frame.CorrelationID, CodeNotMember, "not in a room")
		return
	}
	roomID := sess.RoomID()

	if err := s.rooms.SetReady(roomID, player, isReady); err != nil {
		s.rejectRoomErr(sessionID, frame.CorrelationID, err)
		return
	}

	resp := protocol.NewObject().PutBool("success", true)
	s.respond(sessionID, protocol.KindSetReady, frame.CorrelationID, resp.Value())

	event := protocol.NewObject().
		PutInt("roomId", roomID).
		PutString("user", player.String()).
		PutBool("ready", isReady)
	s.broadcast(roomID, protocol.KindReadyChanged, event.Value())
}

func (s *Service) handleUpdateSettings(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}
	obj, ok := s.payloadObject(sessionID, frame)
	if !ok {
		return
	}

	sess := s.sessions.GetSession(sessionID)
	if sess == nil || sess.RoomID() == 0 {
		s.reject(sessionID, frame.CorrelationID, CodeNotMember, "not in a room")
		return
	}
	roomID := sess.RoomID()

	arr, ok := obj.GetArray("settings")
	if !ok {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, "missing settings array")
		return
	}
	settings, err := room.DecodeSettings(arr)
	if err != nil {
		s.reject(sessionID, frame.CorrelationID, CodeBadPayload, err.Error())
		return
	}

	maxUsers := int32(0)
	if v, ok := obj.GetInt("maxUsers"); ok {
		maxUsers = v
	}

	evicted, err := s.rooms.UpdateSettings(roomID, settings, int(maxUsers), player)
	if err != nil {
		s.rejectRoomErr(sessionID, frame.CorrelationID, err)
		return
	}

	// Evicted users learn about it the same way a closed room is
	// announced; their sessions survive, only the binding goes.
	for _, gone := range evicted {
		if victim := s.sessionByPlayer(gone); victim != nil {
			s.sessions.BindRoom(victim.ID(), 0)
			notice := protocol.NewObject().
				PutInt("roomId", roomID).
				PutString("reason", "capacity reduced")
			raw := protocol.NewFrame(protocol.KindRoomRemoved, 0, notice.Value()).Encode()
			s.sessions.Deliver(victim.ID(), raw)
		}
	}

	resp := protocol.NewObject().PutBool("success", true)
	s.respond(sessionID, protocol.KindUpdateSettings, frame.CorrelationID, resp.Value())

	rm := s.rooms.GetRoom(roomID)
	if rm == nil {
		return
	}
	event := protocol.NewObject().
		PutInt("roomId", roomID).
		PutArray("settings", rm.Settings().Encode()).
		PutInt("maxUsers", int32(rm.Info().MaxUsers)).
		PutInt("userCount", int32(rm.UserCount()))
	s.broadcast(roomID, protocol.KindSettingsChanged, event.Value())
	s.emit(ctx, events.EventRoomSettings, roomEventPayload(rm))
}

func (s *Service) handleStartGame(ctx context.Context, sessionID string, frame *protocol.Frame) {
	player, ok := s.requirePlayer(sessionID, frame.CorrelationID)
	if !ok {
		return
	}

	sess := s.sessions.GetSession(sessionID)
	if sess == nil || sess.RoomID() == 0 {
		s.reject(sessionID, frame.CorrelationID, CodeNotMember, "not in a room")
		return
	}
	roomID := sess.RoomID()

	if err := s.rooms.StartGame(roomID, player); err != nil {
		s.rejectRoomErr(sessionID, frame.CorrelationID, err)
		return
	}

	resp := protocol.NewObject().PutBool("success", true)
	s.respond(sessionID, protocol.KindStartGame, frame.CorrelationID, resp.Value())

	rm := s.rooms.GetRoom(roomID)
	if rm == nil {
		return
	}

	// The start event carries the rendezvous token; clients hand off to
	// the P2P layer from here.
	event := protocol.NewObject().
		PutInt("roomId", roomID).
		PutString("serverGUID", rm.GUID()).
		PutString("owner", rm.Owner().String())
	s.broadcast(roomID, protocol.KindGameStarted, event.Value())
	s.emit(ctx, events.EventRoomGameStarted, roomEventPayload(rm))
}

func (s *Service) handleDisconnect(ctx context.Context, sessionID string, frame *protocol.Frame) {
	s.DropSession(ctx, sessionID)
}

// DropSession tears a session down: leaves its room, disconnects it, and
// announces the departure. It backs the explicit disconnect frame, the
// transport-failure path, and the operator kick.
func (s *Service) DropSession(ctx context.Context, sessionID string) {
	sess := s.sessions.GetSession(sessionID)
	if sess == nil {
		return
	}
	if player := sess.Player(); player != nil {
		s.leaveCurrentRoom(ctx, sessionID, *player)
	}
	clientIP := sess.ClientIP()
	s.sessions.Disconnect(sessionID)
	s.emit(ctx, events.EventSessionDisconnected, events.SessionPayload{
		SessionID: sessionID,
		ClientIP:  clientIP,
	})
}

// KickSession forcibly removes a session on operator request. The client
// receives an error frame explaining the kick before the session is dropped;
// a TCP client sees it immediately, a tunnel client on its final poll.
func (s *Service) KickSession(ctx context.Context, sessionID, reason string) bool {
	sess := s.sessions.GetSession(sessionID)
	if sess == nil {
		return false
	}

	msg := "kicked by operator"
	if reason != "" {
		msg = "kicked: " + reason
	}
	s.sessions.Deliver(sessionID, protocol.ErrorFrame(0, CodeKicked, msg).Encode())

	target := sessionID
	if p := sess.Player(); p != nil {
		target = p.String()
	}
	s.DropSession(ctx, sessionID)
	s.emit(ctx, events.EventSessionKicked, events.ModerationPayload{
		Target: target,
		Reason: reason,
		Actor:  "operator",
	})
	return true
}

// CloseRoom forcibly removes a room on operator request. Every member is
// told the room is gone and unbound before the room is deleted.
func (s *Service) CloseRoom(ctx context.Context, roomID int32, reason string) bool {
	rm := s.rooms.GetRoom(roomID)
	if rm == nil {
		return false
	}

	msg := "closed by operator"
	if reason != "" {
		msg = reason
	}
	notice := protocol.NewObject().
		PutInt("roomId", roomID).
		PutString("reason", msg)
	buf := protocol.NewFrame(protocol.KindRoomRemoved, 0, notice.Value()).Encode()

	for _, sess := range s.sessions.Snapshot() {
		if sess.RoomID() != roomID {
			continue
		}
		s.sessions.BindRoom(sess.ID(), 0)
		s.sessions.Deliver(sess.ID(), buf)
	}

	payload := roomEventPayload(rm)
	if !s.rooms.RemoveRoom(roomID) {
		return false
	}
	s.emit(ctx, events.EventRoomClosed, payload)
	return true
}

// sessionByPlayer finds the session currently bound to a player identity.
func (s *Service) sessionByPlayer(player session.PlayerIdentity) *session.Session {
	want := player.String()
	for _, sess := range s.sessions.Snapshot() {
		if p := sess.Player(); p != nil && p.String() == want {
			return sess
		}
	}
	return nil
}
