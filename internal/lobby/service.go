// Package lobby routes decoded client frames to the session and room
// registries and fans resulting events back out to connected clients.
package lobby

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/events"
	"github.com/bluefox-project/bluefox/internal/protocol"
	"github.com/bluefox-project/bluefox/internal/room"
	"github.com/bluefox-project/bluefox/internal/session"
)

// Wire error codes carried in KindError frames.
const (
	CodeUnknownKind   int32 = 1
	CodeNotLoggedIn   int32 = 2
	CodeLoginRejected int32 = 3
	CodeBadPayload    int32 = 4
	CodeRoomNotFound  int32 = 10
	CodeRoomFull      int32 = 11
	CodeBadPassword   int32 = 12
	CodeWrongState    int32 = 13
	CodeAlreadyJoined int32 = 14
	CodeNotMember     int32 = 15
	CodeNotOwner      int32 = 16
	CodeCannotStart   int32 = 17
	CodeRoomRejected  int32 = 19
	CodeKicked        int32 = 20
)

// ErrUnknownSession marks a frame presented for a session id the registry
// does not know. Transports surface it as the invalid-session error.
var ErrUnknownSession = errors.New("unknown or disconnected session")

// BanChecker is consulted at login time. Implemented by the moderation
// store; a nil checker admits everyone.
type BanChecker interface {
	IsBanned(ctx context.Context, provider, playerID string) (bool, string, error)
}

// Service dispatches inbound frames for one lobby server. All transports
// (direct TCP and the HTTP tunnel) funnel through HandleRaw, so policy
// lives here exactly once.
type Service struct {
	sessions *session.Registry
	rooms    *room.Registry
	bans     BanChecker
	bus      *events.EventBus
	logger   zerolog.Logger
}

// NewService wires the dispatch layer to its registries. bus and bans may
// be nil in tests.
func NewService(sessions *session.Registry, rooms *room.Registry, bans BanChecker, bus *events.EventBus) *Service {
	return &Service{
		sessions: sessions,
		rooms:    rooms,
		bans:     bans,
		bus:      bus,
		logger:   log.With().Str("component", "lobby").Logger(),
	}
}

// Sessions exposes the session registry to transports that need to create
// or bind sessions before any frame arrives.
func (s *Service) Sessions() *session.Registry { return s.sessions }

// Rooms exposes the room registry for the monitor API and operator CLI.
func (s *Service) Rooms() *room.Registry { return s.rooms }

// SetRoomLimit caps how many rooms CreateRoom will admit. Zero or
// negative means unlimited.
func (s *Service) SetRoomLimit(n int) { s.rooms.SetLimit(n) }

// HandleRaw decodes one framed message from a known session and dispatches
// it. The returned error is non-nil only for wire-level faults; the direct
// transport treats those as connection-fatal while the tunnel maps them to
// a single err response. Policy rejections never surface here; they are
// answered with an error frame on the session's own delivery path.
func (s *Service) HandleRaw(ctx context.Context, sessionID string, raw []byte) error {
	frame, err := protocol.DecodeFrame(raw)
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("undecodable frame")
		return err
	}
	return s.Dispatch(ctx, sessionID, frame)
}

// Dispatch routes one decoded frame. The session must already exist; the
// transports create sessions on connect/accept before dispatching.
func (s *Service) Dispatch(ctx context.Context, sessionID string, frame *protocol.Frame) error {
	if !s.sessions.Touch(sessionID) {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	switch frame.Kind {
	case protocol.KindHandshake:
		s.handleHandshake(ctx, sessionID, frame)
	case protocol.KindLogin:
		s.handleLogin(ctx, sessionID, frame)
	case protocol.KindRoomList:
		s.handleRoomList(sessionID, frame)
	case protocol.KindCreateRoom:
		s.handleCreateRoom(ctx, sessionID, frame)
	case protocol.KindJoinRoom:
		s.handleJoinRoom(ctx, sessionID, frame)
	case protocol.KindLeaveRoom:
		s.handleLeaveRoom(ctx, sessionID, frame)
	case protocol.KindSetReady:
		s.handleSetReady(ctx, sessionID, frame)
	case protocol.KindUpdateSettings:
		s.handleUpdateSettings(ctx, sessionID, frame)
	case protocol.KindStartGame:
		s.handleStartGame(ctx, sessionID, frame)
	case protocol.KindDisconnect:
		s.handleDisconnect(ctx, sessionID, frame)
	default:
		s.logger.Warn().
			Str("session", sessionID).
			Uint8("kind", frame.Kind).
			Msg("unhandled message kind")
		s.reject(sessionID, frame.CorrelationID, CodeUnknownKind,
			fmt.Sprintf("unhandled message kind 0x%02x", frame.Kind))
	}
	return nil
}

// reject answers a policy failure with an error frame on the session's
// delivery path. Never fatal to the transport.
func (s *Service) reject(sessionID string, corrID uint16, code int32, message string) {
	frame := protocol.ErrorFrame(corrID, code, message)
	if !s.sessions.Deliver(sessionID, frame.Encode()) {
		s.logger.Debug().Str("session", sessionID).Int32("code", code).Msg("error frame dropped")
	}
}

// rejectRoomErr translates a room registry rejection into a wire error code.
func (s *Service) rejectRoomErr(sessionID string, corrID uint16, err error) {
	code := CodeRoomRejected
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		code = CodeRoomNotFound
	case errors.Is(err, room.ErrRoomFull):
		code = CodeRoomFull
	case errors.Is(err, room.ErrBadPassword):
		code = CodeBadPassword
	case errors.Is(err, room.ErrWrongState):
		code = CodeWrongState
	case errors.Is(err, room.ErrAlreadyJoined):
		code = CodeAlreadyJoined
	case errors.Is(err, room.ErrNotMember):
		code = CodeNotMember
	case errors.Is(err, room.ErrNotOwner):
		code = CodeNotOwner
	case errors.Is(err, room.ErrCannotStart):
		code = CodeCannotStart
	}
	s.reject(sessionID, corrID, code, err.Error())
}

// respond delivers a response frame carrying the request's correlation id.
func (s *Service) respond(sessionID string, kind byte, corrID uint16, payload protocol.Value) {
	frame := protocol.NewFrame(kind, corrID, payload)
	if !s.sessions.Deliver(sessionID, frame.Encode()) {
		s.logger.Debug().
			Str("session", sessionID).
			Uint8("kind", kind).
			Msg("response dropped, session gone")
	}
}

// broadcast fans an event frame out to every member of a room. Events
// carry correlation id 0; they answer no particular request.
func (s *Service) broadcast(roomID int32, kind byte, payload protocol.Value) {
	raw := protocol.NewFrame(kind, 0, payload).Encode()
	for _, sess := range s.sessions.Snapshot() {
		if sess.RoomID() == roomID {
			s.sessions.Deliver(sess.ID(), raw)
		}
	}
}

// emit publishes to the event bus when one is attached.
func (s *Service) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(ctx, events.Event{Type: t, Source: "lobby", Payload: payload})
}

func roomEventPayload(rm *room.Room) events.RoomPayload {
	info := rm.Info()
	return events.RoomPayload{
		RoomID:    info.ID,
		Name:      info.Name,
		GroupID:   info.GroupID,
		UserCount: info.UserCount,
		Owner:     info.Owner,
	}
}

// describeRoom renders a room as the wire object carried by room list
// responses and room events: identity fields, the owner and rendezvous
// token, and the positional settings array.
func describeRoom(rm *room.Room) *protocol.Object {
	info := rm.Info()
	obj := protocol.NewObject().
		PutInt("id", info.ID).
		PutString("name", info.Name).
		PutString("groupId", info.GroupID).
		PutInt("maxUsers", int32(info.MaxUsers)).
		PutInt("userCount", int32(info.UserCount)).
		PutString("owner", info.Owner).
		PutString("serverGUID", info.GUID).
		PutBool("gameStarted", info.GameStarted).
		PutBool("passworded", info.Passworded).
		PutArray("settings", rm.Settings().Encode())
	obj.Put("users", protocol.StringArray(info.Users))
	return obj
}
