// Package bluebox implements the HTTP long-polling tunnel: a
// request/response command protocol that carries framed binary messages
// for clients that cannot hold a direct TCP connection.
package bluebox

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/lobby"
)

// Tunnel commands. Each HTTP request carries exactly one and is answered
// synchronously; queued messages only move on poll.
const (
	CmdConnect    = "connect"
	CmdPoll       = "poll"
	CmdData       = "data"
	CmdDisconnect = "disconnect"
)

// NullToken is the literal used for "no session" and "no data" slots in
// the pipe-delimited envelope.
const NullToken = "null"

// Error responses. The numbered format is fixed by the client.
const (
	respInvalidSession = "err01|Invalid http session !"
	respBadRequest     = "err02|Malformed tunnel request"
	respBadData        = "err03|Undecodable message data"
)

// Tunnel answers BlueBox envelope commands against the lobby service.
// It is stateless itself; all state lives in the session registry.
type Tunnel struct {
	svc    *lobby.Service
	logger zerolog.Logger
}

// NewTunnel creates a tunnel bound to the lobby service.
func NewTunnel(svc *lobby.Service) *Tunnel {
	return &Tunnel{
		svc:    svc,
		logger: log.With().Str("component", "bluebox").Logger(),
	}
}

// Handle processes one decoded sfsHttp field value of the form
// "{sessionId}|{command}|{data}" and returns the response body. clientIP
// is the transport-observed remote address, recorded on connect. Legacy
// clients append a trailing NUL byte; it is stripped, never echoed.
func (t *Tunnel) Handle(ctx context.Context, raw, clientIP string) string {
	raw = strings.TrimRight(raw, "\x00")

	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		t.logger.Debug().Str("ip", clientIP).Msg("malformed tunnel envelope")
		return respBadRequest
	}
	sessionID, command, data := parts[0], parts[1], parts[2]

	switch command {
	case CmdConnect:
		return t.handleConnect(clientIP)
	case CmdPoll:
		return t.handlePoll(sessionID)
	case CmdData:
		return t.handleData(ctx, sessionID, data)
	case CmdDisconnect:
		return t.handleDisconnect(ctx, sessionID)
	default:
		t.logger.Debug().Str("command", command).Msg("unknown tunnel command")
		return respBadRequest
	}
}

// handleConnect ignores any supplied session id and always creates a
// fresh session; reconnecting clients get a new identity.
func (t *Tunnel) handleConnect(clientIP string) string {
	sess, err := t.svc.Sessions().CreateSession(clientIP)
	if err != nil {
		t.logger.Error().Err(err).Msg("session allocation failed")
		return respBadRequest
	}
	t.logger.Debug().Str("session", sess.ID()).Str("ip", clientIP).Msg("tunnel connect")
	return CmdConnect + "|" + sess.ID()
}

func (t *Tunnel) handlePoll(sessionID string) string {
	if !t.svc.Sessions().Touch(sessionID) {
		return respInvalidSession
	}

	payload, ok := t.svc.Sessions().Dequeue(sessionID)
	if !ok {
		// No server-side blocking; the client re-polls on its own timer.
		return CmdPoll + "|" + NullToken
	}
	return CmdPoll + "|" + base64.StdEncoding.EncodeToString(payload)
}

// handleData decodes the attached framed message and dispatches it. The
// response is only an acknowledgment; domain responses arrive via poll.
func (t *Tunnel) handleData(ctx context.Context, sessionID, data string) string {
	if !t.svc.Sessions().Touch(sessionID) {
		return respInvalidSession
	}
	if data == NullToken || data == "" {
		return respBadData
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.logger.Debug().Err(err).Str("session", sessionID).Msg("bad base64 in data command")
		return respBadData
	}

	if err := t.svc.HandleRaw(ctx, sessionID, raw); err != nil {
		// Wire-level fault: request fails, the session stays connected.
		t.logger.Warn().Err(err).Str("session", sessionID).Msg("tunnel data rejected")
		return respBadData
	}
	return CmdData + "|" + NullToken
}

func (t *Tunnel) handleDisconnect(ctx context.Context, sessionID string) string {
	if t.svc.Sessions().GetSession(sessionID) == nil {
		return respInvalidSession
	}
	t.svc.DropSession(ctx, sessionID)
	t.logger.Debug().Str("session", sessionID).Msg("tunnel disconnect")
	return CmdDisconnect + "|" + NullToken
}
