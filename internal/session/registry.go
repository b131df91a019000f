package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// tokenBytes is the number of random bytes in a session token: 8 bytes of
// entropy rendered as 16 hex characters after the fixed prefix.
const tokenBytes = 8

// Registry is the thread-safe store of live sessions keyed by token.
// It exclusively owns session lifetimes; other components hold tokens,
// never live references across registry boundaries.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   log.With().Str("component", "session_registry").Logger(),
	}
}

// CreateSession allocates a new session for a client at the given address.
// The token comes from a cryptographically secure random source so that
// tokens cannot be guessed or enumerated.
func (r *Registry) CreateSession(clientIP string) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	s := newSession(token, clientIP, time.Now())

	r.mu.Lock()
	r.sessions[token] = s
	r.mu.Unlock()

	r.logger.Debug().
		Str("session", token).
		Str("client_ip", clientIP).
		Msg("session created")

	return s, nil
}

// GetSession returns the session for a token, or nil if unknown.
func (r *Registry) GetSession(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Touch refreshes the session's activity timestamp. Returns false when the
// token is unknown or the session is already disconnected.
func (r *Registry) Touch(id string) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}
	return s.touch(time.Now())
}

// BindPlayer attaches a player identity to the session after login.
func (r *Registry) BindPlayer(id string, player PlayerIdentity) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.player = &player
	return true
}

// BindRoom records the room the session occupies. Passing 0 clears the
// binding. Only the id crosses the registry boundary; the room itself is
// looked up on demand.
func (r *Registry) BindRoom(id string, roomID int32) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.roomID = roomID
	return true
}

// BindWriter attaches a direct transport writer to the session. The TCP
// transport binds one so responses skip the poll queue; tunnel sessions
// never have one.
func (r *Registry) BindWriter(id string, w DirectWriter) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.writer = w
	return true
}

// Enqueue appends a payload to the session's outbound FIFO queue.
// Returns false when the session is unknown or disconnected.
func (r *Registry) Enqueue(id string, payload []byte) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}
	return s.enqueue(payload)
}

// Dequeue pops the oldest queued payload, or returns false when empty.
func (r *Registry) Dequeue(id string) ([]byte, bool) {
	s := r.GetSession(id)
	if s == nil {
		return nil, false
	}
	return s.dequeue()
}

// Deliver sends a payload to the session: written directly when a
// transport writer is bound, queued for the next poll otherwise.
func (r *Registry) Deliver(id string, payload []byte) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}
	return s.deliver(payload)
}

// Disconnect marks the session disconnected, discards its queue, and
// removes it from the registry.
func (r *Registry) Disconnect(id string) bool {
	s := r.GetSession(id)
	if s == nil {
		return false
	}

	ok := s.disconnect()

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug().Str("session", id).Msg("session disconnected")
	}
	return ok
}

// SweepExpired removes sessions idle for strictly longer than idleTimeout,
// plus any already marked disconnected. A session idle for exactly the
// timeout survives. Candidates are snapshotted first so iteration never
// races in-flight operations on the same entries.
func (r *Registry) SweepExpired(idleTimeout time.Duration) int {
	now := time.Now()

	r.mu.RLock()
	candidates := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		candidates = append(candidates, id)
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		s := r.GetSession(id)
		if s == nil {
			continue
		}
		idle := now.Sub(s.LastActivity())
		if !s.Connected() || idle > idleTimeout {
			if r.Disconnect(id) {
				removed++
				r.logger.Info().
					Str("session", id).
					Dur("idle", idle).
					Msg("expired idle session")
			}
		}
	}
	return removed
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions. The slice is a copy; the pointed-to
// sessions are live and must be read through their accessors.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// newToken builds a session token: the fixed prefix plus 16 hex chars
// from 8 bytes of crypto-random entropy.
func newToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return TokenPrefix + hex.EncodeToString(raw[:]), nil
}
