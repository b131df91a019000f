// Package session implements the transport-agnostic client session model
// and its thread-safe registry. A session represents one connected client
// whether it arrived over the direct TCP transport or the HTTP tunnel;
// the transports only ever address it by its opaque token.
package session

import (
	"fmt"
	"sync"
	"time"
)

// TokenPrefix is the fixed ASCII prefix of every session token.
const TokenPrefix = "SESS_"

// PlayerIdentity is the composite identity bound to a session after login.
// The IP/port pair doubles as the peer-to-peer rendezvous address handed
// to other clients when a game starts.
type PlayerIdentity struct {
	Provider string `json:"provider"`
	ID       string `json:"id"`
	IP       string `json:"ip"`
	Port     int32  `json:"port"`
}

// String renders the identity in its canonical wire form, used both for
// display and as the key of the per-player maps in room settings.
func (p PlayerIdentity) String() string {
	return fmt.Sprintf("%s:%s@%s:%d", p.Provider, p.ID, p.IP, p.Port)
}

// DirectWriter delivers an encoded frame straight to a connected transport,
// bypassing the poll queue. Bound by the TCP transport only.
type DirectWriter func(payload []byte) error

// Session tracks one connected client. All field mutation goes through
// methods holding the session mutex; different sessions never contend.
type Session struct {
	mu sync.Mutex

	id        string
	clientIP  string
	createdAt time.Time

	lastActivity time.Time
	connected    bool

	player    *PlayerIdentity
	roomID    int32
	queue     [][]byte
	writer    DirectWriter
}

func newSession(id, clientIP string, now time.Time) *Session {
	return &Session{
		id:           id,
		clientIP:     clientIP,
		createdAt:    now,
		lastActivity: now,
		connected:    true,
	}
}

// ID returns the session token.
func (s *Session) ID() string {
	return s.id
}

// ClientIP returns the address the session first connected from.
func (s *Session) ClientIP() string {
	return s.clientIP
}

// CreatedAt returns the session creation time. Never changes after create.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActivity returns the time of the last inbound command.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Connected reports whether the session is still live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Player returns the bound player identity, or nil before login.
func (s *Session) Player() *PlayerIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// RoomID returns the id of the room the session currently occupies,
// or 0 when not in a room.
func (s *Session) RoomID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// QueueLen returns the number of pending outbound messages.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) touch(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.lastActivity = now
	return true
}

func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.queue = append(s.queue, payload)
	return true
}

func (s *Session) dequeue() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head, true
}

// deliver writes through the direct writer when one is bound, otherwise
// queues the payload for the next poll.
func (s *Session) deliver(payload []byte) bool {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return false
	}
	w := s.writer
	if w == nil {
		s.queue = append(s.queue, payload)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	// Write outside the lock: the socket may block and the writer
	// serializes concurrent writes itself.
	if err := w(payload); err != nil {
		return false
	}
	return true
}

func (s *Session) disconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	s.connected = false
	s.queue = nil
	s.roomID = 0
	s.writer = nil
	return true
}
