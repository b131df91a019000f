// Package room implements the lobby ("room") model and its thread-safe
// registry. Rooms are owned exclusively by the registry; sessions refer to
// a room only by id and look it up on demand, so the session and room
// registries never hold each other's locks.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/bluefox-project/bluefox/internal/session"
)

// State is the room lifecycle state.
type State int

const (
	StateWaitingForPlayers State = iota
	StateGameInProgress
	StateGameCompleted
	StateAbandoned
)

// stateStrings maps State values to their JSON string representation.
var stateStrings = map[State]string{
	StateWaitingForPlayers: "waiting_for_players",
	StateGameInProgress:    "game_in_progress",
	StateGameCompleted:     "game_completed",
	StateAbandoned:         "abandoned",
}

// String returns the string representation of the state.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes State as a JSON string.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Policy rejections returned by room operations. These are plain values,
// never fatal to a connection; handlers translate them into error payloads.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrWrongState    = errors.New("room is not accepting this operation in its current state")
	ErrBadPassword   = errors.New("room password mismatch")
	ErrRoomFull      = errors.New("room is at maximum capacity")
	ErrAlreadyJoined = errors.New("user already present in room")
	ErrNotMember     = errors.New("user is not a member of the room")
	ErrNotOwner      = errors.New("operation restricted to the room owner")
	ErrCannotStart   = errors.New("room does not satisfy the start conditions")
)

// MinPlayersToStart is the minimum connected-user count before a game may
// begin. A solo lobby can never start, ready or not.
const MinPlayersToStart = 2

// Room represents one lobby. All mutation happens under the room mutex so
// join/leave/ready/start are linearized per room.
type Room struct {
	mu sync.Mutex

	id       int32
	name     string
	groupID  string
	maxUsers int
	password string
	guid     string

	owner    session.PlayerIdentity
	users    []session.PlayerIdentity // insertion order
	ready    map[string]bool          // keyed by PlayerIdentity.String()
	settings Settings

	state        State
	gameStarted  bool
	createdAt    time.Time
	lastActivity time.Time
}

// Info is an immutable snapshot of a room for monitoring surfaces.
type Info struct {
	ID           int32     `json:"id"`
	Name         string    `json:"name"`
	GroupID      string    `json:"group_id"`
	MaxUsers     int       `json:"max_users"`
	UserCount    int       `json:"user_count"`
	Owner        string    `json:"owner"`
	State        State     `json:"state"`
	GameStarted  bool      `json:"game_started"`
	Passworded   bool      `json:"passworded"`
	GUID         string    `json:"guid"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Users        []string  `json:"users"`
	ReadyCount   int       `json:"ready_count"`
}

// ID returns the room id.
func (rm *Room) ID() int32 {
	return rm.id
}

// Name returns the room name.
func (rm *Room) Name() string {
	return rm.name
}

// GroupID returns the logical namespace the room was created in.
func (rm *Room) GroupID() string {
	return rm.groupID
}

// GUID returns the opaque rendezvous token the P2P layer uses to locate
// the room's host.
func (rm *Room) GUID() string {
	return rm.guid
}

// Owner returns the current owner identity.
func (rm *Room) Owner() session.PlayerIdentity {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.owner
}

// State returns the current lifecycle state.
func (rm *Room) State() State {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state
}

// UserCount returns the number of connected users.
func (rm *Room) UserCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.users)
}

// Users returns the connected users in join order.
func (rm *Room) Users() []session.PlayerIdentity {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	out := make([]session.PlayerIdentity, len(rm.users))
	copy(out, rm.users)
	return out
}

// Settings returns a copy of the current lobby settings.
func (rm *Room) Settings() Settings {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.settings.clone()
}

// LastActivity returns the time of the last mutating operation.
func (rm *Room) LastActivity() time.Time {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.lastActivity
}

// Info returns a snapshot for the monitoring API and CLI.
func (rm *Room) Info() Info {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	users := make([]string, len(rm.users))
	readyCount := 0
	for i, u := range rm.users {
		users[i] = u.String()
		if rm.ready[u.String()] {
			readyCount++
		}
	}

	return Info{
		ID:           rm.id,
		Name:         rm.name,
		GroupID:      rm.groupID,
		MaxUsers:     rm.maxUsers,
		UserCount:    len(rm.users),
		Owner:        rm.owner.String(),
		State:        rm.state,
		GameStarted:  rm.gameStarted,
		Passworded:   rm.password != "",
		GUID:         rm.guid,
		CreatedAt:    rm.createdAt,
		LastActivity: rm.lastActivity,
		Users:        users,
		ReadyCount:   readyCount,
	}
}

// touchLocked refreshes the activity timestamp. Caller holds rm.mu.
func (rm *Room) touchLocked() {
	rm.lastActivity = time.Now()
}

// memberIndexLocked returns the position of user in the member list, or -1.
// Caller holds rm.mu.
func (rm *Room) memberIndexLocked(user session.PlayerIdentity) int {
	key := user.String()
	for i, u := range rm.users {
		if u.String() == key {
			return i
		}
	}
	return -1
}

// canStartLocked reports whether the start conditions hold: waiting state,
// enough players, everyone ready. Caller holds rm.mu.
func (rm *Room) canStartLocked() bool {
	if rm.state != StateWaitingForPlayers {
		return false
	}
	if len(rm.users) < MinPlayersToStart {
		return false
	}
	for _, u := range rm.users {
		if !rm.ready[u.String()] {
			return false
		}
	}
	return true
}
