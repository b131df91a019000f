package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bluefox-project/bluefox/internal/session"
)

// CreateParams carries the caller-supplied attributes of a new room.
type CreateParams struct {
	Name     string
	GroupID  string
	MaxUsers int
	Password string
	Settings Settings
}

// LeaveResult reports the side effects of a departure.
type LeaveResult struct {
	// NewOwner is set when ownership transferred to a remaining user.
	NewOwner *session.PlayerIdentity
	// Closed is true when the last user left and the room reached a
	// terminal state (abandoned, or completed for an in-progress game).
	Closed bool
}

// Registry is the thread-safe store of rooms keyed by id. Room ids are
// allocated sequentially from 1; id 0 means "no room" throughout the
// system.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[int32]*Room
	nextID int32
	limit  int
	logger zerolog.Logger
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[int32]*Room),
		nextID: 1,
		logger: log.With().Str("component", "room_registry").Logger(),
	}
}

// SetLimit caps how many rooms the registry will hold. Zero or negative
// means unlimited. The cap is enforced under the registry lock, so
// concurrent creates never overshoot it.
func (r *Registry) SetLimit(n int) {
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

// AtCapacity reports whether the registry has reached its room cap.
func (r *Registry) AtCapacity() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limit > 0 && len(r.rooms) >= r.limit
}

// CreateRoom allocates a room, seeds its settings with the room name,
// generates the P2P rendezvous token, and adds the owner as the first
// connected user. Returns nil when the registry is at its room cap.
func (r *Registry) CreateRoom(p CreateParams, owner session.PlayerIdentity) *Room {
	now := time.Now()

	settings := p.Settings.clone()
	settings.Name = p.Name
	if settings.TeamAssignments == nil {
		settings.TeamAssignments = make(map[string]int32)
	}
	if settings.Handicaps == nil {
		settings.Handicaps = make(map[string]int32)
	}

	rm := &Room{
		name:         p.Name,
		groupID:      p.GroupID,
		maxUsers:     p.MaxUsers,
		password:     p.Password,
		guid:         uuid.NewString(),
		owner:        owner,
		users:        []session.PlayerIdentity{owner},
		ready:        map[string]bool{},
		settings:     settings,
		state:        StateWaitingForPlayers,
		createdAt:    now,
		lastActivity: now,
	}
	if rm.maxUsers < 1 {
		rm.maxUsers = 1
	}

	r.mu.Lock()
	if r.limit > 0 && len(r.rooms) >= r.limit {
		r.mu.Unlock()
		return nil
	}
	rm.id = r.nextID
	r.nextID++
	r.rooms[rm.id] = rm
	r.mu.Unlock()

	r.logger.Info().
		Int32("room", rm.id).
		Str("name", rm.name).
		Str("group", rm.groupID).
		Str("owner", owner.String()).
		Msg("room created")

	return rm
}

// GetRoom returns the room for an id, or nil if unknown.
func (r *Registry) GetRoom(id int32) *Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[id]
}

// RoomsInGroup returns all rooms in a logical namespace.
func (r *Registry) RoomsInGroup(groupID string) []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Room, 0)
	for _, rm := range r.rooms {
		if rm.groupID == groupID {
			out = append(out, rm)
		}
	}
	return out
}

// Snapshot returns all rooms.
func (r *Registry) Snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm)
	}
	return out
}

// Count returns the number of rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// JoinRoom adds user to the room. Fails when the room is not waiting for
// players, the password does not match, the room is full, or the user is
// already present. An empty stored password means unprotected.
func (r *Registry) JoinRoom(id int32, user session.PlayerIdentity, password string) error {
	rm := r.GetRoom(id)
	if rm == nil {
		return ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != StateWaitingForPlayers {
		return ErrWrongState
	}
	if rm.password != "" && rm.password != password {
		return ErrBadPassword
	}
	if len(rm.users) >= rm.maxUsers {
		return ErrRoomFull
	}
	if rm.memberIndexLocked(user) >= 0 {
		return ErrAlreadyJoined
	}

	rm.users = append(rm.users, user)
	rm.touchLocked()
	return nil
}

// LeaveRoom removes user from the room. When the departing user owned the
// room and others remain, ownership transfers to the earliest-joined
// remaining user. When nobody remains the room reaches a terminal state
// and awaits the sweeper.
func (r *Registry) LeaveRoom(id int32, user session.PlayerIdentity) (LeaveResult, error) {
	rm := r.GetRoom(id)
	if rm == nil {
		return LeaveResult{}, ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	idx := rm.memberIndexLocked(user)
	if idx < 0 {
		return LeaveResult{}, ErrNotMember
	}

	wasOwner := rm.owner.String() == user.String()
	rm.users = append(rm.users[:idx], rm.users[idx+1:]...)
	delete(rm.ready, user.String())
	rm.touchLocked()

	var result LeaveResult
	if len(rm.users) == 0 {
		if rm.state == StateGameInProgress {
			rm.state = StateGameCompleted
		} else if rm.state == StateWaitingForPlayers {
			rm.state = StateAbandoned
		}
		result.Closed = true
		r.logger.Info().Int32("room", rm.id).Str("state", rm.state.String()).Msg("room vacated")
		return result, nil
	}

	if wasOwner {
		rm.owner = rm.users[0]
		newOwner := rm.owner
		result.NewOwner = &newOwner
		r.logger.Info().
			Int32("room", rm.id).
			Str("owner", newOwner.String()).
			Msg("room ownership transferred")
	}
	return result, nil
}

// SetReady records a user's readiness flag.
func (r *Registry) SetReady(id int32, user session.PlayerIdentity, isReady bool) error {
	rm := r.GetRoom(id)
	if rm == nil {
		return ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != StateWaitingForPlayers {
		return ErrWrongState
	}
	if rm.memberIndexLocked(user) < 0 {
		return ErrNotMember
	}

	rm.ready[user.String()] = isReady
	rm.touchLocked()
	return nil
}

// UpdateSettings replaces the room settings and capacity. Only the current
// owner may update, and only while the room is waiting for players.
// Shrinking capacity below occupancy evicts the most-recently-joined
// excess users; the evicted identities are returned so the caller can
// unbind their sessions.
func (r *Registry) UpdateSettings(id int32, settings Settings, maxUsers int, requester session.PlayerIdentity) ([]session.PlayerIdentity, error) {
	rm := r.GetRoom(id)
	if rm == nil {
		return nil, ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.state != StateWaitingForPlayers {
		return nil, ErrWrongState
	}
	if rm.owner.String() != requester.String() {
		return nil, ErrNotOwner
	}

	settings = settings.clone()
	settings.Name = rm.name
	rm.settings = settings

	var evicted []session.PlayerIdentity
	if maxUsers >= 1 {
		rm.maxUsers = maxUsers
		for len(rm.users) > rm.maxUsers {
			// Most-recently-joined users go first. The owner sits at
			// the front of the join order after any transfer, so the
			// requester is never evicted by their own update.
			last := rm.users[len(rm.users)-1]
			rm.users = rm.users[:len(rm.users)-1]
			delete(rm.ready, last.String())
			evicted = append(evicted, last)
		}
	}

	rm.touchLocked()
	return evicted, nil
}

// StartGame transitions the room to in-progress. Only the owner may start,
// and only when the start conditions hold: waiting state, at least
// MinPlayersToStart connected users, and every user ready.
func (r *Registry) StartGame(id int32, requester session.PlayerIdentity) error {
	rm := r.GetRoom(id)
	if rm == nil {
		return ErrRoomNotFound
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.owner.String() != requester.String() {
		return ErrNotOwner
	}
	if !rm.canStartLocked() {
		return ErrCannotStart
	}

	rm.state = StateGameInProgress
	rm.gameStarted = true
	rm.touchLocked()

	r.logger.Info().
		Int32("room", rm.id).
		Int("players", len(rm.users)).
		Msg("game started")
	return nil
}

// RemoveRoom deletes the room outright.
func (r *Registry) RemoveRoom(id int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		return false
	}
	delete(r.rooms, id)
	r.logger.Debug().Int32("room", id).Msg("room removed")
	return true
}

// SweepAbandoned removes rooms in a terminal state, empty rooms, and rooms
// idle for strictly longer than idleTimeout, returning the removed ids so
// the caller can detach any sessions still bound to them. Candidates are
// snapshotted first so iteration never mutates the map concurrently with
// other operations on the same entries.
func (r *Registry) SweepAbandoned(idleTimeout time.Duration) []int32 {
	now := time.Now()

	r.mu.RLock()
	candidates := make([]int32, 0, len(r.rooms))
	for id := range r.rooms {
		candidates = append(candidates, id)
	}
	r.mu.RUnlock()

	var removed []int32
	for _, id := range candidates {
		rm := r.GetRoom(id)
		if rm == nil {
			continue
		}

		rm.mu.Lock()
		terminal := rm.state == StateAbandoned || rm.state == StateGameCompleted
		empty := len(rm.users) == 0
		idle := now.Sub(rm.lastActivity)
		rm.mu.Unlock()

		if terminal || empty || idle > idleTimeout {
			if r.RemoveRoom(id) {
				removed = append(removed, id)
				r.logger.Info().
					Int32("room", id).
					Bool("terminal", terminal).
					Dur("idle", idle).
					Msg("swept room")
			}
		}
	}
	return removed
}
