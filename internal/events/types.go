// Package events defines event types and enumerations for the Bluefox event system.
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle events
	EventSessionCreated      EventType = "session_created"
	EventSessionLoggedIn     EventType = "session_logged_in"
	EventSessionDisconnected EventType = "session_disconnected"
	EventSessionsSwept       EventType = "sessions_swept"

	// Room lifecycle events
	EventRoomCreated     EventType = "room_created"
	EventRoomUserJoined  EventType = "room_user_joined"
	EventRoomUserLeft    EventType = "room_user_left"
	EventRoomOwnerChange EventType = "room_owner_changed"
	EventRoomSettings    EventType = "room_settings_updated"
	EventRoomGameStarted EventType = "room_game_started"
	EventRoomClosed      EventType = "room_closed"
	EventRoomsSwept      EventType = "rooms_swept"

	// Moderation events
	EventLoginRejected EventType = "login_rejected"
	EventBanAdded      EventType = "ban_added"
	EventBanRemoved    EventType = "ban_removed"
	EventSessionKicked EventType = "session_kicked"

	// Notification events
	EventNotifyMQTT EventType = "notify_mqtt"
	EventAlert      EventType = "alert"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// SessionPayload identifies the session an event concerns.
type SessionPayload struct {
	SessionID string
	ClientIP  string
	Player    string
}

// RoomPayload identifies the room an event concerns.
type RoomPayload struct {
	RoomID    int32
	Name      string
	GroupID   string
	UserCount int
	Owner     string
}

// SweepPayload reports the result of one sweeper pass.
type SweepPayload struct {
	Removed int
}

// ModerationPayload carries ban/kick details.
type ModerationPayload struct {
	Target string
	Reason string
	Actor  string
}

// AlertPayload is recorded in the operator alert log.
type AlertPayload struct {
	Level   string // "info", "warning", "error"
	Title   string
	Message string
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
