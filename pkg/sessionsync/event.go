package sessionsync

import "time"

// DefaultChannelName is the channel shared by all clients of a profile.
const DefaultChannelName = "auth-session-sync"

// EventType is the whole vocabulary of the channel.
type EventType string

const (
	SessionUpdated EventType = "SESSION_UPDATED"
	SessionCleared EventType = "SESSION_CLEARED"
	UserLogout     EventType = "USER_LOGOUT"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case SessionUpdated, SessionCleared, UserLogout:
		return true
	}
	return false
}

// Event is what travels on the channel. Timestamp is in Unix milliseconds.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Envelope tags an event with the channel instance that sent it.
type Envelope struct {
	Event  Event  `json:"event"`
	Origin string `json:"origin"`
}
