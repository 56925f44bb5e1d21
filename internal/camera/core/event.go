package core

import "time"

// EventType names an engine event published to monitors.
type EventType string

const (
	EventButtonPressed  EventType = "button.pressed"
	EventButtonReleased EventType = "button.released"
	EventSessionState   EventType = "session.state"
	EventSessionFrame   EventType = "session.frame"
)

// Event is a JSON friendly notification about the engine.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Time      time.Time         `json:"time"`
	Data      map[string]string `json:"data,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, sessionID string, data map[string]string) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Time:      time.Now(),
		Data:      data,
	}
}

// DecodedFrame is the last image produced by the decoder for a session.
type DecodedFrame struct {
	Image []byte
	Seq   uint64
	At    time.Time
}
