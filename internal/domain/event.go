package domain

import "encoding/json"

// EventType discriminates the envelopes sent to viewers.
type EventType string

const (
	EventMessage          EventType = "message"
	EventConnectionClosed EventType = "connection_closed"
)

// Event is the envelope for everything the hub fans out to viewers.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// ConnectionClosed announces that a viewer went away.
type ConnectionClosed struct {
	Reason string
}

// Event converts the lifecycle notice into its wire envelope.
func (c ConnectionClosed) Event() Event {
	return Event{Type: EventConnectionClosed, Reason: c.Reason}
}
