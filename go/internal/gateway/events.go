package gateway

import (
	"encoding/json"
	"time"
)

// SessionEvent is the envelope pushed to websocket clients.
type SessionEvent struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of pushed event
type EventType string

const (
	EventTypeSnapshot    EventType = "SessionSnapshot"
	EventTypeFeedbackCue EventType = "FeedbackCue"
)
