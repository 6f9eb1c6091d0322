package models

import (
	"encoding/json"
	"math/big"
	"time"
)

// EventTypeSessionEnded is the only ledger event the client consumes.
const EventTypeSessionEnded = "SessionEnded"

// TerminalEvent is the broadcast notification that a round has ended.
type TerminalEvent struct {
	SessionID         SessionID   `json:"session_id"`
	Participant       Participant `json:"participant"`
	Won               bool        `json:"won"`
	Payout            *big.Int    `json:"payout"`
	FinalMultiplierBp uint64      `json:"final_multiplier_bp"`
}

// Result extracts the outcome carried by the event.
func (e TerminalEvent) Result() Result {
	return Result{
		Won:               e.Won,
		Payout:            e.Payout,
		FinalMultiplierBp: e.FinalMultiplierBp,
	}
}

// EventEnvelope wraps ledger events on the NATS and websocket feeds.
type EventEnvelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
