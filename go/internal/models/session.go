package models

import (
	"math/big"
	"strconv"
	"strings"
	"time"
)

// SessionID is the ledger-issued handle of a round. Zero means "no session".
type SessionID uint64

// NoSession is the sentinel returned when a participant has no active round.
const NoSession SessionID = 0

// IsZero reports whether the id is the "no session" sentinel.
func (id SessionID) IsZero() bool { return id == NoSession }

func (id SessionID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Participant is the ledger identity (hex address) of a player.
type Participant string

// Equal compares two addresses case-insensitively.
func (p Participant) Equal(other Participant) bool {
	return p != "" && strings.EqualFold(string(p), string(other))
}

func (p Participant) String() string { return string(p) }

// SessionState defines the lifecycle state of the locally tracked session.
type SessionState string

const (
	SessionStateIdle                 SessionState = "IDLE"
	SessionStateStarting             SessionState = "STARTING"
	SessionStateActive               SessionState = "ACTIVE"
	SessionStateAwaitingFinalization SessionState = "AWAITING_FINALIZATION"
	SessionStateResolving            SessionState = "RESOLVING"
	SessionStateResolved             SessionState = "RESOLVED"
	SessionStateFailed               SessionState = "FAILED"
)

// GameConfig holds the global round constants published by the ledger.
// They are fetched once per process and never mutated locally.
type GameConfig struct {
	DurationSeconds uint64   `json:"duration_seconds"`
	EntryFee        *big.Int `json:"entry_fee"`
	MaxMultiplierBp uint64   `json:"max_multiplier_bp"`
}

// Duration returns the round length.
func (c GameConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// SessionInfo is the per-round data stored by the ledger.
type SessionInfo struct {
	ID          SessionID   `json:"id"`
	Participant Participant `json:"participant"`
	StartTime   time.Time   `json:"start_time"`
}

// Result is the authoritative outcome of a finished round.
type Result struct {
	Won               bool     `json:"won"`
	Payout            *big.Int `json:"payout"`
	FinalMultiplierBp uint64   `json:"final_multiplier_bp"`
}

// Session is the unit of play tracked by the client.
type Session struct {
	ID              SessionID    `json:"id"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	DurationSeconds uint64       `json:"duration_seconds"`
	EntryFee        *big.Int     `json:"entry_fee,omitempty"`
	MaxMultiplierBp uint64       `json:"max_multiplier_bp"`
	State           SessionState `json:"state"`
	Result          *Result      `json:"result,omitempty"`
}
