package session

import "errors"

var (
	// ErrInvalidState is returned when an intent is not allowed in the
	// current state. The remote service is never contacted in that case.
	ErrInvalidState = errors.New("intent not allowed in current state")

	// ErrClosed is returned by intents issued after Close.
	ErrClosed = errors.New("session machine closed")

	// ErrConfigUnavailable wraps failures to load the round constants.
	ErrConfigUnavailable = errors.New("game configuration unavailable")

	// ErrAwaitingEject marks a round that is over locally but not yet
	// finalized on the ledger. An explicit eject finalizes it.
	ErrAwaitingEject = errors.New("round ended, eject to finalize")

	// ErrNoParticipant is returned when the machine has no participant to act for.
	ErrNoParticipant = errors.New("no participant configured")
)
