// Package ledger is the typed port between the session core and the remote
// ledger service. It holds no business logic.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
)

// ErrNotEnded is returned by SessionResult while the round is still open on
// the ledger. It is expected shortly after the local timer expires.
var ErrNotEnded = errors.New("session has not ended yet")

// Reader defines the side-effect-free queries.
type Reader interface {
	ActiveSession(ctx context.Context, participant models.Participant) (models.SessionID, error)
	SessionInfo(ctx context.Context, id models.SessionID) (models.SessionInfo, error)
	Config(ctx context.Context) (models.GameConfig, error)
	SessionResult(ctx context.Context, id models.SessionID) (models.Result, error)
}

// ActionHandle tracks a submitted action until the ledger confirms it.
// Confirmation has no guaranteed bound; callers apply their own timeout.
type ActionHandle interface {
	ID() string
	Wait(ctx context.Context) error
}

// Actor submits state-changing actions on behalf of the configured participant.
type Actor interface {
	SubmitStart(ctx context.Context, entryFee *big.Int) (ActionHandle, error)
	SubmitEject(ctx context.Context) (ActionHandle, error)
}

// Subscription is an active terminal-event feed.
type Subscription interface {
	Unsubscribe() error
}

// EventSource delivers terminal events. The transport may drop or redeliver;
// de-duplication is the subscriber's job.
type EventSource interface {
	SubscribeTerminalEvents(ctx context.Context, handler func(models.TerminalEvent)) (Subscription, error)
}

// ReadWriter is a remote service client without an event feed.
type ReadWriter interface {
	Reader
	Actor
}

// Gateway is the full port consumed by the session machine.
type Gateway interface {
	Reader
	Actor
	EventSource
}

type gateway struct {
	ReadWriter
	EventSource
}

// New joins a request/response client and an event feed into a Gateway.
// A nil events source falls back to NopEvents.
func New(rw ReadWriter, events EventSource) Gateway {
	if events == nil {
		events = NopEvents{}
	}
	return gateway{ReadWriter: rw, EventSource: events}
}
