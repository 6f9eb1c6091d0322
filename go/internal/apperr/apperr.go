// Package apperr classifies failures surfaced by the session core.
package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
)

// Kind categorizes an error by how the caller should react to it.
type Kind string

const (
	// KindTransient is retried only inside an explicit budget.
	KindTransient Kind = "TRANSIENT"
	// KindTimeout means a bounded wait was exceeded.
	KindTimeout Kind = "TIMEOUT"
	// KindRejected means the ledger refused the action or the intent was
	// not valid in the current state.
	KindRejected Kind = "REJECTED"
	// KindFatal is anything unexpected. It always halts automatic progress.
	KindFatal Kind = "FATAL"
)

// Error carries the kind plus enough context to decide on a manual retry.
type Error struct {
	Kind      Kind
	Op        string
	SessionID models.SessionID
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " " + e.Op
	if !e.SessionID.IsZero() {
		msg += fmt.Sprintf(" (session %s)", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind, operation and session id.
func New(kind Kind, op string, id models.SessionID, err error) *Error {
	return &Error{Kind: kind, Op: op, SessionID: id, Err: err}
}

func Transient(op string, id models.SessionID, err error) *Error {
	return New(KindTransient, op, id, err)
}

func Timeout(op string, id models.SessionID, err error) *Error {
	return New(KindTimeout, op, id, err)
}

func Rejected(op string, id models.SessionID, err error) *Error {
	return New(KindRejected, op, id, err)
}

func Fatal(op string, id models.SessionID, err error) *Error {
	return New(KindFatal, op, id, err)
}

// KindOf returns the kind of the outermost classified error in the chain.
// Deadline errors count as timeouts; anything unclassified is fatal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindFatal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a new intent may succeed without operator help.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout, KindRejected:
		return true
	default:
		return false
	}
}
