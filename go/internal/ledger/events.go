package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bhavyaTomar2711/Cosmic-chicken/go/internal/models"
)

// DecodeEnvelope parses a feed message. ok is false for event types the
// client does not consume.
func DecodeEnvelope(data []byte) (ev models.TerminalEvent, ok bool, err error) {
	var envelope models.EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ev, false, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if envelope.EventType != models.EventTypeSessionEnded {
		return ev, false, nil
	}
	if err := json.Unmarshal(envelope.Payload, &ev); err != nil {
		return ev, false, fmt.Errorf("unmarshal %s payload: %w", envelope.EventType, err)
	}
	return ev, true, nil
}

// NopEvents is an EventSource that never delivers. The session machine then
// relies on its timer-expiry path alone.
type NopEvents struct{}

func (NopEvents) SubscribeTerminalEvents(context.Context, func(models.TerminalEvent)) (Subscription, error) {
	return nopSubscription{}, nil
}

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() error { return nil }

// FanIn subscribes the same handler to several feeds. Failing feeds are
// skipped as long as at least one subscription succeeds.
type FanIn []EventSource

func (f FanIn) SubscribeTerminalEvents(ctx context.Context, handler func(models.TerminalEvent)) (Subscription, error) {
	var (
		subs multiSubscription
		errs []error
	)
	for _, src := range f {
		sub, err := src.SubscribeTerminalEvents(ctx, handler)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		subs = append(subs, sub)
	}
	if len(subs) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return subs, nil
}

type multiSubscription []Subscription

func (m multiSubscription) Unsubscribe() error {
	var errs []error
	for _, sub := range m {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
