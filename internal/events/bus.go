// Package events records domain events in the outbox table and fans them out
// to in-process notifiers after the owning transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/store"
)

var (
	ErrUnknownTopic  = errors.New("events: unknown topic")
	ErrNoAggregate   = errors.New("events: aggregate id is required")
	ErrInvalidJSON   = errors.New("events: payload is not valid json")
	errNoEventsStore = errors.New("events: store not configured")
)

// EventStore persists one outbox row.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, arg store.InsertDomainEventParams) (store.DomainEvent, error)
}

// Notifier receives every recorded event.
type Notifier interface {
	Notify(ctx context.Context, event store.DomainEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event store.DomainEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event store.DomainEvent) error {
	return f(ctx, event)
}

// Bus records events and fans them out. Emit runs after commit, so a notifier
// failure is reported to the caller but never undoes the state change.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
}

// Emit stores payload under topic for aggregateID, then calls every notifier.
// The stored event is returned even when notifiers fail; their errors are
// joined.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID pgtype.UUID, payload any) (store.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return store.DomainEvent{}, errNoEventsStore
	}
	if !KnownTopic(topic) {
		return store.DomainEvent{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if !aggregateID.Valid {
		return store.DomainEvent{}, ErrNoAggregate
	}
	body, err := marshalPayload(payload)
	if err != nil {
		return store.DomainEvent{}, err
	}

	ev, err := b.Store.InsertDomainEvent(ctx, store.InsertDomainEventParams{
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     body,
	})
	if err != nil {
		return store.DomainEvent{}, fmt.Errorf("events: record %s: %w", topic, err)
	}

	var errs []error
	for _, n := range b.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("events: notify %s: %w", topic, err))
		}
	}
	return ev, errors.Join(errs...)
}

// marshalPayload accepts pre-encoded JSON as []byte, json.RawMessage or
// string, and marshals anything else. Empty input becomes {}.
func marshalPayload(payload any) ([]byte, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("events: encode payload: %w", err)
		}
		return body, nil
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, ErrInvalidJSON
	}
	return append([]byte(nil), raw...), nil
}
