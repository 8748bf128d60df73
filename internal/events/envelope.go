package events

import (
	"time"

	"github.com/go-faster/errors"
)

// ErrUnexpectedEvent marks a message that is not the event a handler consumes.
var ErrUnexpectedEvent = errors.New("unexpected event")

// EventEnvelope carries one order event on the wire. PartitionKey is the order
// id and Sequence counts that order's events from 1.
type EventEnvelope[T any] struct {
	EventName     string    `json:"eventName"`
	EventVersion  int       `json:"eventVersion"`
	EventID       string    `json:"eventId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CausationID   string    `json:"causationId,omitempty"`
	Producer      string    `json:"producer"`
	PartitionKey  string    `json:"partitionKey"`
	Sequence      *int64    `json:"sequence,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
	Schema        string    `json:"schema"`
	Payload       T         `json:"payload"`
}

// Trace ties an event back to the checkout request that produced it.
type Trace struct {
	CorrelationID string
	CausationID   string
}

// Seq returns the order sequence, or 0 when the producer did not number the event.
func (e EventEnvelope[T]) Seq() int64 {
	if e.Sequence == nil {
		return 0
	}
	return *e.Sequence
}

func (e EventEnvelope[T]) expect(name string, version int) error {
	if e.EventName != name || e.EventVersion != version {
		return errors.Wrapf(ErrUnexpectedEvent, "got %s v%d, want %s v%d", e.EventName, e.EventVersion, name, version)
	}
	if e.PartitionKey == "" {
		return errors.Wrapf(ErrUnexpectedEvent, "%s has no order partition", name)
	}
	return nil
}
