package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is an immutable fact raised by an aggregate root when its state changes.
type Event interface {
	EventID() uuid.UUID
	EventName() string
	AggregateID() uuid.UUID
	OrgID() uuid.UUID
	OccurredAt() time.Time
}

// Versioned is implemented by events that carry an explicit schema version.
// Events without it default to schema version 1.
type Versioned interface {
	Event
	EventVersion() int
}

type EventBase struct {
	ID        uuid.UUID `json:"event_id"`
	Aggregate uuid.UUID `json:"aggregate_id"`
	Org       uuid.UUID `json:"org_id"`
	At        time.Time `json:"occurred_at"`
}

func newEventBase(orgID uuid.UUID, aggregateID uuid.UUID) EventBase {
	return EventBase{
		ID:        uuid.New(),
		Aggregate: aggregateID,
		Org:       orgID,
		At:        time.Now().UTC(),
	}
}

func (b EventBase) EventID() uuid.UUID     { return b.ID }
func (b EventBase) AggregateID() uuid.UUID { return b.Aggregate }
func (b EventBase) OrgID() uuid.UUID       { return b.Org }
func (b EventBase) OccurredAt() time.Time  { return b.At }
