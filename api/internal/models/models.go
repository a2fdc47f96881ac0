package models

import (
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	OrganizationID uuid.UUID
	Slug           string
	Name           string
	CreatedAt      time.Time
}

type Mission struct {
	MissionID   uuid.UUID
	OrgID       uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Status      string
	Metrics     []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutboxEnvelope is the durable unit of event delivery, written in the same
// transaction as the aggregate state it describes.
type OutboxEnvelope struct {
	EnvelopeID     uuid.UUID
	OrgID          uuid.UUID
	EventType      string
	Payload        []byte
	OccurredAt     time.Time
	NextAttemptAt  *time.Time
	DeadLetteredAt *time.Time
	Attempts       int
	Status         string
	LockedBy       string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Notification struct {
	NotificationID uuid.UUID
	OrgID          uuid.UUID
	EventID        uuid.UUID
	Kind           string
	Title          string
	Body           string
	CreatedAt      time.Time
}

type DeadLetterPage struct {
	Items    []OutboxEnvelope
	Page     int
	PageSize int
	Total    int64
}

// DeadLetterFilter selects dead letters for bulk requeue. Zero-value fields
// are ignored; a zero filter matches everything.
type DeadLetterFilter struct {
	EventTypePrefix    string
	DeadLetteredBefore *time.Time
}
