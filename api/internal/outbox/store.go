package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"missionboard/api/internal/models"
)

// Store is the durable envelope table as seen by the processor, health
// check and admin service. *repos.OutboxRepo implements it.
type Store interface {
	ClaimDue(ctx context.Context, owner string, now time.Time, limit int, lease time.Duration) ([]models.OutboxEnvelope, error)
	MarkDispatched(ctx context.Context, envelopeID uuid.UUID) error
	MarkRetry(ctx context.Context, envelopeID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error
	MarkDeadLetter(ctx context.Context, envelopeID uuid.UUID, now time.Time, reason string) error
	Requeue(ctx context.Context, envelopeID uuid.UUID, now time.Time) (int64, error)
	RequeueWhere(ctx context.Context, filter models.DeadLetterFilter, now time.Time) (int64, error)
	ListDeadLetters(ctx context.Context, page int, pageSize int) (models.DeadLetterPage, error)
	CountDeadLetters(ctx context.Context) (int64, error)
	OldestPendingOccurredAt(ctx context.Context) (*time.Time, error)
}
