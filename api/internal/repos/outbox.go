package repos

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/models"
)

const (
	OutboxStatusPending     = "pending"
	OutboxStatusDispatching = "dispatching"
	OutboxStatusDead        = "dead"
)

const envelopeColumns = `envelope_id, org_id, event_type, payload, occurred_at, next_attempt_at, dead_lettered_at, attempts, status, locked_by, last_error, created_at, updated_at`

// ErrNotInTransaction guards the atomicity contract: envelopes are only ever
// appended inside the transaction that writes the aggregate state.
var ErrNotInTransaction = errors.New("outbox insert requires an open transaction")

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutboxRepo(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Insert appends a pending envelope. db must be the caller's open
// transaction, never the pool.
func (r *OutboxRepo) Insert(ctx context.Context, db DBTX, envelope models.OutboxEnvelope) (models.OutboxEnvelope, error) {
	if _, ok := db.(pgx.Tx); !ok {
		return models.OutboxEnvelope{}, ErrNotInTransaction
	}
	if envelope.EnvelopeID == uuid.Nil {
		envelope.EnvelopeID = uuid.New()
	}
	if envelope.Status == "" {
		envelope.Status = OutboxStatusPending
	}
	now := time.Now().UTC()
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = now
	}
	if envelope.NextAttemptAt == nil {
		at := envelope.OccurredAt
		envelope.NextAttemptAt = &at
	}
	if envelope.CreatedAt.IsZero() {
		envelope.CreatedAt = now
	}
	envelope.UpdatedAt = envelope.CreatedAt

	row := db.QueryRow(ctx, `
		INSERT INTO outbox_envelopes (`+envelopeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+envelopeColumns+`
	`, envelope.EnvelopeID, envelope.OrgID, envelope.EventType, envelope.Payload, envelope.OccurredAt,
		envelope.NextAttemptAt, envelope.DeadLetteredAt, envelope.Attempts, envelope.Status,
		envelope.LockedBy, envelope.LastError, envelope.CreatedAt, envelope.UpdatedAt)
	return scanEnvelope(row)
}

// AppendPending serializes an aggregate's pending events into envelopes
// within tx. The caller clears the aggregate's pending list after commit.
func (r *OutboxRepo) AppendPending(ctx context.Context, tx pgx.Tx, ser *domain.Serializer, agg domain.AggregateRoot) error {
	for _, event := range agg.PendingEvents() {
		eventType, payload, err := ser.Serialize(event)
		if err != nil {
			return err
		}
		if _, err := r.Insert(ctx, tx, models.OutboxEnvelope{
			OrgID:      event.OrgID(),
			EventType:  eventType,
			Payload:    payload,
			OccurredAt: event.OccurredAt(),
		}); err != nil {
			return err
		}
	}
	return nil
}

// ClaimDue atomically claims up to limit due pending envelopes, oldest
// occurred_at first. FOR UPDATE SKIP LOCKED keeps concurrent claimants from
// double-processing; losers just see fewer rows. A dispatching row whose
// claim is older than lease belonged to a worker that died mid-batch and is
// claimable again, which keeps delivery at-least-once across crashes.
func (r *OutboxRepo) ClaimDue(ctx context.Context, owner string, now time.Time, limit int, lease time.Duration) ([]models.OutboxEnvelope, error) {
	if limit <= 0 {
		limit = 50
	}
	if lease <= 0 {
		lease = time.Minute
	}
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT envelope_id
			FROM outbox_envelopes
			WHERE (status = $1 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2)
			   OR (status = $4 AND updated_at <= $6)
			ORDER BY occurred_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		UPDATE outbox_envelopes o
		SET status = $4, locked_by = $5, updated_at = $2
		FROM due
		WHERE o.envelope_id = due.envelope_id
		RETURNING o.envelope_id, o.org_id, o.event_type, o.payload, o.occurred_at, o.next_attempt_at,
			o.dead_lettered_at, o.attempts, o.status, o.locked_by, o.last_error, o.created_at, o.updated_at
	`, OutboxStatusPending, now, limit, OutboxStatusDispatching, owner, now.Add(-lease))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	envelopes := make([]models.OutboxEnvelope, 0, limit)
	for rows.Next() {
		envelope, err := scanEnvelope(rows)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The UPDATE ... FROM join does not preserve CTE order.
	sort.Slice(envelopes, func(i, j int) bool {
		return envelopes[i].OccurredAt.Before(envelopes[j].OccurredAt)
	})
	return envelopes, nil
}

// MarkDispatched finalizes a delivered envelope by deleting it.
func (r *OutboxRepo) MarkDispatched(ctx context.Context, envelopeID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM outbox_envelopes WHERE envelope_id = $1
	`, envelopeID)
	return err
}

func (r *OutboxRepo) MarkRetry(ctx context.Context, envelopeID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_envelopes
		SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5, locked_by = '', updated_at = now()
		WHERE envelope_id = $1
	`, envelopeID, OutboxStatusPending, attempts, nextAttemptAt, lastErr)
	return err
}

func (r *OutboxRepo) MarkDeadLetter(ctx context.Context, envelopeID uuid.UUID, now time.Time, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_envelopes
		SET status = $2, dead_lettered_at = $3, next_attempt_at = NULL, last_error = $4, locked_by = '', updated_at = $3
		WHERE envelope_id = $1
	`, envelopeID, OutboxStatusDead, now, reason)
	return err
}

// Requeue moves one dead letter back to pending with a fresh attempt budget.
func (r *OutboxRepo) Requeue(ctx context.Context, envelopeID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_envelopes
		SET status = $2, next_attempt_at = $3, dead_lettered_at = NULL, attempts = 0, last_error = '', updated_at = $3
		WHERE envelope_id = $1 AND status = $4
	`, envelopeID, OutboxStatusPending, now, OutboxStatusDead)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepo) RequeueWhere(ctx context.Context, filter models.DeadLetterFilter, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox_envelopes
		SET status = $1, next_attempt_at = $2, dead_lettered_at = NULL, attempts = 0, last_error = '', updated_at = $2
		WHERE status = $3
		  AND ($4 = '' OR left(event_type, length($4)) = $4)
		  AND ($5::timestamptz IS NULL OR dead_lettered_at < $5)
	`, OutboxStatusPending, now, OutboxStatusDead, filter.EventTypePrefix, filter.DeadLetteredBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListDeadLetters pages dead letters, most recently dead-lettered first,
// envelope_id as a stable tiebreak.
func (r *OutboxRepo) ListDeadLetters(ctx context.Context, page int, pageSize int) (models.DeadLetterPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	result := models.DeadLetterPage{Page: page, PageSize: pageSize}

	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM outbox_envelopes WHERE status = $1
	`, OutboxStatusDead).Scan(&result.Total); err != nil {
		return models.DeadLetterPage{}, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+envelopeColumns+`
		FROM outbox_envelopes
		WHERE status = $1
		ORDER BY dead_lettered_at DESC, envelope_id
		LIMIT $2 OFFSET $3
	`, OutboxStatusDead, pageSize, (page-1)*pageSize)
	if err != nil {
		return models.DeadLetterPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		envelope, err := scanEnvelope(rows)
		if err != nil {
			return models.DeadLetterPage{}, err
		}
		result.Items = append(result.Items, envelope)
	}
	return result, rows.Err()
}

func (r *OutboxRepo) CountDeadLetters(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM outbox_envelopes WHERE status = $1
	`, OutboxStatusDead).Scan(&count)
	return count, err
}

func (r *OutboxRepo) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM outbox_envelopes WHERE status = $1
	`, OutboxStatusPending).Scan(&count)
	return count, err
}

// OldestPendingOccurredAt returns nil when nothing is pending.
func (r *OutboxRepo) OldestPendingOccurredAt(ctx context.Context) (*time.Time, error) {
	var oldest *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT min(occurred_at) FROM outbox_envelopes WHERE status = $1
	`, OutboxStatusPending).Scan(&oldest)
	return oldest, err
}

func scanEnvelope(row pgx.Row) (models.OutboxEnvelope, error) {
	var e models.OutboxEnvelope
	err := row.Scan(
		&e.EnvelopeID, &e.OrgID, &e.EventType, &e.Payload, &e.OccurredAt,
		&e.NextAttemptAt, &e.DeadLetteredAt, &e.Attempts, &e.Status,
		&e.LockedBy, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

