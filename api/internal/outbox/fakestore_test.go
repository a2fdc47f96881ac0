package outbox

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"missionboard/api/internal/models"
)

// fakeStore is an in-memory Store with the same lifecycle semantics as the
// Postgres repo.
type fakeStore struct {
	envelopes map[uuid.UUID]*models.OutboxEnvelope
	claimErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{envelopes: make(map[uuid.UUID]*models.OutboxEnvelope)}
}

func (s *fakeStore) add(envelope models.OutboxEnvelope) uuid.UUID {
	if envelope.EnvelopeID == uuid.Nil {
		envelope.EnvelopeID = uuid.New()
	}
	if envelope.Status == "" {
		envelope.Status = "pending"
	}
	s.envelopes[envelope.EnvelopeID] = &envelope
	return envelope.EnvelopeID
}

func (s *fakeStore) ClaimDue(_ context.Context, owner string, now time.Time, limit int, lease time.Duration) ([]models.OutboxEnvelope, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if lease <= 0 {
		lease = time.Minute
	}
	prior := make(map[uuid.UUID]models.OutboxEnvelope)
	var due []models.OutboxEnvelope
	for _, e := range s.envelopes {
		pendingDue := e.Status == "pending" && e.NextAttemptAt != nil && !e.NextAttemptAt.After(now)
		leaseExpired := e.Status == "dispatching" && !e.UpdatedAt.After(now.Add(-lease))
		if pendingDue || leaseExpired {
			prior[e.EnvelopeID] = *e
			e.Status = "dispatching"
			e.LockedBy = owner
			e.UpdatedAt = now
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].OccurredAt.Before(due[j].OccurredAt) })
	if len(due) > limit {
		for _, e := range due[limit:] {
			restored := prior[e.EnvelopeID]
			s.envelopes[e.EnvelopeID] = &restored
		}
		due = due[:limit]
	}
	return due, nil
}

func (s *fakeStore) MarkDispatched(_ context.Context, envelopeID uuid.UUID) error {
	delete(s.envelopes, envelopeID)
	return nil
}

func (s *fakeStore) MarkRetry(_ context.Context, envelopeID uuid.UUID, attempts int, nextAttemptAt time.Time, lastErr string) error {
	e := s.envelopes[envelopeID]
	e.Status = "pending"
	e.Attempts = attempts
	e.NextAttemptAt = &nextAttemptAt
	e.LastError = lastErr
	e.LockedBy = ""
	return nil
}

func (s *fakeStore) MarkDeadLetter(_ context.Context, envelopeID uuid.UUID, now time.Time, reason string) error {
	e := s.envelopes[envelopeID]
	e.Status = "dead"
	e.DeadLetteredAt = &now
	e.NextAttemptAt = nil
	e.LastError = reason
	e.LockedBy = ""
	return nil
}

func (s *fakeStore) Requeue(_ context.Context, envelopeID uuid.UUID, now time.Time) (int64, error) {
	e, ok := s.envelopes[envelopeID]
	if !ok || e.Status != "dead" {
		return 0, nil
	}
	e.Status = "pending"
	e.NextAttemptAt = &now
	e.DeadLetteredAt = nil
	e.Attempts = 0
	e.LastError = ""
	return 1, nil
}

func (s *fakeStore) RequeueWhere(ctx context.Context, filter models.DeadLetterFilter, now time.Time) (int64, error) {
	var count int64
	for id, e := range s.envelopes {
		if e.Status != "dead" {
			continue
		}
		if filter.EventTypePrefix != "" && !strings.HasPrefix(e.EventType, filter.EventTypePrefix) {
			continue
		}
		if filter.DeadLetteredBefore != nil && e.DeadLetteredAt != nil && !e.DeadLetteredAt.Before(*filter.DeadLetteredBefore) {
			continue
		}
		n, _ := s.Requeue(ctx, id, now)
		count += n
	}
	return count, nil
}

func (s *fakeStore) ListDeadLetters(_ context.Context, page int, pageSize int) (models.DeadLetterPage, error) {
	var dead []models.OutboxEnvelope
	for _, e := range s.envelopes {
		if e.Status == "dead" {
			dead = append(dead, *e)
		}
	}
	sort.Slice(dead, func(i, j int) bool { return dead[i].DeadLetteredAt.After(*dead[j].DeadLetteredAt) })
	result := models.DeadLetterPage{Page: page, PageSize: pageSize, Total: int64(len(dead))}
	start := (page - 1) * pageSize
	if start < len(dead) {
		end := start + pageSize
		if end > len(dead) {
			end = len(dead)
		}
		result.Items = dead[start:end]
	}
	return result, nil
}

func (s *fakeStore) CountDeadLetters(context.Context) (int64, error) {
	var count int64
	for _, e := range s.envelopes {
		if e.Status == "dead" {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) OldestPendingOccurredAt(context.Context) (*time.Time, error) {
	var oldest *time.Time
	for _, e := range s.envelopes {
		if e.Status != "pending" {
			continue
		}
		at := e.OccurredAt
		if oldest == nil || at.Before(*oldest) {
			oldest = &at
		}
	}
	return oldest, nil
}
