package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/models"
	"missionboard/shared/logx"
)

func testProcessor(store Store, dispatcher *Dispatcher, maxAttempts int) *Processor {
	return NewProcessor(store, domain.NewSerializer(domain.DefaultRegistry()), dispatcher, logx.New("test", "test", "", "error"), ProcessorConfig{
		Owner:       "test-worker",
		BatchSize:   10,
		MaxAttempts: maxAttempts,
		ClaimLease:  time.Minute,
		Backoff:     Backoff{Base: time.Second, Cap: time.Minute},
	})
}

func pendingEnvelope(t *testing.T, occurredAt time.Time) models.OutboxEnvelope {
	t.Helper()
	m, err := domain.NewMission(uuid.New(), uuid.New(), "proc")
	if err != nil {
		t.Fatalf("new mission: %v", err)
	}
	ser := domain.NewSerializer(domain.DefaultRegistry())
	eventType, payload, err := ser.Serialize(m.PendingEvents()[0])
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	next := occurredAt
	return models.OutboxEnvelope{
		OrgID:         m.OrgID,
		EventType:     eventType,
		Payload:       payload,
		OccurredAt:    occurredAt,
		NextAttemptAt: &next,
	}
}

func TestProcessBatchDispatchesAndFinalizes(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	id := store.add(pendingEnvelope(t, now.Add(-time.Minute)))

	dispatcher := NewDispatcher()
	var seen int
	dispatcher.Subscribe(domain.EventMissionCreated, func(context.Context, domain.Event) error {
		seen++
		return nil
	})

	stats, err := testProcessor(store, dispatcher, 5).ProcessBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Claimed != 1 || stats.Dispatched != 1 || seen != 1 {
		t.Fatalf("unexpected stats %+v (seen=%d)", stats, seen)
	}
	if _, ok := store.envelopes[id]; ok {
		t.Fatalf("dispatched envelope must be removed")
	}
}

func TestProcessBatchOrderIsOldestFirst(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	e1 := store.add(pendingEnvelope(t, now.Add(-3*time.Minute)))
	e2 := store.add(pendingEnvelope(t, now.Add(-2*time.Minute)))
	e3 := store.add(pendingEnvelope(t, now.Add(-time.Minute)))

	dispatcher := NewDispatcher()
	var order []time.Time
	dispatcher.Subscribe(domain.EventMissionCreated, func(_ context.Context, e domain.Event) error {
		order = append(order, e.OccurredAt())
		return nil
	})

	if _, err := testProcessor(store, dispatcher, 5).ProcessBatch(context.Background(), now); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(order) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(order))
	}
	if !(order[0].Before(order[1]) && order[1].Before(order[2])) {
		t.Fatalf("expected oldest-first order, got %v", order)
	}
	_ = e1
	_ = e2
	_ = e3
}

func TestProcessBatchClaimHonorsLimit(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	oldest := store.add(pendingEnvelope(t, now.Add(-3*time.Hour)))
	middle := store.add(pendingEnvelope(t, now.Add(-2*time.Hour)))
	newest := store.add(pendingEnvelope(t, now.Add(-time.Hour)))

	claimed, err := store.ClaimDue(context.Background(), "w", now, 2, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].EnvelopeID != oldest || claimed[1].EnvelopeID != middle {
		t.Fatalf("expected the two oldest envelopes in order")
	}
	if store.envelopes[newest].Status != "pending" {
		t.Fatalf("unclaimed envelope must stay pending")
	}
}

func TestProcessBatchReclaimsAbandonedClaims(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	id := store.add(pendingEnvelope(t, now.Add(-time.Minute)))

	// A worker claims the envelope and dies before recording any outcome.
	claimed, err := store.ClaimDue(context.Background(), "crashed-worker", now, 10, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed, got %d", len(claimed))
	}

	// While the lease holds, other workers must not steal the claim.
	stolen, err := store.ClaimDue(context.Background(), "other-worker", now.Add(30*time.Second), 10, time.Minute)
	if err != nil {
		t.Fatalf("claim during lease: %v", err)
	}
	if len(stolen) != 0 {
		t.Fatalf("claim stolen before lease expiry: %d", len(stolen))
	}

	// After the lease expires the envelope is claimable again and flows to
	// completion instead of sticking in dispatching forever.
	dispatcher := NewDispatcher()
	var seen int
	dispatcher.Subscribe(domain.EventMissionCreated, func(context.Context, domain.Event) error {
		seen++
		return nil
	})
	stats, err := testProcessor(store, dispatcher, 5).ProcessBatch(context.Background(), now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Claimed != 1 || stats.Dispatched != 1 || seen != 1 {
		t.Fatalf("abandoned claim not recovered: %+v (seen=%d)", stats, seen)
	}
	if _, ok := store.envelopes[id]; ok {
		t.Fatalf("recovered envelope must be finalized")
	}
}

func TestProcessBatchRetriesWithBackoff(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	id := store.add(pendingEnvelope(t, now.Add(-time.Minute)))

	dispatcher := NewDispatcher()
	dispatcher.Subscribe(domain.EventMissionCreated, func(context.Context, domain.Event) error {
		return errors.New("downstream unavailable")
	})

	stats, err := testProcessor(store, dispatcher, 5).ProcessBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.Retried != 1 {
		t.Fatalf("expected 1 retry, got %+v", stats)
	}
	e := store.envelopes[id]
	if e.Status != "pending" || e.Attempts != 1 {
		t.Fatalf("unexpected envelope after retry: %+v", e)
	}
	if e.NextAttemptAt == nil || !e.NextAttemptAt.Equal(now.Add(time.Second)) {
		t.Fatalf("expected next attempt at now+1s, got %v", e.NextAttemptAt)
	}
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	envelope := pendingEnvelope(t, now.Add(-time.Minute))
	envelope.Attempts = 2
	id := store.add(envelope)

	dispatcher := NewDispatcher()
	dispatcher.Subscribe(domain.EventMissionCreated, func(context.Context, domain.Event) error {
		return errors.New("still failing")
	})

	stats, err := testProcessor(store, dispatcher, 3).ProcessBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.DeadLettered != 1 {
		t.Fatalf("expected dead letter, got %+v", stats)
	}
	e := store.envelopes[id]
	if e.Status != "dead" || e.DeadLetteredAt == nil || e.NextAttemptAt != nil {
		t.Fatalf("unexpected envelope after dead-letter: %+v", e)
	}
}

func TestProcessBatchDeadLettersDecodeFailuresImmediately(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	next := now.Add(-time.Minute)

	unknown := store.add(models.OutboxEnvelope{
		EventType: "GhostEvent|v1", Payload: []byte(`{}`), OccurredAt: next, NextAttemptAt: &next,
	})
	malformed := store.add(models.OutboxEnvelope{
		EventType: "MissionCreated|v1", Payload: []byte(`{"name":`), OccurredAt: next, NextAttemptAt: &next,
	})

	stats, err := testProcessor(store, NewDispatcher(), 5).ProcessBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.DeadLettered != 2 || stats.Retried != 0 {
		t.Fatalf("expected 2 immediate dead letters, got %+v", stats)
	}
	for _, id := range []uuid.UUID{unknown, malformed} {
		if store.envelopes[id].Status != "dead" {
			t.Fatalf("envelope %s not dead-lettered", id)
		}
	}
}

func TestProcessBatchContainsFailuresPerEnvelope(t *testing.T) {
	store := newFakeStore()
	now := time.Now().UTC()
	next := now.Add(-2 * time.Minute)
	store.add(models.OutboxEnvelope{
		EventType: "GhostEvent|v1", Payload: []byte(`{}`), OccurredAt: next, NextAttemptAt: &next,
	})
	healthy := store.add(pendingEnvelope(t, now.Add(-time.Minute)))

	dispatcher := NewDispatcher()
	var seen int
	dispatcher.Subscribe(domain.EventMissionCreated, func(context.Context, domain.Event) error {
		seen++
		return nil
	})

	stats, err := testProcessor(store, dispatcher, 5).ProcessBatch(context.Background(), now)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if stats.DeadLettered != 1 || stats.Dispatched != 1 || seen != 1 {
		t.Fatalf("bad envelope leaked into its neighbor: %+v (seen=%d)", stats, seen)
	}
	if _, ok := store.envelopes[healthy]; ok {
		t.Fatalf("healthy envelope should have been dispatched")
	}
}

func TestProcessBatchPropagatesClaimError(t *testing.T) {
	store := newFakeStore()
	store.claimErr = errors.New("db down")
	_, err := testProcessor(store, NewDispatcher(), 5).ProcessBatch(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatalf("expected claim error")
	}
}
