package outbox

import (
	"context"
	"testing"
	"time"

	"missionboard/api/internal/models"
)

func healthStore(t *testing.T, deadLetters int, pendingAge time.Duration, now time.Time) *fakeStore {
	t.Helper()
	store := newFakeStore()
	for i := 0; i < deadLetters; i++ {
		at := now.Add(-time.Hour)
		store.add(models.OutboxEnvelope{Status: "dead", EventType: "X|v1", DeadLetteredAt: &at, OccurredAt: at})
	}
	if pendingAge > 0 {
		occurred := now.Add(-pendingAge)
		store.add(models.OutboxEnvelope{Status: "pending", EventType: "X|v1", OccurredAt: occurred, NextAttemptAt: &occurred})
	}
	return store
}

func TestHealthClassification(t *testing.T) {
	now := time.Now().UTC()
	thresholds := HealthThresholds{MaxDeadLetters: 0, MaxPendingAge: 15 * time.Minute}

	cases := []struct {
		name        string
		deadLetters int
		pendingAge  time.Duration
		want        HealthStatus
	}{
		{"fresh pending", 0, 2 * time.Minute, HealthStatusHealthy},
		{"stale pending", 0, 30 * time.Minute, HealthStatusDegraded},
		{"dead letter dominates", 1, 2 * time.Minute, HealthStatusUnhealthy},
		{"dead letter beats stale pending", 1, 30 * time.Minute, HealthStatusUnhealthy},
		{"empty outbox", 0, 0, HealthStatusHealthy},
	}
	for _, tc := range cases {
		check := NewHealthCheck(healthStore(t, tc.deadLetters, tc.pendingAge, now), thresholds)
		report, err := check.Check(context.Background(), now)
		if err != nil {
			t.Fatalf("%s: check: %v", tc.name, err)
		}
		if report.Status != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, report.Status)
		}
	}
}

func TestHealthReportFields(t *testing.T) {
	now := time.Now().UTC()
	check := NewHealthCheck(healthStore(t, 2, 20*time.Minute, now), HealthThresholds{MaxDeadLetters: 5, MaxPendingAge: time.Hour})
	report, err := check.Check(context.Background(), now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if report.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy under thresholds, got %s", report.Status)
	}
	if report.DeadLetters != 2 {
		t.Fatalf("expected 2 dead letters, got %d", report.DeadLetters)
	}
	if report.OldestPendingAge < 19*time.Minute || report.OldestPendingAge > 21*time.Minute {
		t.Fatalf("unexpected pending age %v", report.OldestPendingAge)
	}
}
