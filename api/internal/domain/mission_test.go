package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewMissionRaisesCreated(t *testing.T) {
	orgID := uuid.New()
	m, err := NewMission(orgID, uuid.New(), "  Ship v2  ")
	if err != nil {
		t.Fatalf("new mission: %v", err)
	}
	if m.Name != "Ship v2" {
		t.Fatalf("expected trimmed name, got %q", m.Name)
	}
	pending := m.PendingEvents()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	created, ok := pending[0].(*MissionCreated)
	if !ok {
		t.Fatalf("expected MissionCreated, got %T", pending[0])
	}
	if created.OrgID() != orgID || created.AggregateID() != m.MissionID {
		t.Fatalf("unexpected event scope: %#v", created)
	}
}

func TestRecordCheckInAppendsEvent(t *testing.T) {
	m, err := NewMission(uuid.New(), uuid.New(), "growth")
	if err != nil {
		t.Fatalf("new mission: %v", err)
	}
	metric, err := m.AddMetric("activation", 100)
	if err != nil {
		t.Fatalf("add metric: %v", err)
	}
	if err := m.RecordCheckIn(metric.MetricID, 37, "trending up", 7); err != nil {
		t.Fatalf("record check-in: %v", err)
	}
	pending := m.PendingEvents()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending events, got %d", len(pending))
	}
	checkIn, ok := pending[1].(*CheckInRecorded)
	if !ok || checkIn.Value != 37 {
		t.Fatalf("unexpected second event: %#v", pending[1])
	}
	if m.Metrics[0].Current != 37 {
		t.Fatalf("expected metric current 37, got %v", m.Metrics[0].Current)
	}
}

func TestRecordCheckInUnknownMetric(t *testing.T) {
	m, _ := NewMission(uuid.New(), uuid.New(), "growth")
	err := m.RecordCheckIn(uuid.New(), 1, "", 5)
	if !errors.Is(err, ErrMetricNotFound) {
		t.Fatalf("expected ErrMetricNotFound, got %v", err)
	}
}

func TestCompleteIsOneWay(t *testing.T) {
	m, _ := NewMission(uuid.New(), uuid.New(), "growth")
	if err := m.Complete(uuid.New()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := m.Complete(uuid.New()); !errors.Is(err, ErrMissionCompleted) {
		t.Fatalf("expected ErrMissionCompleted, got %v", err)
	}
	metric, _ := m.AddMetric("late", 10)
	if err := m.RecordCheckIn(metric.MetricID, 1, "", 5); !errors.Is(err, ErrMissionCompleted) {
		t.Fatalf("expected ErrMissionCompleted, got %v", err)
	}
}

func TestClearPendingEvents(t *testing.T) {
	m, _ := NewMission(uuid.New(), uuid.New(), "growth")
	m.ClearPendingEvents()
	if len(m.PendingEvents()) != 0 {
		t.Fatalf("expected no pending events after clear")
	}
}
