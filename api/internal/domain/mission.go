package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MissionStatusActive    = "active"
	MissionStatusCompleted = "completed"
)

var (
	ErrMissionNameRequired  = errors.New("mission name is required")
	ErrMissionCompleted     = errors.New("mission already completed")
	ErrMetricNotFound       = errors.New("metric not found")
	ErrMetricTargetInvalid  = errors.New("metric target must be > 0")
	ErrCheckInValueNegative = errors.New("check-in value must be >= 0")
)

type Metric struct {
	MetricID uuid.UUID `json:"metric_id"`
	Name     string    `json:"name"`
	Target   float64   `json:"target"`
	Current  float64   `json:"current"`
}

// Mission is an aggregate root: every mutation appends a domain event that
// the saving transaction turns into an outbox envelope.
type Mission struct {
	AggregateBase

	MissionID   uuid.UUID
	OrgID       uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Status      string
	Metrics     []Metric
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewMission(orgID uuid.UUID, workspaceID uuid.UUID, name string) (*Mission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrMissionNameRequired
	}
	now := time.Now().UTC()
	m := &Mission{
		MissionID:   uuid.New(),
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		Name:        name,
		Status:      MissionStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.raise(&MissionCreated{
		EventBase:   newEventBase(orgID, m.MissionID),
		WorkspaceID: workspaceID,
		Name:        name,
	})
	return m, nil
}

func (m *Mission) AddMetric(name string, target float64) (Metric, error) {
	if target <= 0 {
		return Metric{}, ErrMetricTargetInvalid
	}
	metric := Metric{
		MetricID: uuid.New(),
		Name:     strings.TrimSpace(name),
		Target:   target,
	}
	m.Metrics = append(m.Metrics, metric)
	m.touch()
	return metric, nil
}

func (m *Mission) SetMetricTarget(metricID uuid.UUID, target float64) error {
	if target <= 0 {
		return ErrMetricTargetInvalid
	}
	for i := range m.Metrics {
		if m.Metrics[i].MetricID != metricID {
			continue
		}
		old := m.Metrics[i].Target
		m.Metrics[i].Target = target
		m.touch()
		m.raise(&MetricTargetChanged{
			EventBase: newEventBase(m.OrgID, m.MissionID),
			MetricID:  metricID,
			OldTarget: old,
			NewTarget: target,
		})
		return nil
	}
	return ErrMetricNotFound
}

func (m *Mission) RecordCheckIn(metricID uuid.UUID, value float64, note string, confidence int) error {
	if m.Status == MissionStatusCompleted {
		return ErrMissionCompleted
	}
	if value < 0 {
		return ErrCheckInValueNegative
	}
	for i := range m.Metrics {
		if m.Metrics[i].MetricID != metricID {
			continue
		}
		m.Metrics[i].Current = value
		m.touch()
		m.raise(&CheckInRecorded{
			EventBase:  newEventBase(m.OrgID, m.MissionID),
			MetricID:   metricID,
			Value:      value,
			Note:       strings.TrimSpace(note),
			Confidence: confidence,
		})
		return nil
	}
	return ErrMetricNotFound
}

func (m *Mission) Complete(completedBy uuid.UUID) error {
	if m.Status == MissionStatusCompleted {
		return ErrMissionCompleted
	}
	m.Status = MissionStatusCompleted
	m.touch()
	m.raise(&MissionCompleted{
		EventBase:   newEventBase(m.OrgID, m.MissionID),
		CompletedBy: completedBy,
	})
	return nil
}

func (m *Mission) touch() {
	m.UpdatedAt = time.Now().UTC()
}
