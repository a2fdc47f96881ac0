package outbox

import (
	"context"
	"time"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type HealthThresholds struct {
	MaxDeadLetters int64
	MaxPendingAge  time.Duration
}

type HealthReport struct {
	Status           HealthStatus  `json:"status"`
	DeadLetters      int64         `json:"dead_letters"`
	OldestPendingAge time.Duration `json:"oldest_pending_age"`
}

// HealthCheck classifies pipeline health from two store reads. Dead letters
// above threshold dominate; a stale pending backlog alone only degrades.
type HealthCheck struct {
	store      Store
	thresholds HealthThresholds
}

func NewHealthCheck(store Store, thresholds HealthThresholds) *HealthCheck {
	return &HealthCheck{store: store, thresholds: thresholds}
}

func (h *HealthCheck) Check(ctx context.Context, now time.Time) (HealthReport, error) {
	deadLetters, err := h.store.CountDeadLetters(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	oldest, err := h.store.OldestPendingOccurredAt(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	report := HealthReport{Status: HealthStatusHealthy, DeadLetters: deadLetters}
	if oldest != nil && now.After(*oldest) {
		report.OldestPendingAge = now.Sub(*oldest)
	}

	switch {
	case deadLetters > h.thresholds.MaxDeadLetters:
		report.Status = HealthStatusUnhealthy
	case report.OldestPendingAge > h.thresholds.MaxPendingAge:
		report.Status = HealthStatusDegraded
	}
	return report, nil
}
