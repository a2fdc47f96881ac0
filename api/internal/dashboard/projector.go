package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/outbox"
	"missionboard/shared/cachex"
	"missionboard/shared/influxx"
	"missionboard/shared/logx"
	"missionboard/shared/metricsx"
)

// Projector folds dispatched events into the org dashboard: counters in
// Redis and a check-in time series in InfluxDB. Counter and series writes
// are advisory; a failed write is logged and the envelope still completes,
// since the dashboard is rebuilt from Postgres on demand.
type Projector struct {
	influx *influxx.Client
	cache  *cachex.Client
	logger logx.Logger
}

func NewProjector(influx *influxx.Client, cache *cachex.Client, logger logx.Logger) *Projector {
	return &Projector{influx: influx, cache: cache, logger: logger}
}

func (p *Projector) Register(d *outbox.Dispatcher) {
	d.Subscribe(domain.EventMissionCreated, p.onMissionCreated)
	d.Subscribe(domain.EventMissionCompleted, p.onMissionCompleted)
	d.Subscribe(domain.EventCheckInRecorded, p.onCheckInRecorded)
}

func (p *Projector) onMissionCreated(ctx context.Context, e domain.Event) error {
	p.incr(ctx, counterKey(e, "missions_active"), 1)
	return nil
}

func (p *Projector) onMissionCompleted(ctx context.Context, e domain.Event) error {
	p.incr(ctx, counterKey(e, "missions_active"), -1)
	p.incr(ctx, counterKey(e, "missions_completed"), 1)
	return nil
}

func (p *Projector) onCheckInRecorded(ctx context.Context, e domain.Event) error {
	checkIn, ok := e.(*domain.CheckInRecorded)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for %s", e, e.EventName())
	}

	p.incr(ctx, counterKey(e, "checkins"), 1)

	if p.influx == nil {
		return nil
	}
	err := p.influx.WritePoint(ctx, "checkins",
		map[string]string{
			"org_id":     checkIn.OrgID().String(),
			"mission_id": checkIn.AggregateID().String(),
			"metric_id":  checkIn.MetricID.String(),
		},
		map[string]any{
			"value":      checkIn.Value,
			"confidence": checkIn.Confidence,
		},
		checkIn.OccurredAt(),
	)
	if err != nil {
		metricsx.IncInfluxWriteFailure()
		p.logger.Warn(ctx, "influx_write_failed", "check-in point write failed",
			slog.String("event_id", e.EventID().String()),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (p *Projector) incr(ctx context.Context, key string, delta int64) {
	if p.cache == nil {
		return
	}
	if _, err := p.cache.IncrBy(ctx, key, delta); err != nil {
		p.logger.Warn(ctx, "dashboard_counter_failed", "counter update failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func counterKey(e domain.Event, name string) string {
	return fmt.Sprintf("dash:%s:%s", e.OrgID().String(), name)
}
