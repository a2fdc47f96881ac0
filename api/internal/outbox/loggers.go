package outbox

import (
	"context"
	"log/slog"

	"missionboard/api/internal/domain"
	"missionboard/shared/logx"
)

// LoggingSubscriber maps any domain event to a structured log line.
func LoggingSubscriber(logger logx.Logger) Subscriber {
	return func(ctx context.Context, event domain.Event) error {
		logger.Info(ctx, "domain_event", "domain event dispatched",
			slog.String("event", event.EventName()),
			slog.String("event_id", event.EventID().String()),
			slog.String("aggregate_id", event.AggregateID().String()),
			slog.String("org_id", event.OrgID().String()),
			slog.Time("occurred_at", event.OccurredAt()),
		)
		return nil
	}
}

// SubscribeLoggingAll registers the logging subscriber for every event name
// the registry knows.
func SubscribeLoggingAll(d *Dispatcher, registry *domain.Registry, logger logx.Logger) {
	fn := LoggingSubscriber(logger)
	for _, name := range registry.Names() {
		d.Subscribe(name, fn)
	}
}
