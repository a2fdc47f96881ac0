package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"missionboard/api/internal/domain"
	"missionboard/api/internal/models"
	"missionboard/shared/logx"
)

type ProcessorConfig struct {
	Owner       string
	BatchSize   int
	MaxAttempts int
	// ClaimLease bounds how long a claimed envelope may sit without an
	// outcome before another worker may reclaim it.
	ClaimLease time.Duration
	Backoff    Backoff
}

// Processor drains due envelopes: claim a batch, decode each envelope,
// hand it to the dispatcher and record the outcome. All failures are
// contained per envelope; one bad envelope never affects its neighbors.
type Processor struct {
	store      Store
	serializer *domain.Serializer
	dispatcher *Dispatcher
	logger     logx.Logger
	cfg        ProcessorConfig
}

type BatchStats struct {
	Claimed      int
	Dispatched   int
	Retried      int
	DeadLettered int
}

func NewProcessor(store Store, serializer *domain.Serializer, dispatcher *Dispatcher, logger logx.Logger, cfg ProcessorConfig) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = time.Minute
	}
	return &Processor{store: store, serializer: serializer, dispatcher: dispatcher, logger: logger, cfg: cfg}
}

// ProcessBatch handles one tick. Envelopes are processed strictly in the
// order ClaimDue returned them (oldest occurred_at first). Returns an error
// only when the claim itself failed; per-envelope outcomes are reflected in
// the stats and the store.
func (p *Processor) ProcessBatch(ctx context.Context, now time.Time) (BatchStats, error) {
	var stats BatchStats

	envelopes, err := p.store.ClaimDue(ctx, p.cfg.Owner, now, p.cfg.BatchSize, p.cfg.ClaimLease)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(envelopes)

	for _, envelope := range envelopes {
		if ctx.Err() != nil {
			// Shutdown: unclaimed work stays pending, claimed-but-unprocessed
			// envelopes are rescheduled for the next owner.
			p.release(envelope)
			continue
		}
		p.processOne(ctx, envelope, now, &stats)
	}
	return stats, ctx.Err()
}

func (p *Processor) processOne(ctx context.Context, envelope models.OutboxEnvelope, now time.Time, stats *BatchStats) {
	event, err := p.serializer.Deserialize(envelope.EventType, envelope.Payload)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEventType) || errors.Is(err, domain.ErrPayloadDecode) {
			// Permanent: retrying a decode failure can never succeed.
			p.deadLetter(ctx, envelope, now, err, stats)
			return
		}
		p.retry(ctx, envelope, now, err, stats)
		return
	}

	if err := p.dispatcher.Dispatch(ctx, []domain.Event{event}); err != nil {
		p.retry(ctx, envelope, now, err, stats)
		return
	}

	if err := p.store.MarkDispatched(ctx, envelope.EnvelopeID); err != nil {
		p.logger.Error(ctx, "outbox_finalize_failed", "failed to finalize dispatched envelope",
			slog.String("envelope_id", envelope.EnvelopeID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	stats.Dispatched++
}

func (p *Processor) retry(ctx context.Context, envelope models.OutboxEnvelope, now time.Time, cause error, stats *BatchStats) {
	attempts := envelope.Attempts + 1
	if attempts >= p.cfg.MaxAttempts {
		p.deadLetter(ctx, envelope, now, cause, stats)
		return
	}
	nextAttemptAt := now.Add(p.cfg.Backoff.Delay(attempts))
	if err := p.store.MarkRetry(ctx, envelope.EnvelopeID, attempts, nextAttemptAt, cause.Error()); err != nil {
		p.logger.Error(ctx, "outbox_retry_failed", "failed to reschedule envelope",
			slog.String("envelope_id", envelope.EnvelopeID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	stats.Retried++
	p.logger.Warn(ctx, "outbox_retry", "envelope rescheduled",
		slog.String("envelope_id", envelope.EnvelopeID.String()),
		slog.String("event_type", envelope.EventType),
		slog.Int("attempts", attempts),
		slog.Time("next_attempt_at", nextAttemptAt),
		slog.String("error", cause.Error()),
	)
}

func (p *Processor) deadLetter(ctx context.Context, envelope models.OutboxEnvelope, now time.Time, cause error, stats *BatchStats) {
	if err := p.store.MarkDeadLetter(ctx, envelope.EnvelopeID, now, cause.Error()); err != nil {
		p.logger.Error(ctx, "outbox_dead_letter_failed", "failed to dead-letter envelope",
			slog.String("envelope_id", envelope.EnvelopeID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	stats.DeadLettered++
	p.logger.Warn(ctx, "outbox_dead_letter", "envelope moved to dead letters",
		slog.String("envelope_id", envelope.EnvelopeID.String()),
		slog.String("event_type", envelope.EventType),
		slog.Int("attempts", envelope.Attempts),
		slog.String("error", cause.Error()),
	)
}

// release puts a claimed envelope back without burning an attempt.
func (p *Processor) release(envelope models.OutboxEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	nextAttemptAt := time.Now().UTC()
	if err := p.store.MarkRetry(ctx, envelope.EnvelopeID, envelope.Attempts, nextAttemptAt, envelope.LastError); err != nil {
		p.logger.Error(ctx, "outbox_release_failed", "failed to release claimed envelope",
			slog.String("envelope_id", envelope.EnvelopeID.String()),
			slog.String("error", err.Error()),
		)
	}
}
