package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"missionboard/api/internal/dashboard"
	"missionboard/api/internal/domain"
	"missionboard/api/internal/notify"
	"missionboard/api/internal/outbox"
	"missionboard/api/internal/repos"
	"missionboard/shared/cachex"
	"missionboard/shared/config"
	"missionboard/shared/dbx"
	"missionboard/shared/influxx"
	"missionboard/shared/lockx"
	"missionboard/shared/logx"
	"missionboard/shared/metricsx"
	"missionboard/shared/observability"
)

const (
	taskOutboxScan = "outbox.scan"
	scanLockKey    = "missionboard:outbox:scan"
)

func main() {
	cfg, problems := config.Load("outbox-worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	metricsx.Register()

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error", err.Error()),
			)
		} else {
			defer cache.Close()
		}
	}

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error", err.Error()),
			)
		} else {
			defer influx.Close()
		}
	}

	registry := domain.DefaultRegistry()
	serializer := domain.NewSerializer(registry)
	outboxRepo := repos.NewOutboxRepo(dbPool)
	notificationsRepo := repos.NewNotificationsRepo(dbPool)

	dispatcher := outbox.NewDispatcher()
	outbox.SubscribeLoggingAll(dispatcher, registry, logger)
	dashboard.NewProjector(influx, cache, logger).Register(dispatcher)
	notify.NewSubscriber(notificationsRepo).Register(dispatcher)

	owner := cfg.ServiceName
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		owner = cfg.ServiceName + "@" + hostname
	}
	processor := outbox.NewProcessor(outboxRepo, serializer, dispatcher, logger.With(slog.String("component", "outbox-processor")), outbox.ProcessorConfig{
		Owner:       owner,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		ClaimLease:  time.Duration(cfg.OutboxClaimLeaseSec) * time.Second,
		Backoff: outbox.Backoff{
			Base: time.Duration(cfg.OutboxRetryBaseMS) * time.Millisecond,
			Cap:  time.Duration(cfg.OutboxRetryCapMS) * time.Millisecond,
		},
	})

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	lockTTL := 2 * time.Duration(cfg.OutboxScanSec) * time.Second

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskOutboxScan, func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("asynq").Start(ctx, "outbox.scan")
		span.SetAttributes(attribute.String("queue", cfg.AsynqQueue))
		defer span.End()

		run := func(ctx context.Context) error {
			start := time.Now()
			stats, err := processor.ProcessBatch(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if stats.Claimed > 0 {
				metricsx.ObserveOutboxBatchDuration(time.Since(start))
				logger.Info(ctx, "outbox_batch", "outbox batch processed",
					slog.Int("claimed", stats.Claimed),
					slog.Int("dispatched", stats.Dispatched),
					slog.Int("retried", stats.Retried),
					slog.Int("dead_lettered", stats.DeadLettered),
				)
			}
			for i := 0; i < stats.Dispatched; i++ {
				metricsx.IncOutboxDispatch("dispatched")
			}
			for i := 0; i < stats.Retried; i++ {
				metricsx.IncOutboxDispatch("retried")
			}
			for i := 0; i < stats.DeadLettered; i++ {
				metricsx.IncOutboxDispatch("dead_lettered")
			}
			return nil
		}

		if cache == nil {
			return run(ctx)
		}
		skipped, err := lockx.WithLock(ctx, cache.Client(), scanLockKey, lockTTL, run)
		if skipped {
			logger.Debug(ctx, "outbox_scan_skipped", "another worker holds the scan lock")
		}
		return err
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	defer scheduler.Shutdown()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()
	if _, err := scheduler.Register("@every "+strconv.Itoa(cfg.OutboxScanSec)+"s", asynq.NewTask(taskOutboxScan, nil, asynq.Queue(cfg.AsynqQueue))); err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if info, err := inspector.GetQueueInfo(cfg.AsynqQueue); err == nil {
				metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
			}

			gaugeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if dead, err := outboxRepo.CountDeadLetters(gaugeCtx); err == nil {
				metricsx.SetOutboxDeadLetters(dead)
			}
			if pending, err := outboxRepo.CountPending(gaugeCtx); err == nil {
				metricsx.SetOutboxPending(pending)
			}
			if oldest, err := outboxRepo.OldestPendingOccurredAt(gaugeCtx); err == nil {
				if oldest == nil {
					metricsx.SetOutboxOldestPendingAge(0)
				} else {
					metricsx.SetOutboxOldestPendingAge(time.Since(*oldest))
				}
			}
			cancel()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "outbox worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
			slog.Int("scan_interval_s", cfg.OutboxScanSec),
			slog.Int("batch_size", cfg.OutboxBatchSize),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "outbox worker stopped")
}
