package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"missionboard/api/internal/dashboard"
	"missionboard/api/internal/domain"
	"missionboard/api/internal/middleware"
	"missionboard/api/internal/outbox"
	"missionboard/api/internal/repos"
	"missionboard/shared/authx"
	"missionboard/shared/cachex"
	"missionboard/shared/config"
	"missionboard/shared/dbx"
	"missionboard/shared/httpx"
	"missionboard/shared/influxx"
	"missionboard/shared/logx"
	"missionboard/shared/metricsx"
	"missionboard/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	metricsx.Register()

	shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Warn(context.Background(), "tracer_init_failed", "tracer init failed",
			slog.String("error", err.Error()),
		)
		shutdownTracer = func(context.Context) error { return nil }
	}

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		cache, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "redis_init_failed", "redis init failed",
				slog.String("error", err.Error()),
			)
		}
	}

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "influx init failed",
				slog.String("error", err.Error()),
			)
		}
	}

	registry := domain.DefaultRegistry()
	serializer := domain.NewSerializer(registry)

	outboxRepo := repos.NewOutboxRepo(dbPool)
	orgsRepo := repos.NewOrganizationsRepo(dbPool, outboxRepo, serializer)
	missionsRepo := repos.NewMissionsRepo(dbPool, outboxRepo, serializer)
	notificationsRepo := repos.NewNotificationsRepo(dbPool)

	healthCheck := outbox.NewHealthCheck(outboxRepo, outbox.HealthThresholds{
		MaxDeadLetters: int64(cfg.OutboxMaxDeadLetters),
		MaxPendingAge:  time.Duration(cfg.OutboxMaxPendingAgeSec) * time.Second,
	})
	adminService := outbox.NewAdminService(outboxRepo)

	var verifier *authx.JWTVerifier
	if cfg.OIDCIssuer != "" && cfg.OIDCAudience != "" {
		verifier, err = authx.NewJWTVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "OIDC_ISSUER", Message: "failed to initialize JWT verifier"})
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"},
			)
			return
		}
		report, err := healthCheck.Check(r.Context(), time.Now().UTC())
		if err != nil {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: outbox health unavailable",
				map[string]any{"problem": "outbox_check_failed"},
			)
			return
		}
		if report.Status == outbox.HealthStatusUnhealthy {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: outbox unhealthy",
				map[string]any{"outbox": report},
			)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ready",
			"service": cfg.ServiceName,
			"env":     cfg.Env,
			"outbox":  report,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	handlers := &apiHandlers{
		orgs:          orgsRepo,
		missions:      missionsRepo,
		notifications: notificationsRepo,
		summary:       dashboard.NewSummaryReader(influx, cache),
		admin:         adminService,
	}
	handlers.register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	isPublic := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			return true
		}
		return false
	}
	skipsOrg := func(r *http.Request) bool {
		if isPublic(r) {
			return true
		}
		// Dead-letter admin spans all orgs; creating an organization is the
		// one call made before one exists.
		if strings.HasPrefix(r.URL.Path, "/api/v1/outbox/") {
			return true
		}
		return r.Method == http.MethodPost && r.URL.Path == "/api/v1/organizations"
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{Pool: dbPool, Skip: isPublic}.Wrap(handler)
	handler = middleware.OrgMiddleware{Orgs: orgsRepo, Skip: skipsOrg}.Wrap(handler)
	handler = middleware.AuthMiddleware{Verifier: verifier, Skip: isPublic}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{
		Limiter: middleware.NewIPRateLimiter(20, 40, 2*time.Minute),
		Skip:    isPublic,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)
	handler = otelhttp.NewHandler(handler, "http.server")

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
			slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	_ = shutdownTracer(shutdownCtx)
	if influx != nil {
		influx.Close()
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
}
