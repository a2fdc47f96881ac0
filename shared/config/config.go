package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env              string
	ServiceName      string
	HTTPPort         int
	LogLevel         string
	ConfigPath       string
	RequestTimeoutMS int
	RequestTimeout   time.Duration

	OIDCIssuer      string
	OIDCAudience    string
	OIDCJWKSURL     string
	JWKSTTLSeconds  int
	JWTClockSkewSec int

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AsynqRedisAddr   string
	AsynqRedisPass   string
	AsynqRedisDB     int
	AsynqQueue       string
	AsynqConcurrency int

	OutboxScanSec          int
	OutboxBatchSize        int
	OutboxMaxAttempts      int
	OutboxRetryBaseMS      int
	OutboxRetryCapMS       int
	OutboxClaimLeaseSec    int
	OutboxMaxDeadLetters   int
	OutboxMaxPendingAgeSec int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

// Load reads configuration from an optional JSON file merged under the
// environment: CONFIG_PATH names the file explicitly, otherwise
// configs/<ENV>.json is picked up when it exists, and any environment
// variable overrides the file. Invalid values are reported as Problems and
// replaced with defaults so the caller can decide whether to refuse startup.
func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	var problems []Problem

	configPath := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	explicit := configPath != ""
	if configPath == "" {
		if env := strings.TrimSpace(os.Getenv("ENV")); env != "" {
			if dir, ok := findConfigDir(); ok {
				configPath = filepath.Join(dir, env+".json")
			}
		}
	}
	file, fileProblems := loadConfigFile(configPath, explicit)
	problems = append(problems, fileProblems...)
	src := source{file: file}

	cfg := Config{
		Env:              src.stringVal("ENV", ""),
		ServiceName:      src.stringVal("SERVICE_NAME", serviceNameDefault),
		HTTPPort:         src.intVal("HTTP_PORT", httpPortDefault, &problems),
		LogLevel:         src.stringVal("LOG_LEVEL", "info"),
		ConfigPath:       configPath,
		RequestTimeoutMS: src.intVal("REQUEST_TIMEOUT_MS", 30000, &problems),

		OIDCIssuer:      src.stringVal("OIDC_ISSUER", ""),
		OIDCAudience:    src.stringVal("OIDC_AUDIENCE", ""),
		OIDCJWKSURL:     src.stringVal("OIDC_JWKS_URL", ""),
		JWKSTTLSeconds:  src.intVal("JWKS_TTL_SECONDS", 300, &problems),
		JWTClockSkewSec: src.intVal("JWT_CLOCK_SKEW_SECONDS", 60, &problems),

		DatabaseURL:      src.stringVal("DATABASE_URL", ""),
		DBMaxConns:       src.intVal("DB_MAX_CONNS", 10, &problems),
		DBMinConns:       src.intVal("DB_MIN_CONNS", 1, &problems),
		DBConnMaxIdleSec: src.intVal("DB_CONN_MAX_IDLE_SECONDS", 300, &problems),
		DBConnMaxLifeSec: src.intVal("DB_CONN_MAX_LIFETIME_SECONDS", 1800, &problems),

		RedisAddr:     src.stringVal("REDIS_ADDR", ""),
		RedisPassword: src.stringVal("REDIS_PASSWORD", ""),
		RedisDB:       src.intVal("REDIS_DB", 0, &problems),

		AsynqRedisAddr:   src.stringVal("ASYNQ_REDIS_ADDR", ""),
		AsynqRedisPass:   src.stringVal("ASYNQ_REDIS_PASSWORD", ""),
		AsynqRedisDB:     src.intVal("ASYNQ_REDIS_DB", 0, &problems),
		AsynqQueue:       src.stringVal("ASYNQ_QUEUE", "outbox"),
		AsynqConcurrency: src.intVal("ASYNQ_CONCURRENCY", 10, &problems),

		OutboxScanSec:          src.intVal("OUTBOX_SCAN_INTERVAL_SECONDS", 5, &problems),
		OutboxBatchSize:        src.intVal("OUTBOX_BATCH_SIZE", 50, &problems),
		OutboxMaxAttempts:      src.intVal("OUTBOX_MAX_ATTEMPTS", 10, &problems),
		OutboxRetryBaseMS:      src.intVal("OUTBOX_RETRY_BASE_MS", 5000, &problems),
		OutboxRetryCapMS:       src.intVal("OUTBOX_RETRY_CAP_MS", 300000, &problems),
		OutboxClaimLeaseSec:    src.intVal("OUTBOX_CLAIM_LEASE_SECONDS", 60, &problems),
		OutboxMaxDeadLetters:   src.intVal("OUTBOX_MAX_DEAD_LETTERS", 0, &problems),
		OutboxMaxPendingAgeSec: src.intVal("OUTBOX_MAX_PENDING_AGE_SECONDS", 900, &problems),

		InfluxURL:       src.stringVal("INFLUX_URL", ""),
		InfluxToken:     src.stringVal("INFLUX_TOKEN", ""),
		InfluxOrg:       src.stringVal("INFLUX_ORG", ""),
		InfluxBucket:    src.stringVal("INFLUX_BUCKET", ""),
		InfluxTimeoutMS: src.intVal("INFLUX_TIMEOUT_MS", 5000, &problems),

		OtelEnabled:     src.boolVal("OTEL_ENABLED", false, &problems),
		OtelEndpoint:    src.stringVal("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OtelInsecure:    src.boolVal("OTEL_EXPORTER_OTLP_INSECURE", true, &problems),
		OtelSampleRatio: src.floatVal("OTEL_SAMPLE_RATIO", 1.0, &problems),
	}

	if cfg.Env == "" {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
		cfg.Env = "dev"
	}
	if cfg.OIDCIssuer != "" && cfg.OIDCJWKSURL == "" {
		cfg.OIDCJWKSURL = strings.TrimRight(cfg.OIDCIssuer, "/") + "/.well-known/jwks.json"
	}

	requirePositive(&cfg.HTTPPort, httpPortDefault, "HTTP_PORT", &problems)
	if cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	requirePositive(&cfg.RequestTimeoutMS, 30000, "REQUEST_TIMEOUT_MS", &problems)
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	requirePositive(&cfg.DBMaxConns, 10, "DB_MAX_CONNS", &problems)
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be 0..DB_MAX_CONNS"})
		cfg.DBMinConns = 1
	}
	requirePositive(&cfg.DBConnMaxIdleSec, 300, "DB_CONN_MAX_IDLE_SECONDS", &problems)
	requirePositive(&cfg.DBConnMaxLifeSec, 1800, "DB_CONN_MAX_LIFETIME_SECONDS", &problems)
	requirePositive(&cfg.JWKSTTLSeconds, 300, "JWKS_TTL_SECONDS", &problems)
	requirePositive(&cfg.AsynqConcurrency, 10, "ASYNQ_CONCURRENCY", &problems)
	requirePositive(&cfg.OutboxScanSec, 5, "OUTBOX_SCAN_INTERVAL_SECONDS", &problems)
	requirePositive(&cfg.OutboxBatchSize, 50, "OUTBOX_BATCH_SIZE", &problems)
	requirePositive(&cfg.OutboxMaxAttempts, 10, "OUTBOX_MAX_ATTEMPTS", &problems)
	requirePositive(&cfg.OutboxRetryBaseMS, 5000, "OUTBOX_RETRY_BASE_MS", &problems)
	requirePositive(&cfg.OutboxRetryCapMS, 300000, "OUTBOX_RETRY_CAP_MS", &problems)
	requirePositive(&cfg.OutboxClaimLeaseSec, 60, "OUTBOX_CLAIM_LEASE_SECONDS", &problems)
	if cfg.OutboxMaxDeadLetters < 0 {
		problems = append(problems, Problem{Field: "OUTBOX_MAX_DEAD_LETTERS", Message: "OUTBOX_MAX_DEAD_LETTERS must be >= 0"})
		cfg.OutboxMaxDeadLetters = 0
	}
	requirePositive(&cfg.OutboxMaxPendingAgeSec, 900, "OUTBOX_MAX_PENDING_AGE_SECONDS", &problems)
	requirePositive(&cfg.InfluxTimeoutMS, 5000, "INFLUX_TIMEOUT_MS", &problems)
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

// findConfigDir walks up from the working directory looking for a configs/
// directory, so binaries started from any subdirectory of the repo find the
// same files.
func findConfigDir() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// loadConfigFile returns the parsed file keyed by upper-cased field name. A
// derived path that does not exist is silently skipped; an explicit
// CONFIG_PATH that cannot be read is a Problem.
func loadConfigFile(path string, explicit bool) (map[string]any, []Problem) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !explicit {
			return nil, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}
		}
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}
	}
	file := make(map[string]any, len(raw))
	for k, v := range raw {
		file[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	return file, nil
}

// source resolves each field with env winning over the config file.
type source struct {
	file map[string]any
}

func (s source) stringVal(key string, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if raw, ok := s.file[key]; ok {
		if v, ok := raw.(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return fallback
}

func (s source) intVal(key string, fallback int, problems *[]Problem) int {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be an integer", key)})
			return fallback
		}
		return n
	}
	if raw, ok := s.file[key]; ok {
		n, ok := fileInt(raw)
		if !ok {
			*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be an integer", key)})
			return fallback
		}
		return n
	}
	return fallback
}

func (s source) boolVal(key string, fallback bool, problems *[]Problem) bool {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		b, ok := parseBool(raw)
		if !ok {
			*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be a boolean", key)})
			return fallback
		}
		return b
	}
	if raw, ok := s.file[key]; ok {
		switch v := raw.(type) {
		case bool:
			return v
		case string:
			if b, ok := parseBool(v); ok {
				return b
			}
		}
		*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be a boolean", key)})
	}
	return fallback
}

func (s source) floatVal(key string, fallback float64, problems *[]Problem) float64 {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be a number", key)})
			return fallback
		}
		return f
	}
	if raw, ok := s.file[key]; ok {
		f, ok := fileFloat(raw)
		if !ok {
			*problems = append(*problems, Problem{Field: key, Message: fmt.Sprintf("%s must be a number", key)})
			return fallback
		}
		return f
	}
	return fallback
}

func fileInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func fileFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func requirePositive(v *int, fallback int, field string, problems *[]Problem) {
	if *v <= 0 {
		*problems = append(*problems, Problem{Field: field, Message: field + " must be > 0"})
		*v = fallback
	}
}
