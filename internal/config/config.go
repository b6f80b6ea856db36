/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Event fan-out backends.
const (
	EventBackendMemory = "memory"
	EventBackendRedis  = "redis"
	EventBackendNATS   = "nats"
)

// Output backends.
const (
	OutputDry       = "dry"
	OutputGStreamer = "gstreamer"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	StationFile   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	TickInterval  time.Duration
	JWTSigningKey string

	// Audio output
	Output        string
	GStreamerBin  string
	GStreamerSink string
	CheckFiles    bool // dry output reports missing files as start failures

	// Event fan-out
	EventBackend string
	NATSURL      string

	// S3 library source
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	InstanceID            string

	// Periodically compare the running version with the latest release.
	UpdateCheck bool

	LegacyEnvWarnings []string
}

// Load reads a .env file when present, then environment variables, applies
// defaults, and validates the result. Variables already set in the process
// win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Environment:   getEnvAny([]string{"GRIMNIR_ENV", "RLM_ENV"}, "development"),
		StationFile:   getEnvAny([]string{"GRIMNIR_STATION_FILE"}, "station.yaml"),
		HTTPBind:      getEnvAny([]string{"GRIMNIR_HTTP_BIND", "RLM_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"GRIMNIR_HTTP_PORT", "RLM_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"GRIMNIR_DB_BACKEND", "RLM_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"GRIMNIR_DB_DSN", "RLM_DB_DSN"}, "grimnir_playout.db"),
		TickInterval:  time.Duration(getEnvIntAny([]string{"GRIMNIR_TICK_INTERVAL_MS"}, 250)) * time.Millisecond,
		JWTSigningKey: getEnvAny([]string{"GRIMNIR_JWT_SIGNING_KEY", "RLM_JWT_SIGNING_KEY"}, ""),

		Output:        strings.ToLower(getEnvAny([]string{"GRIMNIR_OUTPUT"}, OutputDry)),
		GStreamerBin:  getEnvAny([]string{"GRIMNIR_GSTREAMER_BIN", "RLM_GSTREAMER_BIN"}, "gst-launch-1.0"),
		GStreamerSink: getEnvAny([]string{"GRIMNIR_GSTREAMER_SINK"}, "autoaudiosink"),
		CheckFiles:    getEnvBoolAny([]string{"GRIMNIR_CHECK_FILES"}, true),

		EventBackend: strings.ToLower(getEnvAny([]string{"GRIMNIR_EVENT_BACKEND"}, EventBackendMemory)),
		NATSURL:      getEnvAny([]string{"GRIMNIR_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),

		S3AccessKeyID:     getEnvAny([]string{"GRIMNIR_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"GRIMNIR_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"GRIMNIR_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"GRIMNIR_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"GRIMNIR_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"GRIMNIR_TRACING_ENABLED", "RLM_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"GRIMNIR_OTLP_ENDPOINT", "RLM_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"GRIMNIR_TRACING_SAMPLE_RATE", "RLM_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"GRIMNIR_LEADER_ELECTION_ENABLED", "RLM_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"GRIMNIR_REDIS_ADDR", "RLM_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"GRIMNIR_REDIS_PASSWORD", "RLM_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"GRIMNIR_REDIS_DB", "RLM_REDIS_DB"}, 0),
		InstanceID:            getEnvAny([]string{"GRIMNIR_INSTANCE_ID", "RLM_INSTANCE_ID"}, ""),

		UpdateCheck: getEnvBoolAny([]string{"GRIMNIR_UPDATE_CHECK"}, false),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("GRIMNIR_DB_DSN or RLM_DB_DSN must be provided")
	}

	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("GRIMNIR_TICK_INTERVAL_MS must be positive")
	}

	switch cfg.Output {
	case OutputDry, OutputGStreamer:
	default:
		return nil, fmt.Errorf("unsupported output %q", cfg.Output)
	}

	switch cfg.EventBackend {
	case EventBackendMemory, EventBackendRedis, EventBackendNATS:
	default:
		return nil, fmt.Errorf("unsupported event backend %q", cfg.EventBackend)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("GRIMNIR_JWT_SIGNING_KEY or RLM_JWT_SIGNING_KEY must be provided in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":             "use GRIMNIR_ENV (or RLM_ENV)",
		"LEADER_ELECTION_ENABLED": "use GRIMNIR_LEADER_ELECTION_ENABLED",
		"JWT_SIGNING_KEY":         "use GRIMNIR_JWT_SIGNING_KEY (or RLM_JWT_SIGNING_KEY)",
		"TRACING_ENABLED":         "use GRIMNIR_TRACING_ENABLED (or RLM_TRACING_ENABLED)",
		"OTLP_ENDPOINT":           "use GRIMNIR_OTLP_ENDPOINT (or RLM_OTLP_ENDPOINT)",
		"STATION_FILE":            "use GRIMNIR_STATION_FILE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the listen address for the control API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
