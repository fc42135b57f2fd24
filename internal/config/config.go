/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benchworks/magbench/internal/protocol"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string

	// Batch parameters
	SampleCount     int           // samples per batch, 1..protocol.MaxSamples
	LysisMinutes    int           // overrides the protocol lysis window when > 0
	DebugDryRun     bool          // zero every protocol delay for dry runs
	DelayResolution time.Duration // final-drain wait granularity
	ProtocolPath    string        // YAML protocol definition; empty = built-in

	// Robot connection; empty address selects the simulator
	RobotAddr     string
	RobotTimeout  time.Duration
	SimActionCost time.Duration // simulated wall cost per equipment command

	// Monitor API
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Persistence
	DBBackend DatabaseBackend
	DBDSN     string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the
// result. Out-of-range values are rejected, never clamped.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnv("MAGBENCH_ENV", "development"),
		SampleCount:     getEnvInt("MAGBENCH_SAMPLE_COUNT", 1),
		LysisMinutes:    getEnvInt("MAGBENCH_LYSIS_DELAY_MINUTES", 0),
		DebugDryRun:     getEnvBool("MAGBENCH_DEBUG_DRY_RUN", false),
		DelayResolution: time.Duration(getEnvInt("MAGBENCH_DELAY_RESOLUTION_SECONDS", 60)) * time.Second,
		ProtocolPath:    getEnv("MAGBENCH_PROTOCOL_PATH", ""),

		RobotAddr:     getEnv("MAGBENCH_ROBOT_ADDR", ""),
		RobotTimeout:  time.Duration(getEnvInt("MAGBENCH_ROBOT_TIMEOUT_SECONDS", 120)) * time.Second,
		SimActionCost: time.Duration(getEnvInt("MAGBENCH_SIM_ACTION_COST_SECONDS", 25)) * time.Second,

		HTTPBind:    getEnv("MAGBENCH_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("MAGBENCH_HTTP_PORT", 8080),
		MetricsBind: getEnv("MAGBENCH_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("MAGBENCH_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("MAGBENCH_DB_DSN", "magbench.db"),

		TracingEnabled:    getEnvBool("MAGBENCH_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("MAGBENCH_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("MAGBENCH_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.SampleCount < 1 || cfg.SampleCount > protocol.MaxSamples {
		return nil, fmt.Errorf("MAGBENCH_SAMPLE_COUNT must be in [1, %d], got %d", protocol.MaxSamples, cfg.SampleCount)
	}
	if cfg.LysisMinutes < 0 {
		return nil, fmt.Errorf("MAGBENCH_LYSIS_DELAY_MINUTES must not be negative, got %d", cfg.LysisMinutes)
	}
	if cfg.DelayResolution < 0 {
		return nil, fmt.Errorf("MAGBENCH_DELAY_RESOLUTION_SECONDS must not be negative")
	}
	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MAGBENCH_DB_DSN must be provided")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
