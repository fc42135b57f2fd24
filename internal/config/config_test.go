/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleCount != 1 {
		t.Errorf("SampleCount = %d, want 1", cfg.SampleCount)
	}
	if cfg.DelayResolution != time.Minute {
		t.Errorf("DelayResolution = %s, want 1m", cfg.DelayResolution)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Errorf("DBBackend = %s, want sqlite", cfg.DBBackend)
	}
	if cfg.RobotAddr != "" {
		t.Errorf("RobotAddr = %q, want simulator default", cfg.RobotAddr)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MAGBENCH_SAMPLE_COUNT", "12")
	t.Setenv("MAGBENCH_LYSIS_DELAY_MINUTES", "5")
	t.Setenv("MAGBENCH_DEBUG_DRY_RUN", "true")
	t.Setenv("MAGBENCH_ROBOT_ADDR", "http://robot.local:31950")
	t.Setenv("MAGBENCH_DB_BACKEND", "postgres")
	t.Setenv("MAGBENCH_DB_DSN", "host=localhost dbname=magbench")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleCount != 12 {
		t.Errorf("SampleCount = %d, want 12", cfg.SampleCount)
	}
	if cfg.LysisMinutes != 5 {
		t.Errorf("LysisMinutes = %d, want 5", cfg.LysisMinutes)
	}
	if !cfg.DebugDryRun {
		t.Error("DebugDryRun should be true")
	}
	if cfg.RobotAddr != "http://robot.local:31950" {
		t.Errorf("RobotAddr = %q", cfg.RobotAddr)
	}
	if cfg.DBBackend != DatabasePostgres {
		t.Errorf("DBBackend = %s, want postgres", cfg.DBBackend)
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero samples", "MAGBENCH_SAMPLE_COUNT", "0"},
		{"too many samples", "MAGBENCH_SAMPLE_COUNT", "25"},
		{"negative samples", "MAGBENCH_SAMPLE_COUNT", "-3"},
		{"negative lysis delay", "MAGBENCH_LYSIS_DELAY_MINUTES", "-1"},
		{"negative resolution", "MAGBENCH_DELAY_RESOLUTION_SECONDS", "-60"},
		{"unknown backend", "MAGBENCH_DB_BACKEND", "oracle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestBoolParsing(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MAGBENCH_DEBUG_DRY_RUN", tt.value)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.DebugDryRun != tt.want {
				t.Errorf("DebugDryRun with %q = %v, want %v", tt.value, cfg.DebugDryRun, tt.want)
			}
		})
	}
}
