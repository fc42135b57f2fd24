/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package protocol

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default protocol fails validation: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty name", func(d *Definition) { d.Name = "" }},
		{"zero engage height", func(d *Definition) { d.EngageHeightMM = 0 }},
		{"zero wash count", func(d *Definition) { d.WashCount = 0 }},
		{"zero mix count", func(d *Definition) { d.Mix.Default = 0 }},
		{"missing reagent well", func(d *Definition) { d.Reagents.Lysis = "" }},
		{"duplicate reagent wells", func(d *Definition) { d.Reagents.Lysis = d.Reagents.Elution }},
		{"zero volume", func(d *Definition) { d.Volumes.Neutralization = 0 }},
		{"negative volume", func(d *Definition) { d.Volumes.Wash = -1 }},
		{"zero mix volume", func(d *Definition) { d.MixVolumes.Binding = 0 }},
		{"negative delay", func(d *Definition) { d.Delays.DryMinutes = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := Default()
			tt.mutate(def)
			if err := def.Validate(); err == nil {
				t.Error("Validate accepted an invalid definition")
			}
		})
	}
}

func TestZeroDelaysAreValid(t *testing.T) {
	def := Default()
	zeroed := def.Zeroed()
	if err := zeroed.Validate(); err != nil {
		t.Fatalf("zeroed protocol fails validation: %v", err)
	}
	if zeroed.LysisWindow() != 0 {
		t.Errorf("zeroed lysis window = %s, want 0", zeroed.LysisWindow())
	}
	if def.Delays.LysisMinutes == 0 {
		t.Error("Zeroed mutated the source definition")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.yaml")
	content := []byte("name: custom\ndelays:\n  lysis_minutes: 7\nvolumes_ul:\n  lysis: 150\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def.Name != "custom" {
		t.Errorf("name = %q, want custom", def.Name)
	}
	if def.LysisWindow() != 7*time.Minute {
		t.Errorf("lysis window = %s, want 7m", def.LysisWindow())
	}
	if def.Volumes.Lysis != 150 {
		t.Errorf("lysis volume = %v, want 150", def.Volumes.Lysis)
	}
	// Untouched fields keep their defaults.
	if def.Volumes.Wash != 900 {
		t.Errorf("wash volume = %v, want default 900", def.Volumes.Wash)
	}
	if def.WashCount != 4 {
		t.Errorf("wash count = %d, want default 4", def.WashCount)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.yaml")
	if err := os.WriteFile(path, []byte("wash_count: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted an invalid definition")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func TestWellLayout(t *testing.T) {
	def := Default()

	tests := []struct {
		sample int
		lysis  string
		bind   string
		eluate string
	}{
		{0, "A1", "A4", "A1"},
		{1, "B1", "B4", "B1"},
		{7, "H1", "H4", "D2"},
		{8, "A2", "A5", "A3"},
		{23, "H3", "H6", "D6"},
	}
	for _, tt := range tests {
		if got := def.LysisWell(tt.sample); got != tt.lysis {
			t.Errorf("LysisWell(%d) = %s, want %s", tt.sample, got, tt.lysis)
		}
		if got := def.BindWell(tt.sample); got != tt.bind {
			t.Errorf("BindWell(%d) = %s, want %s", tt.sample, got, tt.bind)
		}
		if got := def.EluateWell(tt.sample); got != tt.eluate {
			t.Errorf("EluateWell(%d) = %s, want %s", tt.sample, got, tt.eluate)
		}
	}
}

func TestWellsDisjointAcrossSamples(t *testing.T) {
	def := Default()
	seen := make(map[string]int)
	for i := 0; i < MaxSamples; i++ {
		for _, well := range []string{def.LysisWell(i), def.BindWell(i)} {
			if prev, dup := seen[well]; dup {
				t.Errorf("well %s used by samples %d and %d", well, prev, i)
			}
			seen[well] = i
		}
	}
}
