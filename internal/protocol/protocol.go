/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package protocol defines the liquid-handling protocol: reagent locations,
// transfer volumes, mix counts, and incubation delays. Definitions load from
// YAML; Default mirrors the NucleoMag plasmid purification kit parameters.
package protocol

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxSamples is the plate capacity for one batch: 24 processing wells plus 24
// binding wells fit one 96-well deep plate with room for overflow mixing.
const MaxSamples = 24

// Minutes converts a whole-minute protocol delay to a duration.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// MixSpec is a repetition count and volume for pipette mixing.
type MixSpec struct {
	Default  int `yaml:"default"`
	Thorough int `yaml:"thorough"`
}

// Reagents maps reagent roles to source tube wells.
type Reagents struct {
	Resuspension   string `yaml:"resuspension"`
	Lysis          string `yaml:"lysis"`
	Neutralization string `yaml:"neutralization"`
	ClearingBeads  string `yaml:"clearing_beads"`
	MBeads         string `yaml:"m_beads"`
	Binding        string `yaml:"binding"`
	WashERB        string `yaml:"wash_erb"`
	WashAQ         string `yaml:"wash_aq"`
	Elution        string `yaml:"elution"`
}

// Volumes are transfer volumes in microliters.
type Volumes struct {
	Resuspension   float64 `yaml:"resuspension"`
	Lysis          float64 `yaml:"lysis"`
	Neutralization float64 `yaml:"neutralization"`
	ClearingBeads  float64 `yaml:"clearing_beads"`
	ClearedLysate  float64 `yaml:"cleared_lysate"`
	MBeads         float64 `yaml:"m_beads"`
	Binding        float64 `yaml:"binding"`
	BindingWaste   float64 `yaml:"binding_waste"`
	Wash           float64 `yaml:"wash"`
	Elution        float64 `yaml:"elution"`
}

// MixVolumes are pipette mixing volumes in microliters, per step. The Pre
// variants apply to mix-before steps that resuspend settled beads in their
// source tube.
type MixVolumes struct {
	Resuspension   float64 `yaml:"resuspension"`
	Lysis          float64 `yaml:"lysis"`
	Neutralization float64 `yaml:"neutralization"`
	ClearingPre    float64 `yaml:"clearing_pre"`
	Clearing       float64 `yaml:"clearing"`
	MBeadsPre      float64 `yaml:"m_beads_pre"`
	Binding        float64 `yaml:"binding"`
	Wash           float64 `yaml:"wash"`
	Elution        float64 `yaml:"elution"`
}

// Delays are protocol incubation windows in whole minutes. LysisMinutes is the
// fixed window between adding lysis buffer and neutralizing, enforced
// per-sample by the batch scheduler; the rest apply batch-wide.
type Delays struct {
	LysisMinutes            int `yaml:"lysis_minutes"`
	ClearingIncubateMinutes int `yaml:"clearing_incubate_minutes"`
	ClearingEngageMinutes   int `yaml:"clearing_engage_minutes"`
	BindIncubateMinutes     int `yaml:"bind_incubate_minutes"`
	WashResuspendMinutes    int `yaml:"wash_resuspend_minutes"`
	WashEngageMinutes       int `yaml:"wash_engage_minutes"`
	DryMinutes              int `yaml:"dry_minutes"`
	EluteEngageMinutes      int `yaml:"elute_engage_minutes"`
}

// Definition is a complete protocol parameter set.
type Definition struct {
	Name           string     `yaml:"name"`
	EngageHeightMM float64    `yaml:"engage_height_mm"`
	WashCount      int        `yaml:"wash_count"`
	Mix            MixSpec    `yaml:"mix"`
	Reagents       Reagents   `yaml:"reagents"`
	Volumes        Volumes    `yaml:"volumes_ul"`
	MixVolumes     MixVolumes `yaml:"mix_volumes_ul"`
	Delays         Delays     `yaml:"delays"`
}

// Default returns the built-in NucleoMag plasmid purification definition.
func Default() *Definition {
	return &Definition{
		Name:           "nucleomag-plasmid",
		EngageHeightMM: 3,
		WashCount:      4,
		Mix:            MixSpec{Default: 5, Thorough: 10},
		Reagents: Reagents{
			Resuspension:   "A1",
			Lysis:          "A2",
			Neutralization: "A3",
			ClearingBeads:  "A4",
			MBeads:         "A5",
			Binding:        "A6",
			WashERB:        "B1",
			WashAQ:         "B2",
			Elution:        "B3",
		},
		Volumes: Volumes{
			Resuspension:   90,
			Lysis:          120,
			Neutralization: 120,
			ClearingBeads:  35,
			ClearedLysate:  365,
			MBeads:         20,
			Binding:        390,
			BindingWaste:   775,
			Wash:           900,
			Elution:        100,
		},
		MixVolumes: MixVolumes{
			Resuspension:   50,
			Lysis:          100,
			Neutralization: 150,
			ClearingPre:    20,
			Clearing:       200,
			MBeadsPre:      10,
			Binding:        400,
			Wash:           500,
			Elution:        50,
		},
		Delays: Delays{
			LysisMinutes:            2,
			ClearingIncubateMinutes: 1,
			ClearingEngageMinutes:   1,
			BindIncubateMinutes:     5,
			WashResuspendMinutes:    5,
			WashEngageMinutes:       1,
			DryMinutes:              15,
			EluteEngageMinutes:      5,
		},
	}
}

// Load reads and validates a protocol definition from a YAML file. Unset
// fields fall back to the built-in default.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol file: %w", err)
	}
	def := Default()
	if err := yaml.Unmarshal(raw, def); err != nil {
		return nil, fmt.Errorf("parse protocol file: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// Validate rejects definitions the equipment cannot execute. Delays may be
// zero (the debug dry-run path) but never negative.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("protocol name must be set")
	}
	if d.EngageHeightMM <= 0 {
		return fmt.Errorf("engage height must be positive, got %v", d.EngageHeightMM)
	}
	if d.WashCount < 1 {
		return fmt.Errorf("wash count must be at least 1, got %d", d.WashCount)
	}
	if d.Mix.Default < 1 || d.Mix.Thorough < 1 {
		return fmt.Errorf("mix counts must be at least 1")
	}
	wells := map[string]string{
		"resuspension":   d.Reagents.Resuspension,
		"lysis":          d.Reagents.Lysis,
		"neutralization": d.Reagents.Neutralization,
		"clearing_beads": d.Reagents.ClearingBeads,
		"m_beads":        d.Reagents.MBeads,
		"binding":        d.Reagents.Binding,
		"wash_erb":       d.Reagents.WashERB,
		"wash_aq":        d.Reagents.WashAQ,
		"elution":        d.Reagents.Elution,
	}
	seen := make(map[string]string, len(wells))
	for role, well := range wells {
		if well == "" {
			return fmt.Errorf("reagent %s has no source well", role)
		}
		if prev, dup := seen[well]; dup {
			return fmt.Errorf("reagents %s and %s share source well %s", prev, role, well)
		}
		seen[well] = role
	}
	vols := map[string]float64{
		"resuspension":   d.Volumes.Resuspension,
		"lysis":          d.Volumes.Lysis,
		"neutralization": d.Volumes.Neutralization,
		"clearing_beads": d.Volumes.ClearingBeads,
		"cleared_lysate": d.Volumes.ClearedLysate,
		"m_beads":        d.Volumes.MBeads,
		"binding":        d.Volumes.Binding,
		"binding_waste":  d.Volumes.BindingWaste,
		"wash":           d.Volumes.Wash,
		"elution":        d.Volumes.Elution,
	}
	for name, v := range vols {
		if v <= 0 {
			return fmt.Errorf("volume %s must be positive, got %v", name, v)
		}
	}
	mixVols := map[string]float64{
		"resuspension":   d.MixVolumes.Resuspension,
		"lysis":          d.MixVolumes.Lysis,
		"neutralization": d.MixVolumes.Neutralization,
		"clearing_pre":   d.MixVolumes.ClearingPre,
		"clearing":       d.MixVolumes.Clearing,
		"m_beads_pre":    d.MixVolumes.MBeadsPre,
		"binding":        d.MixVolumes.Binding,
		"wash":           d.MixVolumes.Wash,
		"elution":        d.MixVolumes.Elution,
	}
	for name, v := range mixVols {
		if v <= 0 {
			return fmt.Errorf("mix volume %s must be positive, got %v", name, v)
		}
	}
	delays := map[string]int{
		"lysis_minutes":             d.Delays.LysisMinutes,
		"clearing_incubate_minutes": d.Delays.ClearingIncubateMinutes,
		"clearing_engage_minutes":   d.Delays.ClearingEngageMinutes,
		"bind_incubate_minutes":     d.Delays.BindIncubateMinutes,
		"wash_resuspend_minutes":    d.Delays.WashResuspendMinutes,
		"wash_engage_minutes":       d.Delays.WashEngageMinutes,
		"dry_minutes":               d.Delays.DryMinutes,
		"elute_engage_minutes":      d.Delays.EluteEngageMinutes,
	}
	for name, v := range delays {
		if v < 0 {
			return fmt.Errorf("delay %s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// Zeroed returns a copy with every delay set to zero, matching the original
// protocol's debug switch for dry runs.
func (d *Definition) Zeroed() *Definition {
	out := *d
	out.Delays = Delays{}
	return &out
}

// LysisWindow is the fixed per-sample window between lysis and
// neutralization.
func (d *Definition) LysisWindow() time.Duration {
	return Minutes(d.Delays.LysisMinutes)
}

const plateRows = "ABCDEFGH"

// plateWell names the nth well of a 96-well plate in column-major order
// (A1, B1, ... H1, A2, ...), matching how the robot iterates wells.
func plateWell(n int) string {
	return fmt.Sprintf("%c%d", plateRows[n%len(plateRows)], n/len(plateRows)+1)
}

// LysisWell is the magnetic-plate well where sample i is resuspended, lysed,
// neutralized, and cleared. Columns 1-3 of the plate.
func (d *Definition) LysisWell(i int) string {
	return plateWell(i)
}

// BindWell is the magnetic-plate well where sample i's cleared lysate binds to
// M-beads and is washed and eluted. Columns 4-6 of the plate.
func (d *Definition) BindWell(i int) string {
	return plateWell(i + MaxSamples)
}

const eluateRows = "ABCD"

// EluateWell is the tube-rack position receiving sample i's purified plasmid.
func (d *Definition) EluateWell(i int) string {
	return fmt.Sprintf("%c%d", eluateRows[i%len(eluateRows)], i/len(eluateRows)+1)
}
