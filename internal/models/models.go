/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ActionKind identifies one equipment operation issued for a sample.
type ActionKind string

const (
	// Timed core actions. ActionLyse is the immediate action of the timed
	// stage; ActionNeutralize is the deferred action owed to each sample a
	// fixed window after its lysis buffer was added.
	ActionLyse       ActionKind = "lyse"
	ActionNeutralize ActionKind = "neutralize"

	// Downstream batch stage actions.
	ActionClearingBeads ActionKind = "clearing_beads"
	ActionClearLysate   ActionKind = "clear_lysate"
	ActionBindBeads     ActionKind = "bind_beads"
	ActionRemoveBinding ActionKind = "remove_binding"
	ActionWash          ActionKind = "wash"
	ActionDryBeads      ActionKind = "dry_beads"
	ActionElute         ActionKind = "elute"
)

// ActionPhase distinguishes how an action was dispatched.
type ActionPhase string

const (
	PhaseImmediate ActionPhase = "immediate"
	PhaseDeferred  ActionPhase = "deferred"
	PhaseStage     ActionPhase = "stage"
)

// SampleState tracks a sample through the timed stage.
type SampleState string

const (
	SamplePendingImmediate SampleState = "pending_immediate"
	SampleImmediateDone    SampleState = "immediate_done"
	SampleDeferredDone     SampleState = "deferred_done"
)

// RunStatus tracks a batch run lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one batch execution of the purification protocol.
type Run struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Protocol    string `gorm:"index"`
	SampleCount int
	Status      RunStatus `gorm:"type:varchar(16);index"`
	Debug       bool
	Error       string `gorm:"type:text"`
	StartedAt   time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SampleResult records the outcome of the timed stage for one sample.
type SampleResult struct {
	ID            string      `gorm:"type:uuid;primaryKey"`
	RunID         string      `gorm:"type:uuid;index"`
	SampleID      int         `gorm:"index"`
	State         SampleState `gorm:"type:varchar(32)"`
	ImmediateAtMS int64
	DeferredAtMS  int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActionLog journals every equipment action issued during a run. DueAtMS is
// zero for actions that were never deferred.
type ActionLog struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	RunID        string `gorm:"type:uuid;index"`
	SampleID     int
	Kind         ActionKind  `gorm:"type:varchar(32);index"`
	Phase        ActionPhase `gorm:"type:varchar(16)"`
	DueAtMS      int64
	ExecutedAtMS int64
	Outcome      string `gorm:"type:varchar(16)"`
	Error        string `gorm:"type:text"`
	CreatedAt    time.Time
}
