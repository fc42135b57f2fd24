/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benchworks/magbench/internal/models"
)

// ErrInvariant marks scheduling invariant violations: a non-empty queue at
// declared completion, a duplicate pending task for one sample, or a sample
// that never reached its terminal state. These indicate programming defects
// and always fail the run loudly.
var ErrInvariant = errors.New("scheduling invariant violation")

// ErrConfig marks configuration rejected before the run starts. Values are
// never clamped into range silently.
var ErrConfig = errors.New("invalid scheduler configuration")

// EquipmentError reports a fatal physical failure. The run aborts immediately
// and Residual lists every deferred task still owed at failure time, so the
// operator can see which samples never received their neutralization.
type EquipmentError struct {
	SampleID int
	Kind     models.ActionKind
	Phase    models.ActionPhase
	Residual []Task
	Err      error
}

func (e *EquipmentError) Error() string {
	msg := fmt.Sprintf("equipment failure on sample %d action %s (%s): %v", e.SampleID, e.Kind, e.Phase, e.Err)
	if len(e.Residual) == 0 {
		return msg
	}
	parts := make([]string, len(e.Residual))
	for i, t := range e.Residual {
		parts[i] = fmt.Sprintf("sample %d %s due %s", t.SampleID, t.Kind, t.Due)
	}
	return msg + "; residual: " + strings.Join(parts, ", ")
}

func (e *EquipmentError) Unwrap() error { return e.Err }
