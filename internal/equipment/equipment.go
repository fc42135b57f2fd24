/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package equipment abstracts the physical liquid handler. All commands run on
// one robot arm, so every Controller implementation is strictly serialized:
// a command returns only after the physical motion has finished or failed.
package equipment

import (
	"context"
	"errors"
	"fmt"
)

// ErrCommandFailed wraps any physical command failure. Per protocol policy
// commands are never retried automatically: a failed aspirate or a dropped tip
// needs operator judgment before the run can be salvaged.
var ErrCommandFailed = errors.New("equipment command failed")

// Mix is an optional pipette mixing step attached to a transfer.
type Mix struct {
	Repetitions int
	VolumeUL    float64
}

// Transfer moves liquid from a source well to a destination well, optionally
// mixing before aspirating or after dispensing.
type Transfer struct {
	VolumeUL  float64
	From      string
	To        string
	MixBefore Mix
	MixAfter  Mix
}

// Controller is the capability surface the protocol consumes. Implementations
// must be fail-fast: the first physical error aborts the command and is
// returned unretryable.
type Controller interface {
	// Transfer executes one pipette transfer with its attached mixes.
	Transfer(ctx context.Context, t Transfer) error
	// RemoveToWaste aspirates the given volume from a well into waste using
	// a fresh tip.
	RemoveToWaste(ctx context.Context, volumeUL float64, from string) error
	// Engage raises the magnet to the given height above the plate base.
	Engage(ctx context.Context, heightMM float64) error
	// Disengage lowers the magnet.
	Disengage(ctx context.Context) error
}

// CommandError carries the failing command name for diagnostics.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is makes every CommandError match ErrCommandFailed.
func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }
