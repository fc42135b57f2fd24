/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package runner

import (
	"context"

	"github.com/benchworks/magbench/internal/equipment"
	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/protocol"
	"github.com/benchworks/magbench/internal/scheduler"
	"github.com/benchworks/magbench/internal/telemetry"
)

// PlateWide marks journal entries for actions applied to the whole plate
// (magnet moves, drying) rather than one sample.
const PlateWide = -1

// runStages executes the downstream bead stages after the timed core. Each
// stage applies to every sample before the batch moves on; incubation delays
// are shared across the plate.
func (r *Runner) runStages(ctx context.Context) error {
	stages := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"clearing", r.stageClearing},
		{"binding", r.stageBinding},
		{"wash", r.stageWashes},
		{"dry", r.stageDry},
		{"elution", r.stageElution},
	}
	for _, stage := range stages {
		start := r.clock.Elapsed()
		r.publish(events.EventStageStarted, events.Payload{"run_id": r.runID, "stage": stage.name})
		r.logger.Info().Str("stage", stage.name).Msg("stage starting")
		if err := stage.fn(ctx); err != nil {
			return err
		}
		telemetry.StageDurationSeconds.WithLabelValues(stage.name).Observe((r.clock.Elapsed() - start).Seconds())
		r.publish(events.EventStageCompleted, events.Payload{"run_id": r.runID, "stage": stage.name})
	}
	return nil
}

// stageClearing adds clearing beads to every lysate, incubates, separates on
// the magnet, and moves the cleared supernatant to each sample's bind well.
func (r *Runner) stageClearing(ctx context.Context) error {
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.Transfer(ctx, equipment.Transfer{
			VolumeUL:  r.proto.Volumes.ClearingBeads,
			From:      r.proto.Reagents.ClearingBeads,
			To:        r.proto.LysisWell(i),
			MixBefore: equipment.Mix{Repetitions: r.proto.Mix.Default, VolumeUL: r.proto.MixVolumes.ClearingPre},
			MixAfter:  equipment.Mix{Repetitions: r.proto.Mix.Thorough, VolumeUL: r.proto.MixVolumes.Clearing},
		})
		if err := r.stageDone(models.ActionClearingBeads, i, err); err != nil {
			return err
		}
	}
	if err := r.waitMinutes(ctx, r.proto.Delays.ClearingIncubateMinutes); err != nil {
		return err
	}
	if err := r.engage(ctx); err != nil {
		return err
	}
	if err := r.waitMinutes(ctx, r.proto.Delays.ClearingEngageMinutes); err != nil {
		return err
	}
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.Transfer(ctx, equipment.Transfer{
			VolumeUL: r.proto.Volumes.ClearedLysate,
			From:     r.proto.LysisWell(i),
			To:       r.proto.BindWell(i),
		})
		if err := r.stageDone(models.ActionClearLysate, i, err); err != nil {
			return err
		}
	}
	return r.disengage(ctx)
}

// stageBinding adds M-beads and binding buffer to each cleared lysate,
// incubates, then removes the binding supernatant on the magnet.
func (r *Runner) stageBinding(ctx context.Context) error {
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.Transfer(ctx, equipment.Transfer{
			VolumeUL:  r.proto.Volumes.MBeads,
			From:      r.proto.Reagents.MBeads,
			To:        r.proto.BindWell(i),
			MixBefore: equipment.Mix{Repetitions: r.proto.Mix.Default, VolumeUL: r.proto.MixVolumes.MBeadsPre},
		})
		if err == nil {
			err = r.eq.Transfer(ctx, equipment.Transfer{
				VolumeUL: r.proto.Volumes.Binding,
				From:     r.proto.Reagents.Binding,
				To:       r.proto.BindWell(i),
				MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Thorough, VolumeUL: r.proto.MixVolumes.Binding},
			})
		}
		if err := r.stageDone(models.ActionBindBeads, i, err); err != nil {
			return err
		}
	}
	if err := r.waitMinutes(ctx, r.proto.Delays.BindIncubateMinutes); err != nil {
		return err
	}
	if err := r.engage(ctx); err != nil {
		return err
	}
	if err := r.waitMinutes(ctx, r.proto.Delays.WashEngageMinutes); err != nil {
		return err
	}
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.RemoveToWaste(ctx, r.proto.Volumes.BindingWaste, r.proto.BindWell(i))
		if err := r.stageDone(models.ActionRemoveBinding, i, err); err != nil {
			return err
		}
	}
	return r.disengage(ctx)
}

// stageWashes runs the wash cycles: the first half with ERB buffer, the rest
// with AQ, each cycle resuspending, separating, and discarding supernatant.
func (r *Runner) stageWashes(ctx context.Context) error {
	for w := 0; w < r.proto.WashCount; w++ {
		reagent := r.proto.Reagents.WashERB
		if w >= r.proto.WashCount/2 {
			reagent = r.proto.Reagents.WashAQ
		}
		for i := 0; i < r.opts.SampleCount; i++ {
			err := r.eq.Transfer(ctx, equipment.Transfer{
				VolumeUL: r.proto.Volumes.Wash,
				From:     reagent,
				To:       r.proto.BindWell(i),
				MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Thorough, VolumeUL: r.proto.MixVolumes.Wash},
			})
			if err := r.stageDone(models.ActionWash, i, err); err != nil {
				return err
			}
		}
		if err := r.waitMinutes(ctx, r.proto.Delays.WashResuspendMinutes); err != nil {
			return err
		}
		if err := r.engage(ctx); err != nil {
			return err
		}
		if err := r.waitMinutes(ctx, r.proto.Delays.WashEngageMinutes); err != nil {
			return err
		}
		for i := 0; i < r.opts.SampleCount; i++ {
			err := r.eq.RemoveToWaste(ctx, r.proto.Volumes.Wash, r.proto.BindWell(i))
			if err := r.stageDone(models.ActionWash, i, err); err != nil {
				return err
			}
		}
		if err := r.disengage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// stageDry lets the beads air-dry.
func (r *Runner) stageDry(ctx context.Context) error {
	if err := r.waitMinutes(ctx, r.proto.Delays.DryMinutes); err != nil {
		return err
	}
	return r.stageDone(models.ActionDryBeads, PlateWide, nil)
}

// stageElution resuspends the dried beads in elution buffer, separates, and
// transfers each eluate to its destination tube.
func (r *Runner) stageElution(ctx context.Context) error {
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.Transfer(ctx, equipment.Transfer{
			VolumeUL: r.proto.Volumes.Elution,
			From:     r.proto.Reagents.Elution,
			To:       r.proto.BindWell(i),
			MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Thorough, VolumeUL: r.proto.MixVolumes.Elution},
		})
		if err := r.stageDone(models.ActionElute, i, err); err != nil {
			return err
		}
	}
	if err := r.engage(ctx); err != nil {
		return err
	}
	if err := r.waitMinutes(ctx, r.proto.Delays.EluteEngageMinutes); err != nil {
		return err
	}
	for i := 0; i < r.opts.SampleCount; i++ {
		err := r.eq.Transfer(ctx, equipment.Transfer{
			VolumeUL: r.proto.Volumes.Elution,
			From:     r.proto.BindWell(i),
			To:       r.proto.EluateWell(i),
		})
		if err := r.stageDone(models.ActionElute, i, err); err != nil {
			return err
		}
	}
	return r.disengage(ctx)
}

// stageDone journals a stage action and converts equipment errors into the
// run-level failure type. A nil err journals success and returns nil.
func (r *Runner) stageDone(kind models.ActionKind, sampleID int, err error) error {
	exec := scheduler.Execution{
		SampleID:   sampleID,
		Kind:       kind,
		Phase:      models.PhaseStage,
		ExecutedAt: r.clock.Elapsed(),
	}
	if err != nil {
		r.journal(exec, "error", err.Error())
		telemetry.ActionsTotal.WithLabelValues(string(kind), string(models.PhaseStage), "error").Inc()
		r.publish(events.EventEquipmentFault, events.Payload{
			"run_id":    r.runID,
			"sample_id": sampleID,
			"kind":      string(kind),
			"error":     err.Error(),
		})
		return &scheduler.EquipmentError{SampleID: sampleID, Kind: kind, Phase: models.PhaseStage, Err: err}
	}
	r.journal(exec, "ok", "")
	telemetry.ActionsTotal.WithLabelValues(string(kind), string(models.PhaseStage), "ok").Inc()
	if r.Observe != nil {
		r.Observe(exec)
	}
	return nil
}

func (r *Runner) waitMinutes(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return nil
	}
	return r.clock.Wait(ctx, protocol.Minutes(minutes))
}

func (r *Runner) engage(ctx context.Context) error {
	return r.stageErr(r.eq.Engage(ctx, r.proto.EngageHeightMM))
}

func (r *Runner) disengage(ctx context.Context) error {
	return r.stageErr(r.eq.Disengage(ctx))
}

func (r *Runner) stageErr(err error) error {
	if err == nil {
		return nil
	}
	return &scheduler.EquipmentError{SampleID: PlateWide, Kind: "magnet", Phase: models.PhaseStage, Err: err}
}
