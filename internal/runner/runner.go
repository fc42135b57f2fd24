/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runner executes one full purification run: the time-critical
// lysis/neutralization stage through the batch scheduler, then the downstream
// bead stages batch-wide. It journals every action and publishes run events.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benchworks/magbench/internal/equipment"
	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/labclock"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/protocol"
	"github.com/benchworks/magbench/internal/scheduler"
	"github.com/benchworks/magbench/internal/telemetry"
)

// Options parameterize one run.
type Options struct {
	SampleCount    int
	WaitResolution time.Duration
	Debug          bool
}

// Runner executes a single batch run. Construct a fresh Runner per run.
type Runner struct {
	runID  string
	proto  *protocol.Definition
	opts   Options
	eq     equipment.Controller
	clock  labclock.Clock
	db     *gorm.DB    // nil disables journaling
	bus    *events.Bus // nil disables events
	logger zerolog.Logger

	// Observe, when set, receives every executed action including stage
	// actions. Used by the plan command to collect the projected timeline.
	Observe func(scheduler.Execution)
}

// New creates a runner. db and bus may be nil.
func New(proto *protocol.Definition, opts Options, eq equipment.Controller, clock labclock.Clock, database *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Runner {
	runID := uuid.NewString()
	return &Runner{
		runID:  runID,
		proto:  proto,
		opts:   opts,
		eq:     eq,
		clock:  clock,
		db:     database,
		bus:    bus,
		logger: logger.With().Str("component", "runner").Str("run_id", runID).Logger(),
	}
}

// RunID returns the run identifier assigned at construction.
func (r *Runner) RunID() string { return r.runID }

// Execute drives the run to completion or first failure. The returned Run
// reflects the final persisted state.
func (r *Runner) Execute(ctx context.Context) (*models.Run, error) {
	run := &models.Run{
		ID:          r.runID,
		Protocol:    r.proto.Name,
		SampleCount: r.opts.SampleCount,
		Status:      models.RunRunning,
		Debug:       r.opts.Debug,
		StartedAt:   time.Now().UTC(),
	}
	if err := r.createRun(run); err != nil {
		return nil, err
	}
	r.publish(events.EventRunStarted, events.Payload{
		"run_id":       run.ID,
		"protocol":     run.Protocol,
		"sample_count": run.SampleCount,
	})
	r.logger.Info().Int("samples", run.SampleCount).Str("protocol", run.Protocol).Msg("run starting")

	core, err := scheduler.New(scheduler.Config{
		SampleCount:    r.opts.SampleCount,
		Window:         r.proto.LysisWindow(),
		ImmediateKind:  models.ActionLyse,
		DeferredKind:   models.ActionNeutralize,
		WaitResolution: r.opts.WaitResolution,
	}, r.clock, r, r.logger)
	if err != nil {
		return r.failRun(run, err, nil)
	}
	core.SetObserver(r.recordExecution)

	if err := core.Run(ctx); err != nil {
		return r.failRun(run, err, core.Residual())
	}

	if err := r.runStages(ctx); err != nil {
		return r.failRun(run, err, nil)
	}

	now := time.Now().UTC()
	run.Status = models.RunCompleted
	run.FinishedAt = &now
	if err := r.saveRun(run); err != nil {
		return run, err
	}
	telemetry.RunsTotal.WithLabelValues(string(models.RunCompleted)).Inc()
	r.publish(events.EventRunCompleted, events.Payload{
		"run_id":  run.ID,
		"elapsed": r.clock.Elapsed().String(),
	})
	r.logger.Info().Dur("elapsed", r.clock.Elapsed()).Msg("run completed")
	return run, nil
}

// RunImmediate resuspends sample i's pellet and adds lysis buffer. Part of
// the scheduler's ActionRunner contract.
func (r *Runner) RunImmediate(ctx context.Context, kind models.ActionKind, sampleID int) error {
	if kind != models.ActionLyse {
		return fmt.Errorf("unknown immediate action %s", kind)
	}
	well := r.proto.LysisWell(sampleID)
	if err := r.eq.Transfer(ctx, equipment.Transfer{
		VolumeUL: r.proto.Volumes.Resuspension,
		From:     r.proto.Reagents.Resuspension,
		To:       well,
		MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Thorough, VolumeUL: r.proto.MixVolumes.Resuspension},
	}); err != nil {
		return err
	}
	return r.eq.Transfer(ctx, equipment.Transfer{
		VolumeUL: r.proto.Volumes.Lysis,
		From:     r.proto.Reagents.Lysis,
		To:       well,
		MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Default, VolumeUL: r.proto.MixVolumes.Lysis},
	})
}

// RunDeferred neutralizes sample i's lysate. Part of the scheduler's
// ActionRunner contract.
func (r *Runner) RunDeferred(ctx context.Context, kind models.ActionKind, sampleID int) error {
	if kind != models.ActionNeutralize {
		return fmt.Errorf("unknown deferred action %s", kind)
	}
	return r.eq.Transfer(ctx, equipment.Transfer{
		VolumeUL: r.proto.Volumes.Neutralization,
		From:     r.proto.Reagents.Neutralization,
		To:       r.proto.LysisWell(sampleID),
		MixAfter: equipment.Mix{Repetitions: r.proto.Mix.Default, VolumeUL: r.proto.MixVolumes.Neutralization},
	})
}

func (r *Runner) recordExecution(e scheduler.Execution) {
	r.journal(e, "ok", "")
	if r.db != nil {
		updates := map[string]any{"state": models.SampleImmediateDone, "immediate_at_ms": e.ExecutedAt.Milliseconds()}
		if e.Phase == models.PhaseDeferred {
			updates = map[string]any{"state": models.SampleDeferredDone, "deferred_at_ms": e.ExecutedAt.Milliseconds()}
		}
		if err := r.db.Model(&models.SampleResult{}).
			Where("run_id = ? AND sample_id = ?", r.runID, e.SampleID).
			Updates(updates).Error; err != nil {
			r.logger.Warn().Err(err).Int("sample", e.SampleID).Msg("failed to update sample result")
		}
	}
	r.publish(events.EventActionExecuted, events.Payload{
		"run_id":      r.runID,
		"sample_id":   e.SampleID,
		"kind":        string(e.Kind),
		"phase":       string(e.Phase),
		"due_ms":      e.Due.Milliseconds(),
		"executed_ms": e.ExecutedAt.Milliseconds(),
	})
	if r.Observe != nil {
		r.Observe(e)
	}
}

func (r *Runner) journal(e scheduler.Execution, outcome, errMsg string) {
	if r.db == nil {
		return
	}
	entry := models.ActionLog{
		ID:           uuid.NewString(),
		RunID:        r.runID,
		SampleID:     e.SampleID,
		Kind:         e.Kind,
		Phase:        e.Phase,
		DueAtMS:      e.Due.Milliseconds(),
		ExecutedAtMS: e.ExecutedAt.Milliseconds(),
		Outcome:      outcome,
		Error:        errMsg,
	}
	if err := r.db.Create(&entry).Error; err != nil {
		r.logger.Warn().Err(err).Msg("failed to journal action")
	}
}

func (r *Runner) createRun(run *models.Run) error {
	if r.db == nil {
		return nil
	}
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("create run record: %w", err)
	}
	samples := make([]models.SampleResult, run.SampleCount)
	for i := range samples {
		samples[i] = models.SampleResult{
			ID:       uuid.NewString(),
			RunID:    run.ID,
			SampleID: i,
			State:    models.SamplePendingImmediate,
		}
	}
	if err := r.db.Create(&samples).Error; err != nil {
		return fmt.Errorf("create sample records: %w", err)
	}
	return nil
}

func (r *Runner) saveRun(run *models.Run) error {
	if r.db == nil {
		return nil
	}
	if err := r.db.Save(run).Error; err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	return nil
}

func (r *Runner) failRun(run *models.Run, cause error, residual []scheduler.Task) (*models.Run, error) {
	now := time.Now().UTC()
	run.Status = models.RunFailed
	run.Error = cause.Error()
	run.FinishedAt = &now
	if err := r.saveRun(run); err != nil {
		r.logger.Error().Err(err).Msg("failed to persist failed run")
	}
	telemetry.RunsTotal.WithLabelValues(string(models.RunFailed)).Inc()

	payload := events.Payload{"run_id": run.ID, "error": cause.Error()}
	if len(residual) > 0 {
		pending := make([]map[string]any, len(residual))
		for i, t := range residual {
			pending[i] = map[string]any{"sample_id": t.SampleID, "kind": string(t.Kind), "due_ms": t.Due.Milliseconds()}
		}
		payload["residual"] = pending
	}
	r.publish(events.EventRunFailed, payload)
	r.logger.Error().Err(cause).Int("residual", len(residual)).Msg("run failed")
	return run, cause
}

func (r *Runner) publish(eventType events.EventType, payload events.Payload) {
	if r.bus != nil {
		r.bus.Publish(eventType, payload)
	}
}
