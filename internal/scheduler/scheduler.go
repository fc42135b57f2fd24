/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler implements the per-sample time-critical core of a batch
// run. Each sample's immediate action starts a fixed incubation window after
// which its deferred action becomes due; the scheduler interleaves due
// deferred work into the gaps between later samples' immediate actions so the
// single robot arm never idles while deferred work is ready.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchworks/magbench/internal/labclock"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/protocol"
	"github.com/benchworks/magbench/internal/taskqueue"
	"github.com/benchworks/magbench/internal/telemetry"
)

// Task is one deferred action owed to exactly one sample. Tasks are immutable
// and consumed exactly once.
type Task struct {
	Due      time.Duration
	Kind     models.ActionKind
	SampleID int
}

// Execution describes one dispatched action, reported to the observer for
// journaling. Due is zero for immediate actions.
type Execution struct {
	SampleID   int
	Kind       models.ActionKind
	Phase      models.ActionPhase
	Due        time.Duration
	ExecutedAt time.Duration
}

// ActionRunner is the equipment capability the scheduler drives. Both calls
// block until the physical operation finishes and are fail-fast.
type ActionRunner interface {
	RunImmediate(ctx context.Context, kind models.ActionKind, sampleID int) error
	RunDeferred(ctx context.Context, kind models.ActionKind, sampleID int) error
}

// Config parameterizes one batch. Window is the fixed delay between a
// sample's immediate action and its deferred action becoming due.
// WaitResolution, when positive, rounds final-drain waits up to that
// granularity; the protocol delay primitive historically accepts whole
// minutes only, so waiting slightly past due is intended behavior.
type Config struct {
	SampleCount    int
	Window         time.Duration
	ImmediateKind  models.ActionKind
	DeferredKind   models.ActionKind
	WaitResolution time.Duration
}

// Validate rejects configurations before any equipment is touched.
func (c Config) Validate() error {
	if c.SampleCount < 1 || c.SampleCount > protocol.MaxSamples {
		return fmt.Errorf("%w: sample count %d outside [1, %d]", ErrConfig, c.SampleCount, protocol.MaxSamples)
	}
	if c.Window < 0 {
		return fmt.Errorf("%w: window %s is negative", ErrConfig, c.Window)
	}
	if c.WaitResolution < 0 {
		return fmt.Errorf("%w: wait resolution %s is negative", ErrConfig, c.WaitResolution)
	}
	if c.ImmediateKind == "" || c.DeferredKind == "" {
		return fmt.Errorf("%w: action kinds must be set", ErrConfig)
	}
	return nil
}

// Scheduler drives one batch run. Single-threaded: one physical arm executes
// every action, so there is no concurrency here, only reordering of when
// logically independent work is issued.
type Scheduler struct {
	cfg      Config
	clock    labclock.Clock
	runner   ActionRunner
	queue    *taskqueue.Queue[Task]
	states   []models.SampleState
	observer func(Execution)
	logger   zerolog.Logger
	ran      bool
}

// New validates cfg and constructs a scheduler. A scheduler runs exactly one
// batch; construct a fresh one per run.
func New(cfg Config, clock labclock.Clock, runner ActionRunner, logger zerolog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	states := make([]models.SampleState, cfg.SampleCount)
	for i := range states {
		states[i] = models.SamplePendingImmediate
	}
	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		runner: runner,
		queue:  taskqueue.New[Task](),
		states: states,
		logger: logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// SetObserver registers a callback invoked after every successful action.
func (s *Scheduler) SetObserver(fn func(Execution)) { s.observer = fn }

// States returns the per-sample state vector.
func (s *Scheduler) States() []models.SampleState {
	out := make([]models.SampleState, len(s.states))
	copy(out, s.states)
	return out
}

// Residual returns tasks still queued, earliest first. Non-empty only after a
// failed or aborted run.
func (s *Scheduler) Residual() []Task {
	pending := s.queue.Snapshot()
	out := make([]Task, len(pending))
	for i, p := range pending {
		out[i] = p.Value
	}
	return out
}

// Run executes the batch: an interleaved issue phase followed by a final
// drain. On equipment failure the queue is left intact for diagnostics.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.ran {
		return fmt.Errorf("%w: scheduler already ran", ErrInvariant)
	}
	s.ran = true

	ctx, span := telemetry.StartSpan(ctx, "scheduler", "Run")
	defer span.End()

	s.logger.Info().
		Int("samples", s.cfg.SampleCount).
		Dur("window", s.cfg.Window).
		Msg("batch run starting")

	// Phase 1: issue each sample's immediate action, folding any already-due
	// deferred work into the gap before it.
	for i := 0; i < s.cfg.SampleCount; i++ {
		if err := s.drainDue(ctx); err != nil {
			return err
		}
		if s.states[i] != models.SamplePendingImmediate {
			return fmt.Errorf("%w: sample %d in state %s before immediate action", ErrInvariant, i, s.states[i])
		}
		if err := s.runner.RunImmediate(ctx, s.cfg.ImmediateKind, i); err != nil {
			telemetry.ActionsTotal.WithLabelValues(string(s.cfg.ImmediateKind), string(models.PhaseImmediate), "error").Inc()
			return s.equipmentFailure(i, s.cfg.ImmediateKind, models.PhaseImmediate, err)
		}
		executedAt := s.clock.Elapsed()
		s.states[i] = models.SampleImmediateDone
		telemetry.ActionsTotal.WithLabelValues(string(s.cfg.ImmediateKind), string(models.PhaseImmediate), "ok").Inc()
		s.notify(Execution{SampleID: i, Kind: s.cfg.ImmediateKind, Phase: models.PhaseImmediate, ExecutedAt: executedAt})

		due := s.clock.Elapsed() + s.cfg.Window
		s.queue.Push(due, Task{Due: due, Kind: s.cfg.DeferredKind, SampleID: i})
		telemetry.QueueDepth.Set(float64(s.queue.Len()))
		s.logger.Debug().Int("sample", i).Dur("due", due).Msg("deferred action scheduled")
	}

	// Phase 2: residual drain. Block only as long as the earliest task needs.
	for !s.queue.Empty() {
		_, due, _ := s.queue.Peek()
		if remaining := due - s.clock.Elapsed(); remaining > 0 {
			wait := remaining
			if s.cfg.WaitResolution > 0 {
				wait = roundUp(remaining, s.cfg.WaitResolution)
			}
			s.logger.Info().Dur("wait", wait).Int("pending", s.queue.Len()).Msg("waiting for next deferred action")
			telemetry.BlockingWaitSeconds.Add(wait.Seconds())
			if err := s.clock.Wait(ctx, wait); err != nil {
				return fmt.Errorf("final drain wait: %w", err)
			}
		}
		task, ok := s.queue.PopDue(s.clock.Elapsed())
		if !ok {
			return fmt.Errorf("%w: wait ended before earliest task was due", ErrInvariant)
		}
		if err := s.execute(ctx, task); err != nil {
			return err
		}
	}

	for i, st := range s.states {
		if st != models.SampleDeferredDone {
			return fmt.Errorf("%w: sample %d finished in state %s", ErrInvariant, i, st)
		}
	}
	if !s.queue.Empty() {
		return fmt.Errorf("%w: %d tasks still queued at completion", ErrInvariant, s.queue.Len())
	}

	s.logger.Info().Dur("elapsed", s.clock.Elapsed()).Msg("batch run complete")
	return nil
}

// drainDue executes every task already due. Never blocks.
func (s *Scheduler) drainDue(ctx context.Context) error {
	for {
		task, ok := s.queue.PopDue(s.clock.Elapsed())
		if !ok {
			return nil
		}
		if err := s.execute(ctx, task); err != nil {
			return err
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, task Task) error {
	if task.SampleID < 0 || task.SampleID >= len(s.states) {
		return fmt.Errorf("%w: task for unknown sample %d", ErrInvariant, task.SampleID)
	}
	if s.states[task.SampleID] != models.SampleImmediateDone {
		return fmt.Errorf("%w: deferred action for sample %d in state %s", ErrInvariant, task.SampleID, s.states[task.SampleID])
	}
	if err := s.runner.RunDeferred(ctx, task.Kind, task.SampleID); err != nil {
		telemetry.ActionsTotal.WithLabelValues(string(task.Kind), string(models.PhaseDeferred), "error").Inc()
		return s.equipmentFailure(task.SampleID, task.Kind, models.PhaseDeferred, err)
	}
	executedAt := s.clock.Elapsed()
	s.states[task.SampleID] = models.SampleDeferredDone
	telemetry.ActionsTotal.WithLabelValues(string(task.Kind), string(models.PhaseDeferred), "ok").Inc()
	telemetry.DeferredLatenessSeconds.Observe((executedAt - task.Due).Seconds())
	telemetry.QueueDepth.Set(float64(s.queue.Len()))
	s.notify(Execution{SampleID: task.SampleID, Kind: task.Kind, Phase: models.PhaseDeferred, Due: task.Due, ExecutedAt: executedAt})
	s.logger.Debug().
		Int("sample", task.SampleID).
		Dur("due", task.Due).
		Dur("executed_at", executedAt).
		Msg("deferred action executed")
	return nil
}

func (s *Scheduler) equipmentFailure(sample int, kind models.ActionKind, phase models.ActionPhase, err error) error {
	e := &EquipmentError{
		SampleID: sample,
		Kind:     kind,
		Phase:    phase,
		Residual: s.Residual(),
		Err:      err,
	}
	s.logger.Error().Err(err).
		Int("sample", sample).
		Str("kind", string(kind)).
		Int("residual", len(e.Residual)).
		Msg("equipment failure, aborting batch")
	return e
}

func (s *Scheduler) notify(e Execution) {
	if s.observer != nil {
		s.observer(e)
	}
}

func roundUp(d, resolution time.Duration) time.Duration {
	if rem := d % resolution; rem != 0 {
		return d + resolution - rem
	}
	return d
}
