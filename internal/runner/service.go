/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benchworks/magbench/internal/config"
	"github.com/benchworks/magbench/internal/equipment"
	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/labclock"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/protocol"
	"github.com/benchworks/magbench/internal/scheduler"
)

// ErrRunInProgress is returned when a run is requested while the single robot
// arm is already executing one.
var ErrRunInProgress = errors.New("a run is already in progress")

// Service builds and executes runs from configuration. It serializes access to
// the equipment: at most one run may be active at a time.
type Service struct {
	cfg      *config.Config
	database *gorm.DB
	bus      *events.Bus
	logger   zerolog.Logger

	mu       sync.Mutex
	activeID string
}

func NewService(cfg *config.Config, database *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		database: database,
		bus:      bus,
		logger:   logger.With().Str("component", "run-service").Logger(),
	}
}

// Protocol resolves the protocol definition for this service's configuration:
// the YAML file at ProtocolPath if set, otherwise the built-in defaults, with
// the lysis window override and dry-run zeroing applied on top.
func (s *Service) Protocol() (*protocol.Definition, error) {
	var (
		proto *protocol.Definition
		err   error
	)
	if s.cfg.ProtocolPath != "" {
		proto, err = protocol.Load(s.cfg.ProtocolPath)
		if err != nil {
			return nil, fmt.Errorf("loading protocol: %w", err)
		}
	} else {
		proto = protocol.Default()
	}
	if s.cfg.LysisMinutes > 0 {
		proto.Delays.LysisMinutes = s.cfg.LysisMinutes
	}
	if s.cfg.DebugDryRun {
		proto = proto.Zeroed()
	}
	return proto, nil
}

// newRunner assembles a Runner against the configured equipment. With a robot
// address set it drives the real instrument on the wall clock; without one it
// runs against the simulator on a virtual clock, so dry runs finish instantly.
func (s *Service) newRunner(proto *protocol.Definition) (*Runner, labclock.Clock, *equipment.Simulator) {
	opts := Options{
		SampleCount:    s.cfg.SampleCount,
		WaitResolution: s.cfg.DelayResolution,
		Debug:          s.cfg.DebugDryRun,
	}
	if s.cfg.RobotAddr != "" {
		clock := labclock.NewWall()
		eq := equipment.NewHTTPDriver(s.cfg.RobotAddr, s.cfg.RobotTimeout, s.logger)
		return New(proto, opts, eq, clock, s.database, s.bus, s.logger), clock, nil
	}
	clock := labclock.NewFake()
	sim := equipment.NewSimulator(clock, s.cfg.SimActionCost, s.logger)
	return New(proto, opts, sim, clock, s.database, s.bus, s.logger), clock, sim
}

// Execute runs a batch synchronously and returns the finished run record.
func (s *Service) Execute(ctx context.Context) (*models.Run, error) {
	proto, err := s.Protocol()
	if err != nil {
		return nil, err
	}
	r, _, _ := s.newRunner(proto)
	return s.execute(ctx, r)
}

// Plan runs the batch against the simulator regardless of configuration and
// returns the run record plus the full projected command sequence. No real
// equipment is touched.
func (s *Service) Plan(ctx context.Context, observe func(scheduler.Execution)) (*models.Run, []equipment.SimCommand, error) {
	proto, err := s.Protocol()
	if err != nil {
		return nil, nil, err
	}
	clock := labclock.NewFake()
	sim := equipment.NewSimulator(clock, s.cfg.SimActionCost, s.logger)
	opts := Options{
		SampleCount:    s.cfg.SampleCount,
		WaitResolution: s.cfg.DelayResolution,
		Debug:          s.cfg.DebugDryRun,
	}
	r := New(proto, opts, sim, clock, s.database, s.bus, s.logger)
	if observe != nil {
		r.Observe = observe
	}
	run, err := s.execute(ctx, r)
	if err != nil {
		return run, sim.Commands(), err
	}
	return run, sim.Commands(), nil
}

// StartRun launches a run in the background for the HTTP API. It fails
// immediately if another run is active.
func (s *Service) StartRun(observe func(scheduler.Execution)) (string, error) {
	proto, err := s.Protocol()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.activeID != "" {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}
	r, _, _ := s.newRunner(proto)
	if observe != nil {
		r.Observe = observe
	}
	s.activeID = r.RunID()
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.activeID = ""
			s.mu.Unlock()
		}()
		if _, err := r.Execute(context.Background()); err != nil {
			s.logger.Error().Err(err).Str("run_id", r.RunID()).Msg("run failed")
		}
	}()
	return r.RunID(), nil
}

// ActiveRunID returns the ID of the run currently executing, if any.
func (s *Service) ActiveRunID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID, s.activeID != ""
}

func (s *Service) execute(ctx context.Context, r *Runner) (*models.Run, error) {
	s.mu.Lock()
	if s.activeID != "" {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.activeID = r.RunID()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.activeID = ""
		s.mu.Unlock()
	}()
	return r.Execute(ctx)
}
