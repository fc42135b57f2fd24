/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package equipment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchworks/magbench/internal/labclock"
)

// SimCommand is one recorded simulator command.
type SimCommand struct {
	Name string
	From string
	To   string
	At   time.Duration
}

// Simulator executes commands in virtual time against a fake clock. Each
// command charges a fixed wall cost, which is what makes projected timelines
// from the plan command meaningful. OnCommand, when set, can inject a failure
// for a given command to exercise abort paths.
type Simulator struct {
	clock       *labclock.Fake
	commandCost time.Duration
	logger      zerolog.Logger

	// OnCommand runs before each command is recorded. Returning an error
	// fails the command.
	OnCommand func(cmd SimCommand) error

	mu       sync.Mutex
	commands []SimCommand
	engaged  bool
}

// NewSimulator creates a simulator advancing clock by commandCost per command.
func NewSimulator(clock *labclock.Fake, commandCost time.Duration, logger zerolog.Logger) *Simulator {
	return &Simulator{
		clock:       clock,
		commandCost: commandCost,
		logger:      logger.With().Str("component", "equipment_sim").Logger(),
	}
}

func (s *Simulator) run(ctx context.Context, cmd SimCommand) error {
	if err := ctx.Err(); err != nil {
		return &CommandError{Command: cmd.Name, Err: err}
	}
	s.clock.Advance(s.commandCost)
	cmd.At = s.clock.Elapsed()
	if s.OnCommand != nil {
		if err := s.OnCommand(cmd); err != nil {
			return &CommandError{Command: cmd.Name, Err: err}
		}
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	s.logger.Debug().Str("command", cmd.Name).Str("from", cmd.From).Str("to", cmd.To).Dur("at", cmd.At).Msg("simulated")
	return nil
}

func (s *Simulator) Transfer(ctx context.Context, t Transfer) error {
	return s.run(ctx, SimCommand{Name: "transfer", From: t.From, To: t.To})
}

func (s *Simulator) RemoveToWaste(ctx context.Context, volumeUL float64, from string) error {
	return s.run(ctx, SimCommand{Name: "remove_to_waste", From: from, To: "waste"})
}

func (s *Simulator) Engage(ctx context.Context, heightMM float64) error {
	s.mu.Lock()
	if s.engaged {
		s.mu.Unlock()
		return &CommandError{Command: "magnet_engage", Err: fmt.Errorf("magnet already engaged")}
	}
	s.engaged = true
	s.mu.Unlock()
	return s.run(ctx, SimCommand{Name: "magnet_engage"})
}

func (s *Simulator) Disengage(ctx context.Context) error {
	s.mu.Lock()
	s.engaged = false
	s.mu.Unlock()
	return s.run(ctx, SimCommand{Name: "magnet_disengage"})
}

// Commands returns the recorded command log in execution order.
func (s *Simulator) Commands() []SimCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SimCommand, len(s.commands))
	copy(out, s.commands)
	return out
}
