/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package labclock provides the elapsed-time source and blocking delay used by
// the batch scheduler. Time is always expressed as duration since run start so
// scheduling arithmetic never touches absolute wall time.
package labclock

import (
	"context"
	"sync"
	"time"
)

// Clock reports elapsed time since run start and provides the blocking delay
// primitive. Elapsed is monotonic and non-decreasing.
type Clock interface {
	Elapsed() time.Duration
	Wait(ctx context.Context, d time.Duration) error
}

type wallClock struct {
	start time.Time
}

// NewWall returns a Clock anchored at the current instant.
func NewWall() Clock {
	return &wallClock{start: time.Now()}
}

func (c *wallClock) Elapsed() time.Duration {
	return time.Since(c.start)
}

func (c *wallClock) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake is a virtual clock advanced under test control. Wait advances virtual
// time instead of sleeping, so schedules replay instantly and
// deterministically.
type Fake struct {
	mu  sync.Mutex
	now time.Duration
}

// NewFake returns a Fake clock at elapsed zero.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Elapsed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves virtual time forward. Negative amounts are ignored so the
// clock stays non-decreasing.
func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	f.now += d
	f.mu.Unlock()
}

func (f *Fake) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return nil
}
