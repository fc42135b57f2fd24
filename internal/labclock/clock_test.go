/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package labclock

import (
	"context"
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	clock := NewFake()
	if clock.Elapsed() != 0 {
		t.Fatalf("new fake clock elapsed = %s, want 0", clock.Elapsed())
	}

	clock.Advance(2 * time.Minute)
	clock.Advance(30 * time.Second)
	if got := clock.Elapsed(); got != 2*time.Minute+30*time.Second {
		t.Errorf("elapsed = %s, want 2m30s", got)
	}

	// Non-positive advances are ignored.
	clock.Advance(-time.Minute)
	clock.Advance(0)
	if got := clock.Elapsed(); got != 2*time.Minute+30*time.Second {
		t.Errorf("elapsed after no-op advances = %s, want 2m30s", got)
	}
}

func TestFakeWaitAdvancesVirtualTime(t *testing.T) {
	clock := NewFake()
	start := time.Now()
	if err := clock.Wait(context.Background(), time.Hour); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if real := time.Since(start); real > time.Second {
		t.Errorf("fake Wait took %s of real time", real)
	}
	if got := clock.Elapsed(); got != time.Hour {
		t.Errorf("elapsed = %s, want 1h0m0s", got)
	}
}

func TestFakeWaitHonorsCancelledContext(t *testing.T) {
	clock := NewFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := clock.Wait(ctx, time.Minute); err == nil {
		t.Error("Wait with cancelled context should return an error")
	}
	if got := clock.Elapsed(); got != 0 {
		t.Errorf("cancelled Wait advanced clock to %s", got)
	}
}

func TestWallWaitZeroReturnsImmediately(t *testing.T) {
	clock := NewWall()
	start := time.Now()
	if err := clock.Wait(context.Background(), 0); err != nil {
		t.Fatalf("Wait(0) returned error: %v", err)
	}
	if real := time.Since(start); real > 100*time.Millisecond {
		t.Errorf("Wait(0) took %s", real)
	}
}

func TestWallElapsedMonotonic(t *testing.T) {
	clock := NewWall()
	a := clock.Elapsed()
	b := clock.Elapsed()
	if b < a {
		t.Errorf("elapsed went backwards: %s then %s", a, b)
	}
}
