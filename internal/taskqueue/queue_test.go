/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package taskqueue

import (
	"testing"
	"time"
)

func TestQueueOrdersByDueTime(t *testing.T) {
	q := New[string]()
	q.Push(3*time.Minute, "c")
	q.Push(1*time.Minute, "a")
	q.Push(2*time.Minute, "b")

	want := []string{"a", "b", "c"}
	for _, expected := range want {
		got, ok := q.PopDue(10 * time.Minute)
		if !ok {
			t.Fatalf("expected %q, queue returned nothing", expected)
		}
		if got != expected {
			t.Errorf("expected %q, got %q", expected, got)
		}
	}
	if !q.Empty() {
		t.Errorf("queue should be empty, has %d items", q.Len())
	}
}

func TestQueueTieBreaksByInsertionOrder(t *testing.T) {
	q := New[int]()
	due := 5 * time.Minute
	for i := 0; i < 10; i++ {
		q.Push(due, i)
	}

	for i := 0; i < 10; i++ {
		got, ok := q.PopDue(due)
		if !ok {
			t.Fatalf("pop %d returned nothing", i)
		}
		if got != i {
			t.Errorf("pop %d: expected %d, got %d", i, i, got)
		}
	}
}

func TestPopDueRespectsNow(t *testing.T) {
	q := New[string]()
	q.Push(2*time.Minute, "later")

	tests := []struct {
		name   string
		now    time.Duration
		wantOK bool
	}{
		{"before due", 1 * time.Minute, false},
		{"exactly due", 2 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := q.PeekDue(tt.now)
			if ok != tt.wantOK {
				t.Errorf("PeekDue(%s) ok = %v, want %v", tt.now, ok, tt.wantOK)
			}
		})
	}

	if _, ok := q.PopDue(1 * time.Minute); ok {
		t.Error("PopDue before due time should return nothing")
	}
	if got, ok := q.PopDue(2 * time.Minute); !ok || got != "later" {
		t.Errorf("PopDue at due time = (%q, %v), want (later, true)", got, ok)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New[string]()
	q.Push(time.Minute, "only")

	v, due, ok := q.Peek()
	if !ok || v != "only" || due != time.Minute {
		t.Fatalf("Peek = (%q, %s, %v), want (only, 1m0s, true)", v, due, ok)
	}
	if q.Len() != 1 {
		t.Errorf("Peek removed the item, len = %d", q.Len())
	}
}

func TestPeekEmptyQueue(t *testing.T) {
	q := New[string]()
	if _, _, ok := q.Peek(); ok {
		t.Error("Peek on empty queue should report not ok")
	}
	if _, ok := q.PopDue(time.Hour); ok {
		t.Error("PopDue on empty queue should report not ok")
	}
}

func TestSnapshotSortedAndNonDestructive(t *testing.T) {
	q := New[int]()
	q.Push(3*time.Minute, 30)
	q.Push(1*time.Minute, 10)
	q.Push(1*time.Minute, 11)
	q.Push(2*time.Minute, 20)

	snap := q.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot has %d items, want 4", len(snap))
	}
	wantValues := []int{10, 11, 20, 30}
	for i, p := range snap {
		if p.Value != wantValues[i] {
			t.Errorf("snapshot[%d] = %d, want %d", i, p.Value, wantValues[i])
		}
	}
	if q.Len() != 4 {
		t.Errorf("Snapshot disturbed the queue, len = %d", q.Len())
	}

	// The queue still pops in the same order afterwards.
	for _, want := range wantValues {
		got, ok := q.PopDue(time.Hour)
		if !ok || got != want {
			t.Errorf("pop after snapshot = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
}

func TestPastDuePushIsImmediatelyReady(t *testing.T) {
	q := New[string]()
	q.Push(0, "overdue")
	if _, ok := q.PeekDue(0); !ok {
		t.Error("task due at zero should be ready at zero elapsed")
	}
}
