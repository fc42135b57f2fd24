/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package taskqueue implements a due-time priority queue for deferred
// equipment actions. Ordering is strictly by due time ascending; items with
// equal due times come out in insertion order so replays are deterministic.
package taskqueue

import (
	"container/heap"
	"sort"
	"time"
)

type item[T any] struct {
	value T
	due   time.Duration
	seq   uint64
}

type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(*item[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a min-heap of values keyed by due time. The zero value is not
// usable; construct with New. Not safe for concurrent use: the scheduler is
// the only mutator.
type Queue[T any] struct {
	h       itemHeap[T]
	nextSeq uint64
}

// Pending describes one queued value, used for diagnostics snapshots.
type Pending[T any] struct {
	Value T
	Due   time.Duration
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	heap.Init(&q.h)
	return q
}

// Push inserts value with the given due time. Past-due values are accepted.
func (q *Queue[T]) Push(due time.Duration, value T) {
	it := &item[T]{value: value, due: due, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.h, it)
}

// Len reports the number of queued values.
func (q *Queue[T]) Len() int { return len(q.h) }

// Empty reports whether no values remain.
func (q *Queue[T]) Empty() bool { return len(q.h) == 0 }

// Peek returns the earliest value without removing it.
func (q *Queue[T]) Peek() (T, time.Duration, bool) {
	if len(q.h) == 0 {
		var zero T
		return zero, 0, false
	}
	return q.h[0].value, q.h[0].due, true
}

// PeekDue returns the earliest value if it is due at or before now. A false
// result means nothing is ready, not that the queue is empty.
func (q *Queue[T]) PeekDue(now time.Duration) (T, bool) {
	if len(q.h) == 0 || q.h[0].due > now {
		var zero T
		return zero, false
	}
	return q.h[0].value, true
}

// PopDue removes and returns the earliest value if it is due at or before now.
func (q *Queue[T]) PopDue(now time.Duration) (T, bool) {
	if len(q.h) == 0 || q.h[0].due > now {
		var zero T
		return zero, false
	}
	it := heap.Pop(&q.h).(*item[T])
	return it.value, true
}

// Snapshot returns the queued values ordered by due time (insertion order on
// ties) without disturbing the queue. Used to report residual work after a
// failed run.
func (q *Queue[T]) Snapshot() []Pending[T] {
	items := make([]*item[T], len(q.h))
	copy(items, q.h)
	sort.Slice(items, func(i, j int) bool {
		if items[i].due != items[j].due {
			return items[i].due < items[j].due
		}
		return items[i].seq < items[j].seq
	})
	out := make([]Pending[T], len(items))
	for i, it := range items {
		out[i] = Pending[T]{Value: it.value, Due: it.due}
	}
	return out
}
