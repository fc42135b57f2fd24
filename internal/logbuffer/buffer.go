/*
Copyright (C) 2026 Benchworks

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps recent log entries in a ring buffer so the monitor
// API can show what the instrument was doing around a failure without log
// shipping infrastructure.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-capacity ring of log entries. Safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding up to capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest when full.
func (b *Buffer) Add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// All returns the buffered entries in chronological order.
func (b *Buffer) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]Entry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// Query filters buffered entries.
type Query struct {
	Level     string    // exact level match
	Component string    // exact component match
	RunID     string    // exact run match
	Since     time.Time // only entries at or after this instant
	Limit     int       // 0 means unlimited
}

// Filter returns entries matching q, oldest first.
func (b *Buffer) Filter(q Query) []Entry {
	var out []Entry
	for _, entry := range b.All() {
		if q.Level != "" && entry.Level != q.Level {
			continue
		}
		if q.Component != "" && entry.Component != q.Component {
			continue
		}
		if q.RunID != "" && entry.RunID != q.RunID {
			continue
		}
		if !q.Since.IsZero() && entry.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, entry)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Write implements io.Writer so the buffer can sit behind zerolog as an
// additional sink. Lines that do not parse as zerolog JSON are kept raw.
func (b *Buffer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line == "" {
			continue
		}
		b.Add(parseLine(line))
	}
	return len(p), nil
}

func parseLine(line string) Entry {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Timestamp: time.Now().UTC(), Message: line}
	}
	entry := Entry{Timestamp: time.Now().UTC()}
	if ts, ok := raw["time"].(float64); ok {
		entry.Timestamp = time.Unix(int64(ts), 0).UTC()
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
	}
	if runID, ok := raw["run_id"].(string); ok {
		entry.RunID = runID
	}
	for key, value := range raw {
		switch key {
		case "time", "level", "message", "component", "run_id":
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]any)
			}
			entry.Fields[key] = value
		}
	}
	return entry
}
