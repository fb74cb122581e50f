package spc

import (
	"time"

	"castspc/internal/measurement"
)

// RollingBuffer holds the most recent admitted records in arrival order.
// It is bounded by count and, when maxAge is positive, by age relative to the
// newest record.
type RollingBuffer struct {
	capacity int
	maxAge   time.Duration
	items    []measurement.Record
}

// NewRollingBuffer constructs a buffer. A capacity below 1 is treated as 1.
func NewRollingBuffer(capacity int, maxAge time.Duration) *RollingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingBuffer{
		capacity: capacity,
		maxAge:   maxAge,
		items:    make([]measurement.Record, 0, capacity),
	}
}

// Push appends rec and evicts from the head until both bounds hold.
// It returns the number of evicted records.
func (b *RollingBuffer) Push(rec measurement.Record) int {
	b.items = append(b.items, rec.Clone())
	drop := 0
	if over := len(b.items) - b.capacity; over > 0 {
		drop = over
	}
	if b.maxAge > 0 {
		cutoff := rec.Timestamp.Add(-b.maxAge)
		for drop < len(b.items)-1 && b.items[drop].Timestamp.Before(cutoff) {
			drop++
		}
	}
	if drop > 0 {
		n := copy(b.items, b.items[drop:])
		clear(b.items[n:])
		b.items = b.items[:n]
	}
	return drop
}

// Snapshot returns copies of records no older than maxAge as of now.
// A non-positive maxAge returns every record.
func (b *RollingBuffer) Snapshot(now time.Time, maxAge time.Duration) []measurement.Record {
	out := make([]measurement.Record, 0, len(b.items))
	cutoff := now.Add(-maxAge)
	for _, rec := range b.items {
		if maxAge > 0 && rec.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out
}

// Records returns copies of every buffered record, oldest first.
func (b *RollingBuffer) Records() []measurement.Record {
	return b.Snapshot(time.Time{}, 0)
}

// Len returns the number of buffered records.
func (b *RollingBuffer) Len() int { return len(b.items) }

// Capacity returns the count bound.
func (b *RollingBuffer) Capacity() int { return b.capacity }

// Reset empties the buffer.
func (b *RollingBuffer) Reset() {
	clear(b.items)
	b.items = b.items[:0]
}
