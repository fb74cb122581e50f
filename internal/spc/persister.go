package spc

import (
	"context"
	"time"

	"castspc/internal/measurement"
)

// StoredPoint is a buffer point as read back from durable storage.
type StoredPoint struct {
	Record      measurement.Record
	Fingerprint string
}

// Persister durably records engine state. Implementations must be safe for
// concurrent use.
type Persister interface {
	// SavePoint inserts or replaces the point keyed by the record's identity.
	SavePoint(ctx context.Context, rec measurement.Record, fingerprint string) error
	// SaveSample appends a chart sample with the limits computed after appending it.
	SaveSample(ctx context.Context, sample Sample, limits Limits) error
	// LoadRecentPoints returns points stamped at or after since, oldest first.
	LoadRecentPoints(ctx context.Context, since time.Time) ([]StoredPoint, error)
	// LoadRecentSamples returns up to limit newest samples, oldest first, and
	// the limits stored with the newest one (nil when there are none).
	LoadRecentSamples(ctx context.Context, limit int) ([]Sample, *Limits, error)
	// Truncate removes every stored point and sample.
	Truncate(ctx context.Context) error
}
