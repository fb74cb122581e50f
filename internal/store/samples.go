package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"castspc/internal/spc"
)

// SampleStats summarizes stored chart samples over a time range.
type SampleStats struct {
	Count   int       `json:"count"`
	Average float64   `json:"average"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	First   time.Time `json:"first,omitzero"`
	Last    time.Time `json:"last,omitzero"`
}

// SaveSample appends a chart sample together with the limits computed after it.
func (s *Store) SaveSample(ctx context.Context, sample spc.Sample, limits spc.Limits) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := s.execWithRetry(ctx, `INSERT INTO control_chart_data (
			timestamp, defect_rate, total_count, defect_count,
			mean_rate, std_rate, ucl, lcl, usl, lsl, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(sample.Timestamp),
		sample.DefectRate,
		sample.TotalCount,
		sample.DefectCount,
		limits.Mean,
		limits.Std,
		limits.UCL,
		limits.LCL,
		limits.USL,
		limits.LSL,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save sample at %s: %w", formatTime(sample.Timestamp), err)
	}
	return nil
}

// LoadRecentSamples returns up to limit newest samples, oldest first, and the
// limits stored alongside the newest one.
func (s *Store) LoadRecentSamples(ctx context.Context, limit int) ([]spc.Sample, *spc.Limits, error) {
	if err := s.ready(); err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		return nil, nil, nil
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+sampleColumns+" FROM control_chart_data ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var (
		samples []spc.Sample
		latest  *spc.Limits
	)
	for rows.Next() {
		sample, limits, err := scanSample(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan sample: %w", err)
		}
		if len(samples) == 0 {
			latest = limits
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	slices.Reverse(samples)
	return samples, latest, nil
}

// SamplesSince returns every sample stamped at or after since, oldest first.
func (s *Store) SamplesSince(ctx context.Context, since time.Time) ([]spc.Sample, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+sampleColumns+" FROM control_chart_data WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC",
		formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []spc.Sample
	for rows.Next() {
		sample, _, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// SampleStats returns count, average, min and max defect rate of samples
// stamped at or after since.
func (s *Store) SampleStats(ctx context.Context, since time.Time) (SampleStats, error) {
	if err := s.ready(); err != nil {
		return SampleStats{}, err
	}
	var (
		stats             SampleStats
		avg, minV, maxV   sql.NullFloat64
		firstRaw, lastRaw sql.NullString
	)
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(*), AVG(defect_rate), MIN(defect_rate), MAX(defect_rate), MIN(timestamp), MAX(timestamp)
		   FROM control_chart_data WHERE timestamp >= ?`, formatTime(since))
	if err := row.Scan(&stats.Count, &avg, &minV, &maxV, &firstRaw, &lastRaw); err != nil {
		return SampleStats{}, fmt.Errorf("sample stats: %w", err)
	}
	stats.Average = avg.Float64
	stats.Min = minV.Float64
	stats.Max = maxV.Float64
	if t, err := parseTimeString(firstRaw.String); err == nil {
		stats.First = t
	}
	if t, err := parseTimeString(lastRaw.String); err == nil {
		stats.Last = t
	}
	return stats, nil
}
