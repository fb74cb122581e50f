package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"castspc/internal/measurement"
	"castspc/internal/spc"
)

// SavePoint inserts or replaces a buffer point. Records without an upstream
// ID are keyed by their fingerprint.
func (s *Store) SavePoint(ctx context.Context, rec measurement.Record, fingerprint string) error {
	if err := s.ready(); err != nil {
		return err
	}
	recordID := rec.ID
	if recordID == "" {
		recordID = fingerprint
	}
	if recordID == "" {
		return fmt.Errorf("save point: record has neither id nor fingerprint")
	}
	var readings any
	if len(rec.Readings) > 0 {
		encoded, err := json.Marshal(rec.Readings)
		if err != nil {
			return fmt.Errorf("encode readings: %w", err)
		}
		readings = string(encoded)
	}

	err := s.execWithRetry(ctx, `INSERT OR REPLACE INTO realtime_buffer (
			timestamp, mold_code, molten_temp, cast_pressure, verdict, is_defect,
			record_id, fingerprint, registration_time, source_timestamp, readings_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(rec.Timestamp),
		rec.MoldCode,
		rec.Reading(measurement.ReadingMoltenTemp),
		rec.Reading(measurement.ReadingCastPressure),
		rec.Verdict.String(),
		boolToInt(rec.IsDefect()),
		recordID,
		fingerprint,
		nullableString(rec.RegistrationTime),
		nullableString(rec.SourceTimestamp),
		readings,
	)
	if err != nil {
		return fmt.Errorf("save point %s: %w", recordID, err)
	}
	return nil
}

// LoadRecentPoints returns points stamped at or after since, oldest first.
func (s *Store) LoadRecentPoints(ctx context.Context, since time.Time) ([]spc.StoredPoint, error) {
	return s.queryPoints(ctx,
		"SELECT "+pointColumns+" FROM realtime_buffer WHERE timestamp >= ? ORDER BY timestamp ASC, id ASC",
		formatTime(since))
}

// PointsByVerdict returns points of one verdict stamped at or after since, oldest first.
func (s *Store) PointsByVerdict(ctx context.Context, since time.Time, verdict measurement.Verdict) ([]spc.StoredPoint, error) {
	return s.queryPoints(ctx,
		"SELECT "+pointColumns+" FROM realtime_buffer WHERE timestamp >= ? AND verdict = ? ORDER BY timestamp ASC, id ASC",
		formatTime(since), verdict.String())
}

// VerdictCounts counts points by verdict stamped at or after since.
func (s *Store) VerdictCounts(ctx context.Context, since time.Time) (pass, fail int, err error) {
	if err := s.ready(); err != nil {
		return 0, 0, err
	}
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COALESCE(SUM(CASE WHEN is_defect = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(is_defect), 0)
		   FROM realtime_buffer WHERE timestamp >= ?`, formatTime(since))
	if err := row.Scan(&pass, &fail); err != nil {
		return 0, 0, fmt.Errorf("count verdicts: %w", err)
	}
	return pass, fail, nil
}

func (s *Store) queryPoints(ctx context.Context, query string, args ...any) ([]spc.StoredPoint, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()

	var points []spc.StoredPoint
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}
