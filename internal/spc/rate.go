package spc

import (
	"time"

	"castspc/internal/measurement"
)

// Sample is one defect-rate point on the control chart.
type Sample struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	DefectRate  float64   `json:"defect_rate" yaml:"defect_rate"`
	TotalCount  int       `json:"total_count" yaml:"total_count"`
	DefectCount int       `json:"defect_count" yaml:"defect_count"`
}

// ComputeDefectRate counts records stamped at or after now-window and
// returns the defect rate in percent. Records stamped after now still count.
// ok is false when the window is empty.
func ComputeDefectRate(records []measurement.Record, now time.Time, window time.Duration) (Sample, bool) {
	cutoff := now.Add(-window)
	total, defects := 0, 0
	for _, rec := range records {
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		total++
		if rec.IsDefect() {
			defects++
		}
	}
	if total == 0 {
		return Sample{}, false
	}
	return Sample{
		Timestamp:   now,
		DefectRate:  100 * float64(defects) / float64(total),
		TotalCount:  total,
		DefectCount: defects,
	}, true
}
