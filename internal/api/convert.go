package api

import (
	"fmt"
	"math"
	"time"

	"castspc/internal/spc"
)

// DefaultStatsHours is the stats window when the caller names none.
const DefaultStatsHours = 24

// FromUpdateResult converts an engine update into its wire form.
func FromUpdateResult(res spc.UpdateResult) UpdateResponse {
	resp := UpdateResponse{Updated: res.Updated, Limits: res.Limits}
	if res.Updated {
		sample := res.Sample
		resp.Sample = &sample
		resp.Zone = res.Zone
		return resp
	}
	resp.Message = "no records in the rate window; chart unchanged"
	return resp
}

// NewSampleResponse classifies sample against limits.
func NewSampleResponse(sample spc.Sample, limits spc.Limits) SampleResponse {
	return SampleResponse{Sample: sample, Zone: spc.Classify(sample.DefectRate, limits)}
}

// ClampStatsHours bounds a requested stats window to one week.
func ClampStatsHours(hours int) int {
	switch {
	case hours <= 0:
		return DefaultStatsHours
	case hours > 7*24:
		return 7 * 24
	default:
		return hours
	}
}

// FormatRate renders a defect rate percentage with two decimals.
func FormatRate(rate float64) string {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", rate)
}

// ZoneLabel is the human label for a chart zone.
func ZoneLabel(zone spc.Zone) string {
	switch zone {
	case spc.ZoneInControl:
		return "in control"
	case spc.ZoneWarning:
		return "warning"
	case spc.ZoneOutOfControl:
		return "OUT OF CONTROL"
	default:
		return "no data"
	}
}

// FormatTimestamp renders t in local time, or "-" when unset.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatUntil renders the time remaining until t relative to now.
func FormatUntil(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := t.Sub(now)
	if d <= 0 {
		return "due"
	}
	return "in " + d.Round(time.Second).String()
}
