package spc

import (
	"math"
	"time"
)

// Limits are the Shewhart bands derived from the chart history.
type Limits struct {
	Mean        float64   `json:"mean" yaml:"mean"`
	Std         float64   `json:"std" yaml:"std"`
	UCL         float64   `json:"ucl" yaml:"ucl"`
	LCL         float64   `json:"lcl" yaml:"lcl"`
	USL         float64   `json:"usl" yaml:"usl"`
	LSL         float64   `json:"lsl" yaml:"lsl"`
	SampleCount int       `json:"sample_count" yaml:"sample_count"`
	Provisional bool      `json:"provisional" yaml:"provisional"`
	ComputedAt  time.Time `json:"computed_at,omitzero" yaml:"computed_at,omitempty"`
}

// ComputeLimits derives limits from rates using the population standard
// deviation. Lower bands are floored at zero. Fewer than minSamples rates
// yields provisional limits.
func ComputeLimits(rates []float64, minSamples int) Limits {
	n := len(rates)
	if n == 0 {
		return Limits{Provisional: true}
	}
	sum := 0.0
	for _, r := range rates {
		sum += r
	}
	mean := sum / float64(n)
	variance := 0.0
	for _, r := range rates {
		d := r - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n))
	return Limits{
		Mean:        mean,
		Std:         std,
		UCL:         mean + 3*std,
		LCL:         math.Max(0, mean-3*std),
		USL:         mean + 2*std,
		LSL:         math.Max(0, mean-2*std),
		SampleCount: n,
		Provisional: n < minSamples,
	}
}

// Zone classifies a defect rate against the control bands.
type Zone string

const (
	ZoneNoData       Zone = "no_data"
	ZoneInControl    Zone = "in_control"
	ZoneWarning      Zone = "warning"
	ZoneOutOfControl Zone = "out_of_control"
)

// Classify places rate outside [LCL, UCL] as out of control, outside
// [LSL, USL] as warning, and otherwise in control.
func Classify(rate float64, l Limits) Zone {
	if l.SampleCount == 0 {
		return ZoneNoData
	}
	switch {
	case rate > l.UCL || rate < l.LCL:
		return ZoneOutOfControl
	case rate > l.USL || rate < l.LSL:
		return ZoneWarning
	default:
		return ZoneInControl
	}
}

// Summary aggregates the chart for dashboards.
type Summary struct {
	Samples      int     `json:"samples" yaml:"samples"`
	OutOfControl int     `json:"out_of_control" yaml:"out_of_control"`
	Warning      int     `json:"warning" yaml:"warning"`
	CurrentZone  Zone    `json:"current_zone" yaml:"current_zone"`
	LatestRate   float64 `json:"latest_rate" yaml:"latest_rate"`
	AverageRate  float64 `json:"average_rate" yaml:"average_rate"`
	MinRate      float64 `json:"min_rate" yaml:"min_rate"`
	MaxRate      float64 `json:"max_rate" yaml:"max_rate"`
	Provisional  bool    `json:"provisional" yaml:"provisional"`
}

// Summarize classifies every sample against l.
func Summarize(samples []Sample, l Limits) Summary {
	s := Summary{Samples: len(samples), CurrentZone: ZoneNoData, Provisional: l.Provisional}
	if len(samples) == 0 {
		return s
	}
	s.MinRate = math.Inf(1)
	s.MaxRate = math.Inf(-1)
	sum := 0.0
	for _, sample := range samples {
		switch Classify(sample.DefectRate, l) {
		case ZoneOutOfControl:
			s.OutOfControl++
		case ZoneWarning:
			s.Warning++
		}
		sum += sample.DefectRate
		s.MinRate = math.Min(s.MinRate, sample.DefectRate)
		s.MaxRate = math.Max(s.MaxRate, sample.DefectRate)
	}
	latest := samples[len(samples)-1].DefectRate
	s.LatestRate = latest
	s.AverageRate = sum / float64(len(samples))
	s.CurrentZone = Classify(latest, l)
	return s
}
