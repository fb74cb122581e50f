package main

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"castspc/internal/api"
	"castspc/internal/spc"
)

var printer = message.NewPrinter(language.English)

// formatCount renders n with thousands separators.
func formatCount[T ~int | ~int64 | ~uint64](n T) string {
	return printer.Sprintf("%d", n)
}

func zoneKind(zone spc.Zone) statusKind {
	switch zone {
	case spc.ZoneInControl:
		return statusOK
	case spc.ZoneWarning:
		return statusWarn
	case spc.ZoneOutOfControl:
		return statusError
	default:
		return statusInfo
	}
}

func limitsLine(l spc.Limits) string {
	if l.SampleCount == 0 {
		return "no samples yet"
	}
	line := printer.Sprintf("mean %s  UCL %s  LCL %s  USL %s  LSL %s  (%d samples)",
		api.FormatRate(l.Mean), api.FormatRate(l.UCL), api.FormatRate(l.LCL),
		api.FormatRate(l.USL), api.FormatRate(l.LSL), l.SampleCount)
	if l.Provisional {
		line += " provisional"
	}
	return line
}

func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return api.FormatTimestamp(t) + " (" + d.Round(time.Second).String() + " ago)"
}
