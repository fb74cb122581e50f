package measurement

import (
	"maps"
	"time"
)

// Reading names understood by the normalizer. Other numeric upstream fields are ignored.
const (
	ReadingMoltenTemp          = "molten_temp"
	ReadingCastPressure        = "cast_pressure"
	ReadingProductionCycleTime = "production_cycletime"
	ReadingLowSectionSpeed     = "low_section_speed"
	ReadingHighSectionSpeed    = "high_section_speed"
	ReadingBiscuitThickness    = "biscuit_thickness"
	ReadingUpperMoldTemp1      = "upper_mold_temp1"
	ReadingUpperMoldTemp2      = "upper_mold_temp2"
	ReadingUpperMoldTemp3      = "upper_mold_temp3"
	ReadingLowerMoldTemp1      = "lower_mold_temp1"
	ReadingLowerMoldTemp2      = "lower_mold_temp2"
	ReadingLowerMoldTemp3      = "lower_mold_temp3"
	ReadingSleeveTemperature   = "sleeve_temperature"
	ReadingPhysicalStrength    = "physical_strength"
	ReadingCoolantTemperature  = "Coolant_temperature"
)

// ReadingRange is the plausible operating range of a reading.
type ReadingRange struct {
	Name string
	Min  float64
	Max  float64
}

// KnownReadings lists every reading with its operating range, in display order.
var KnownReadings = []ReadingRange{
	{ReadingMoltenTemp, 600, 800},
	{ReadingCastPressure, 20, 100},
	{ReadingProductionCycleTime, 10, 60},
	{ReadingLowSectionSpeed, 10, 50},
	{ReadingHighSectionSpeed, 50, 150},
	{ReadingBiscuitThickness, 5, 20},
	{ReadingUpperMoldTemp1, 150, 250},
	{ReadingUpperMoldTemp2, 150, 250},
	{ReadingUpperMoldTemp3, 150, 250},
	{ReadingLowerMoldTemp1, 150, 250},
	{ReadingLowerMoldTemp2, 150, 250},
	{ReadingLowerMoldTemp3, 150, 250},
	{ReadingSleeveTemperature, 180, 280},
	{ReadingPhysicalStrength, 200, 400},
	{ReadingCoolantTemperature, 15, 35},
}

// Record is one normalized measurement. Timestamp is the ingestion time and is
// zero until the engine admits the record.
type Record struct {
	ID               string             `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp        time.Time          `json:"timestamp" yaml:"timestamp"`
	MoldCode         string             `json:"mold_code" yaml:"mold_code"`
	Readings         map[string]float64 `json:"readings,omitempty" yaml:"readings,omitempty"`
	Verdict          Verdict            `json:"verdict" yaml:"verdict"`
	RegistrationTime string             `json:"registration_time,omitempty" yaml:"registration_time,omitempty"`
	SourceTimestamp  string             `json:"source_timestamp,omitempty" yaml:"source_timestamp,omitempty"`
}

// IsDefect reports whether the record failed inspection.
func (r Record) IsDefect() bool {
	return r.Verdict.IsDefect()
}

// Reading returns the named reading, or 0 when absent.
func (r Record) Reading(name string) float64 {
	return r.Readings[name]
}

// Clone returns a deep copy so callers cannot mutate admitted state.
func (r Record) Clone() Record {
	out := r
	if r.Readings != nil {
		out.Readings = maps.Clone(r.Readings)
	}
	return out
}
