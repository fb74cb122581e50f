package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"castspc/internal/measurement"
	"castspc/internal/spc"
)

// timeLayout is fixed width so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const pointColumns = "timestamp, mold_code, molten_temp, cast_pressure, verdict, record_id, fingerprint, registration_time, source_timestamp, readings_json"

const sampleColumns = "timestamp, defect_rate, total_count, defect_count, mean_rate, std_rate, ucl, lcl, usl, lsl"

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func scanPoint(scanner rowScanner) (spc.StoredPoint, error) {
	var (
		tsRaw        string
		moldCode     sql.NullString
		moltenTemp   sql.NullFloat64
		castPressure sql.NullFloat64
		verdict      string
		recordID     string
		fingerprint  string
		registration sql.NullString
		sourceTS     sql.NullString
		readingsJSON sql.NullString
	)
	if err := scanner.Scan(&tsRaw, &moldCode, &moltenTemp, &castPressure, &verdict, &recordID,
		&fingerprint, &registration, &sourceTS, &readingsJSON); err != nil {
		return spc.StoredPoint{}, err
	}

	rec := measurement.Record{
		ID:               recordID,
		MoldCode:         moldCode.String,
		Verdict:          measurement.Verdict(verdict),
		RegistrationTime: registration.String,
		SourceTimestamp:  sourceTS.String,
	}
	if ts, err := parseTimeString(tsRaw); err == nil {
		rec.Timestamp = ts
	}
	corrupt := false
	if readingsJSON.Valid && readingsJSON.String != "" {
		if err := json.Unmarshal([]byte(readingsJSON.String), &rec.Readings); err != nil {
			// Keep the row; the dedicated columns still carry the charted readings.
			rec.Readings = nil
			corrupt = true
		}
	}
	if rec.Readings == nil && (corrupt || moltenTemp.Float64 != 0 || castPressure.Float64 != 0) {
		rec.Readings = map[string]float64{
			measurement.ReadingMoltenTemp:   moltenTemp.Float64,
			measurement.ReadingCastPressure: castPressure.Float64,
		}
	}
	if rec.ID == fingerprint {
		rec.ID = ""
	}
	return spc.StoredPoint{Record: rec, Fingerprint: fingerprint}, nil
}

func scanSample(scanner rowScanner) (spc.Sample, *spc.Limits, error) {
	var (
		tsRaw     string
		sample    spc.Sample
		mean, std sql.NullFloat64
		ucl, lcl  sql.NullFloat64
		usl, lsl  sql.NullFloat64
	)
	if err := scanner.Scan(&tsRaw, &sample.DefectRate, &sample.TotalCount, &sample.DefectCount,
		&mean, &std, &ucl, &lcl, &usl, &lsl); err != nil {
		return spc.Sample{}, nil, err
	}
	if ts, err := parseTimeString(tsRaw); err == nil {
		sample.Timestamp = ts
	}
	if !mean.Valid {
		return sample, nil, nil
	}
	return sample, &spc.Limits{
		Mean:       mean.Float64,
		Std:        std.Float64,
		UCL:        ucl.Float64,
		LCL:        lcl.Float64,
		USL:        usl.Float64,
		LSL:        lsl.Float64,
		ComputedAt: sample.Timestamp,
	}, nil
}
