package spc

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"castspc/internal/measurement"
)

// Fingerprint digests the identity-bearing fields of a record. The ingestion
// timestamp is excluded, so re-reading the same upstream result yields the
// same fingerprint.
func Fingerprint(rec measurement.Record) string {
	fields := [][2]string{
		{"id", rec.ID},
		{"mold_code", rec.MoldCode},
		{measurement.ReadingMoltenTemp, formatReading(rec.Reading(measurement.ReadingMoltenTemp))},
		{measurement.ReadingCastPressure, formatReading(rec.Reading(measurement.ReadingCastPressure))},
		{"verdict", rec.Verdict.String()},
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i][0] < fields[j][0] })

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f[0])
		b.WriteByte('=')
		b.WriteString(f[1])
		b.WriteByte('\n')
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
