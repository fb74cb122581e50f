package testsupport

import (
	"context"
	"testing"
	"time"

	"castspc/internal/config"
	"castspc/internal/measurement"
	"castspc/internal/spc"
	"castspc/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewRecord builds a normalized record stamped at ts.
func NewRecord(id string, ts time.Time, verdict measurement.Verdict) measurement.Record {
	return measurement.Record{
		ID:        id,
		Timestamp: ts,
		MoldCode:  "8412",
		Verdict:   verdict,
		Readings: map[string]float64{
			measurement.ReadingMoltenTemp:   700,
			measurement.ReadingCastPressure: 320,
		},
	}
}

// SavePoint persists rec with its fingerprint.
func SavePoint(t testing.TB, st *store.Store, rec measurement.Record) {
	t.Helper()

	if err := st.SavePoint(context.Background(), rec, spc.Fingerprint(rec)); err != nil {
		t.Fatalf("store.SavePoint: %v", err)
	}
}
