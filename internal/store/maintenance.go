package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"
)

// DatabaseHealth describes the state of the SPC database for diagnostics.
type DatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	PointCount       int      `json:"point_count"`
	SampleCount      int      `json:"sample_count"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error,omitempty"`
}

// Truncate removes every buffer point and chart sample in one transaction.
func (s *Store) Truncate(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin truncate: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		for _, table := range []string{"realtime_buffer", "control_chart_data"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
		}
		return tx.Commit()
	})
}

// CheckHealth returns diagnostic information about the SPC database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.Path()}
	if health.DBPath == "" {
		return health, errors.New("spc database path is unknown")
	}

	info, err := os.Stat(health.DBPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat spc database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("spc database path %q is a directory", health.DBPath)
	}
	health.DatabaseExists = true

	if err := s.ready(); err != nil {
		return health, err
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping spc database: %w", err)
	}
	health.DatabaseReadable = true

	if health.SchemaVersion, err = s.schemaVersion(connCtx); err != nil {
		health.Error = err.Error()
		return health, err
	}

	for _, table := range expectedTables {
		var name string
		row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err := row.Scan(&name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
		health.TablesPresent = append(health.TablesPresent, name)
	}

	if slices.Contains(health.TablesPresent, "realtime_buffer") {
		columns, err := s.tableColumns(connCtx, "realtime_buffer")
		if err != nil {
			health.Error = err.Error()
			return health, err
		}
		for _, want := range pointColumnNames {
			if !slices.Contains(columns, want) {
				health.MissingColumns = append(health.MissingColumns, want)
			}
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM realtime_buffer").Scan(&health.PointCount); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count points: %w", err)
		}
	}
	if slices.Contains(health.TablesPresent, "control_chart_data") {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(1) FROM control_chart_data").Scan(&health.SampleCount); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count samples: %w", err)
		}
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = integrity == "ok"
	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typeStr string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typeStr, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}
