package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeSnapshot()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SnapshotDir) == "" {
		c.Paths.SnapshotDir = defaultSnapshotDir
	}
	if c.Paths.SnapshotDir, err = expandPath(c.Paths.SnapshotDir); err != nil {
		return fmt.Errorf("paths.snapshot_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	if value, ok := os.LookupEnv("CASTSPC_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Paths.APIToken = value
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	if c.Source.Kind == "" {
		c.Source.Kind = defaultSourceKind
	}
	if value, ok := os.LookupEnv("CASTSPC_SOURCE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Source.WebSocketURL = value
	}
	c.Source.WebSocketURL = strings.TrimSpace(c.Source.WebSocketURL)
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultSourceRequestTimeout
	}

	molds := make([]string, 0, len(c.Source.MoldCodes))
	seen := make(map[string]struct{}, len(c.Source.MoldCodes))
	for _, code := range c.Source.MoldCodes {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		molds = append(molds, trimmed)
	}
	if len(molds) == 0 {
		molds = append(molds, defaultMoldCodes...)
	}
	c.Source.MoldCodes = molds
}

func (c *Config) normalizeSnapshot() {
	c.Snapshot.Format = strings.ToLower(strings.TrimSpace(c.Snapshot.Format))
	switch c.Snapshot.Format {
	case "":
		c.Snapshot.Format = defaultSnapshotFormat
	case "yml":
		c.Snapshot.Format = SnapshotYAML
	}
	c.Snapshot.Schedule = strings.TrimSpace(c.Snapshot.Schedule)
	if c.Snapshot.Schedule == "" {
		c.Snapshot.Schedule = defaultSnapshotSchedule
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
