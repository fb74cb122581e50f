package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Source kinds understood by measurement.NewSource.
const (
	SourceSimulated = "simulated"
	SourceWebSocket = "websocket"
)

// Snapshot file formats.
const (
	SnapshotJSON = "json"
	SnapshotYAML = "yaml"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	SnapshotDir string `toml:"snapshot_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Source selects and configures the measurement source.
type Source struct {
	Kind           string   `toml:"kind"`
	WebSocketURL   string   `toml:"websocket_url"`
	RequestTimeout int      `toml:"request_timeout"`
	FailRatio      float64  `toml:"fail_ratio"`
	Seed           int64    `toml:"seed"`
	MoldCodes      []string `toml:"mold_codes"`
}

// SPC contains the control chart window and bound settings.
type SPC struct {
	BufferSize            int `toml:"buffer_size"`
	BufferMaxAgeHours     int `toml:"buffer_max_age_hours"`
	RateWindowMinutes     int `toml:"rate_window_minutes"`
	HistorySize           int `toml:"history_size"`
	UpdateIntervalSeconds int `toml:"update_interval_seconds"`
	MinSamples            int `toml:"min_samples"`
	RestoreLookbackHours  int `toml:"restore_lookback_hours"`
}

// Workflow contains daemon polling cadence.
type Workflow struct {
	PollInterval   int  `toml:"poll_interval"`
	StoreTimeout   int  `toml:"store_timeout"`
	CollectOnStart bool `toml:"collect_on_start"`
}

// Snapshot contains configuration for periodic buffer exports.
type Snapshot struct {
	Enabled       bool   `toml:"enabled"`
	Schedule      string `toml:"schedule"`
	Format        string `toml:"format"`
	RetentionDays int    `toml:"retention_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Config encapsulates all configuration values for castspc.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address and token
//   - Source: simulated or websocket measurement source
//   - SPC: rolling buffer, rate window, chart size and update interval
//   - Workflow: daemon poll cadence and store timeouts
//   - Snapshot: scheduled buffer exports
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus endpoint
type Config struct {
	Paths    Paths    `toml:"paths"`
	Source   Source   `toml:"source"`
	SPC      SPC      `toml:"spc"`
	Workflow Workflow `toml:"workflow"`
	Snapshot Snapshot `toml:"snapshot"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/castspc/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("castspc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Snapshot.Enabled && strings.TrimSpace(c.Paths.SnapshotDir) != "" {
		if err := os.MkdirAll(c.Paths.SnapshotDir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory %q: %w", c.Paths.SnapshotDir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding buffer points and chart samples.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "control_chart.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "castspcd.lock")
}

// UpdateInterval is the minimum spacing between control chart samples.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.SPC.UpdateIntervalSeconds) * time.Second
}

// RateWindow is the trailing window used for defect-rate samples.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.SPC.RateWindowMinutes) * time.Minute
}

// BufferMaxAge bounds rolling buffer entries by age. Zero disables the age bound.
func (c *Config) BufferMaxAge() time.Duration {
	return time.Duration(c.SPC.BufferMaxAgeHours) * time.Hour
}

// RestoreLookback is how far back buffer points are reloaded at start-up.
func (c *Config) RestoreLookback() time.Duration {
	return time.Duration(c.SPC.RestoreLookbackHours) * time.Hour
}

// PollInterval is the daemon's collection cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.PollInterval) * time.Second
}

// StoreTimeout bounds every persistence call made from the poll loop.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Workflow.StoreTimeout) * time.Second
}

// SourceTimeout bounds a single fetch from the measurement source.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
