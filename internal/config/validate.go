package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateSPC(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSnapshot(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	switch c.Source.Kind {
	case SourceSimulated:
		if c.Source.FailRatio < 0 || c.Source.FailRatio > 1 {
			return errors.New("source.fail_ratio must be between 0 and 1")
		}
	case SourceWebSocket:
		if c.Source.WebSocketURL == "" {
			return errors.New("source.websocket_url must be set when source.kind is websocket")
		}
		parsed, err := url.Parse(c.Source.WebSocketURL)
		if err != nil {
			return fmt.Errorf("source.websocket_url: %w", err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("source.websocket_url must use ws or wss scheme, got %q", parsed.Scheme)
		}
	default:
		return fmt.Errorf("source.kind: unsupported value %q (want %s or %s)", c.Source.Kind, SourceSimulated, SourceWebSocket)
	}
	return nil
}

func (c *Config) validateSPC() error {
	if err := ensurePositiveMap(map[string]int{
		"spc.buffer_size":             c.SPC.BufferSize,
		"spc.rate_window_minutes":     c.SPC.RateWindowMinutes,
		"spc.history_size":            c.SPC.HistorySize,
		"spc.update_interval_seconds": c.SPC.UpdateIntervalSeconds,
		"spc.min_samples":             c.SPC.MinSamples,
	}); err != nil {
		return err
	}
	if c.SPC.BufferMaxAgeHours < 0 {
		return errors.New("spc.buffer_max_age_hours must be zero or positive")
	}
	if c.SPC.RestoreLookbackHours < 0 {
		return errors.New("spc.restore_lookback_hours must be zero or positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.poll_interval": c.Workflow.PollInterval,
		"workflow.store_timeout": c.Workflow.StoreTimeout,
		"source.request_timeout": c.Source.RequestTimeout,
	})
}

func (c *Config) validateSnapshot() error {
	switch c.Snapshot.Format {
	case SnapshotJSON, SnapshotYAML:
	default:
		return fmt.Errorf("snapshot.format: unsupported value %q (want json or yaml)", c.Snapshot.Format)
	}
	if c.Snapshot.RetentionDays < 0 {
		return errors.New("snapshot.retention_days must be zero or positive")
	}
	if !c.Snapshot.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Snapshot.Schedule); err != nil {
		return fmt.Errorf("snapshot.schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (want console or json)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
