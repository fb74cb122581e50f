package testsupport

import (
	"path/filepath"
	"testing"

	"castspc/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source is simulated with a fixed seed and the API binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SnapshotDir = filepath.Join(base, "snapshots")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = ""
	cfgVal.Source.Kind = config.SourceSimulated
	cfgVal.Source.Seed = 42
	cfgVal.Logging.Format = "json"
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithAPIToken requires bearer auth on mutating API endpoints.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithSnapshots toggles the snapshot exporter and sets its format.
func WithSnapshots(enabled bool, format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Snapshot.Enabled = enabled
		if format != "" {
			b.cfg.Snapshot.Format = format
		}
	}
}

// WithSPC overrides chart sizing.
func WithSPC(bufferSize, historySize, minSamples int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SPC.BufferSize = bufferSize
		b.cfg.SPC.HistorySize = historySize
		b.cfg.SPC.MinSamples = minSamples
	}
}

// WithFailRatio sets the simulated source's defect probability.
func WithFailRatio(ratio float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.FailRatio = ratio
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
