package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"castspc/internal/config"
	"castspc/internal/daemon"
	"castspc/internal/logging"
	"castspc/internal/measurement"
	"castspc/internal/spc"
	"castspc/internal/store"
	"castspc/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *store.Store
	daemon     *daemon.Daemon
	configPath string
}

// setupCLITestEnv seeds three chart samples and a few points, then starts a
// daemon whose API address is written into a config file for the CLI.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	seedChart(t, st, time.Now())

	source := measurement.NewSimulatedSource(measurement.SimulatedOptions{
		FailRatio: cfg.Source.FailRatio,
		Seed:      cfg.Source.Seed,
		MoldCodes: cfg.Source.MoldCodes,
	})
	engine := spc.NewEngine(source, st, spc.OptionsFromConfig(cfg), logging.NewNop(), time.Now())
	d, err := daemon.New(cfg, st, engine, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	cliCfg := *cfg
	cliCfg.Paths.APIBind = d.APIAddress()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "castspc.toml")
	writeTestConfig(t, configPath, &cliCfg)

	return &cliTestEnv{cfg: cfg, store: st, daemon: d, configPath: configPath}
}

func seedChart(t *testing.T, st *store.Store, now time.Time) {
	t.Helper()
	ctx := context.Background()
	rates := []float64{20, 25, 30}
	var history []float64
	for i, rate := range rates {
		history = append(history, rate)
		sample := spc.Sample{
			Timestamp:   now.Add(time.Duration(i-len(rates)) * 30 * time.Second),
			DefectRate:  rate,
			TotalCount:  20,
			DefectCount: int(rate / 5),
		}
		if err := st.SaveSample(ctx, sample, spc.ComputeLimits(history, 5)); err != nil {
			t.Fatalf("SaveSample: %v", err)
		}
	}
	verdicts := map[string]measurement.Verdict{"seed-1": measurement.Pass, "seed-2": measurement.Fail, "seed-3": measurement.Pass}
	i := 0
	for _, id := range []string{"seed-1", "seed-2", "seed-3"} {
		i++
		rec := testsupport.NewRecord(id, now.Add(-time.Duration(10-i)*time.Minute), verdicts[id])
		testsupport.SavePoint(t, st, rec)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", substr, output)
	}
}
