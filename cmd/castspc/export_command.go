package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"castspc/internal/config"
	"castspc/internal/measurement"
	"castspc/internal/snapshot"
	"castspc/internal/spc"
	"castspc/internal/store"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var dir string
	var hours int
	var verdictFilter string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a buffer snapshot from the stored points",
		Long: "Write a buffer snapshot from the points persisted in the database.\n\n" +
			"Works without a running daemon. Points older than --hours are left out;\n" +
			"--verdict keeps only Pass or only Fail points.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if hours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}
			var verdict measurement.Verdict
			if strings.TrimSpace(verdictFilter) != "" {
				parsed, ok := measurement.ParseVerdict(verdictFilter)
				if !ok {
					return fmt.Errorf("unsupported verdict %q (want pass or fail)", verdictFilter)
				}
				verdict = parsed
			}
			format = strings.ToLower(strings.TrimSpace(format))
			if format == "" {
				format = cfg.Snapshot.Format
			}
			if format != config.SnapshotJSON && format != config.SnapshotYAML && format != "yml" {
				return fmt.Errorf("unsupported format %q (want json or yaml)", format)
			}
			target := strings.TrimSpace(dir)
			if target == "" {
				target = cfg.Paths.SnapshotDir
			} else if target, err = config.ExpandPath(target); err != nil {
				return fmt.Errorf("resolve output directory: %w", err)
			}

			now := time.Now()
			records, err := loadStoredRecords(cmd.Context(), cfg, now.Add(-time.Duration(hours)*time.Hour), verdict)
			if err != nil {
				return err
			}
			if len(records) > cfg.SPC.BufferSize {
				records = records[len(records)-cfg.SPC.BufferSize:]
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No stored points in the window; nothing exported")
				return nil
			}
			path, err := snapshot.Write(target, format, records, now)
			if err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			fmt.Fprintf(out, "Exported %s records to %s\n", formatCount(len(records)), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Snapshot format: json or yaml (defaults to snapshot.format)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Output directory (defaults to paths.snapshot_dir)")
	cmd.Flags().IntVar(&hours, "hours", 24, "Include points from the trailing window in hours")
	cmd.Flags().StringVar(&verdictFilter, "verdict", "", "Only export points with this verdict: pass or fail")
	return cmd
}

// loadStoredRecords reads persisted points since the cutoff. An empty verdict keeps every point.
func loadStoredRecords(ctx context.Context, cfg *config.Config, since time.Time, verdict measurement.Verdict) ([]measurement.Record, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var points []spc.StoredPoint
	if verdict == "" {
		points, err = st.LoadRecentPoints(ctx, since)
	} else {
		points, err = st.PointsByVerdict(ctx, since, verdict)
	}
	if err != nil {
		return nil, fmt.Errorf("load stored points: %w", err)
	}
	records := make([]measurement.Record, 0, len(points))
	for _, point := range points {
		records = append(records, point.Record)
	}
	return records, nil
}
