package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"castspc/internal/api"
	"castspc/internal/apiclient"
	"castspc/internal/spc"
)

func newChartCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newChartCommand(ctx),
		newSampleCommand(ctx),
		newStatsCommand(ctx),
		newUpdateCommand(ctx),
		newResetCommand(ctx),
		newCollectCommand(ctx),
	}
}

func newChartCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var limit int

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show control chart samples and limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				chart, err := client.Chart(reqCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, chart)
				}
				renderChart(cmd, chart.ChartView, limit)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent samples to list (0 for all)")
	return cmd
}

func renderChart(cmd *cobra.Command, chart spc.ChartView, limit int) {
	out := cmd.OutOrStdout()
	if len(chart.Samples) == 0 {
		fmt.Fprintln(out, "No chart samples yet")
		return
	}

	samples := chart.Samples
	offset := 0
	if limit > 0 && len(samples) > limit {
		offset = len(samples) - limit
		samples = samples[offset:]
	}
	rows := make([][]string, 0, len(samples))
	for i, sample := range samples {
		zone := spc.Classify(sample.DefectRate, chart.Limits)
		rows = append(rows, []string{
			strconv.Itoa(offset + i + 1),
			api.FormatTimestamp(sample.Timestamp),
			api.FormatRate(sample.DefectRate),
			formatCount(sample.DefectCount),
			formatCount(sample.TotalCount),
			api.ZoneLabel(zone),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Time", "Defect rate", "Defects", "Total", "Zone"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))

	summary := chart.Summary
	fmt.Fprintf(out, "Limits:  %s\n", limitsLine(chart.Limits))
	fmt.Fprintf(out, "Summary: latest %s, average %s, range %s to %s\n",
		api.FormatRate(summary.LatestRate), api.FormatRate(summary.AverageRate),
		api.FormatRate(summary.MinRate), api.FormatRate(summary.MaxRate))
	fmt.Fprintf(out, "Signals: %s out of control, %s warning; current zone %s\n",
		formatCount(summary.OutOfControl), formatCount(summary.Warning), api.ZoneLabel(summary.CurrentZone))
}

func newSampleCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Show the defect rate over the current rate window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				resp, ok, err := client.Sample(reqCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					if !ok {
						return writeJSON(cmd, map[string]any{"sample": nil})
					}
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintln(out, "No records in the current rate window")
					return nil
				}
				colorize := shouldColorize(out)
				sample := resp.Sample
				fmt.Fprintln(out, renderStatusLine("Defect rate", zoneKind(resp.Zone), api.FormatRate(sample.DefectRate), colorize))
				fmt.Fprintln(out, renderStatusLine("Records", statusInfo, printer.Sprintf("%d defects of %d", sample.DefectCount, sample.TotalCount), colorize))
				fmt.Fprintln(out, renderStatusLine("Zone", zoneKind(resp.Zone), api.ZoneLabel(resp.Zone), colorize))
				fmt.Fprintln(out, renderStatusLine("Sampled at", statusInfo, api.FormatTimestamp(sample.Timestamp), colorize))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type statsWithSamples struct {
	api.StatsResponse
	Samples []spc.Sample `json:"samples"`
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var listSamples bool
	var hours int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stored chart statistics for a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours < 0 {
				return fmt.Errorf("--hours must be positive")
			}
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				stats, err := client.Stats(reqCtx, hours)
				if err != nil {
					return err
				}
				if !listSamples {
					if jsonOutput {
						return writeJSON(cmd, stats)
					}
					renderStats(cmd, stats)
					return nil
				}
				listed, err := client.Samples(reqCtx, hours)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, statsWithSamples{StatsResponse: stats, Samples: listed.Samples})
				}
				renderStats(cmd, stats)
				renderSampleList(cmd, listed.Samples)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&hours, "hours", api.DefaultStatsHours, "Trailing window in hours (max 168)")
	cmd.Flags().BoolVar(&listSamples, "samples", false, "Also list every stored sample in the window")
	return cmd
}

// renderSampleList prints stored samples, which may reach further back than the live chart.
func renderSampleList(cmd *cobra.Command, samples []spc.Sample) {
	out := cmd.OutOrStdout()
	if len(samples) == 0 {
		fmt.Fprintln(out, "No stored samples in the window")
		return
	}
	rows := make([][]string, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []string{
			api.FormatTimestamp(sample.Timestamp),
			api.FormatRate(sample.DefectRate),
			formatCount(sample.DefectCount),
			formatCount(sample.TotalCount),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Time", "Defect rate", "Defects", "Total"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
}

func renderStats(cmd *cobra.Command, stats api.StatsResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Last %d hours (since %s)\n", stats.Hours, api.FormatTimestamp(stats.Since))
	s := stats.Stats
	rows := [][]string{{"Samples", formatCount(s.Count)}}
	if s.Count > 0 {
		rows = append(rows,
			[]string{"Average rate", api.FormatRate(s.Average)},
			[]string{"Minimum rate", api.FormatRate(s.Min)},
			[]string{"Maximum rate", api.FormatRate(s.Max)},
			[]string{"First sample", api.FormatTimestamp(s.First)},
			[]string{"Last sample", api.FormatTimestamp(s.Last)},
		)
	}
	rows = append(rows,
		[]string{"Passed records", formatCount(stats.Passed)},
		[]string{"Failed records", formatCount(stats.Failed)},
	)
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Append a chart sample now, ignoring the update interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				resp, err := client.ForceUpdate(reqCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Updated || resp.Sample == nil {
					fmt.Fprintln(out, "Chart unchanged: "+resp.Message)
					return nil
				}
				fmt.Fprintf(out, "Appended sample %s (%s defects of %s), zone %s\n",
					api.FormatRate(resp.Sample.DefectRate),
					formatCount(resp.Sample.DefectCount), formatCount(resp.Sample.TotalCount),
					api.ZoneLabel(resp.Zone))
				fmt.Fprintf(out, "Limits: %s\n", limitsLine(resp.Limits))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the buffer, chart history and stored data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return fmt.Errorf("reset discards all chart data; re-run with --yes to confirm")
			}
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				resp, err := client.Reset(reqCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Chart reset at %s\n", api.FormatTimestamp(resp.ResetAt))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Confirm the reset")
	return cmd
}

func newCollectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "collect on|off",
		Short:     "Pause or resume measurement collection",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(strings.TrimSpace(args[0])) {
			case "on", "resume", "start":
				enabled = true
			case "off", "pause", "stop":
				enabled = false
			default:
				return fmt.Errorf("unknown collection state %q (want on or off)", args[0])
			}
			return ctx.withClient(cmd, func(reqCtx context.Context, client *apiclient.Client) error {
				resp, err := client.SetCollecting(reqCtx, enabled)
				if err != nil {
					return err
				}
				if resp.Collecting {
					fmt.Fprintln(cmd.OutOrStdout(), "Collection resumed")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Collection paused")
				}
				return nil
			})
		},
	}
}
