package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"castspc/internal/api"
	"castspc/internal/apiclient"
	"castspc/internal/preflight"
)

type offlineStatus struct {
	Running   bool               `json:"running"`
	APIBind   string             `json:"api_bind"`
	Preflight []preflight.Result `json:"preflight"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and control chart status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.newClient()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if !apiclient.IsAPIUnavailable(err) {
					return wrapAPIError(err, ctx.apiAddress())
				}
				return renderOfflineStatus(cmd, ctx, jsonOutput)
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status, time.Now())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus, now time.Time) {
	out := cmd.OutOrStdout()
	report := newStatusReport(out)
	engine := status.Engine

	report.section("Daemon")
	report.line("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID))
	report.line("Source", statusInfo, engine.Source)
	report.line("Collecting", collectingKind(engine.Collecting), yesNo(engine.Collecting))
	report.line("Poll loop", workflowKind(status.Workflow), workflowMessage(status.Workflow))
	report.line("Database", statusInfo, status.DBPath)
	if status.LogPath != "" {
		report.line("Log", statusInfo, status.LogPath)
	}

	report.section("Control chart")
	report.line("Zone", zoneKind(engine.Zone), api.ZoneLabel(engine.Zone))
	report.line("Buffer", statusInfo, fmt.Sprintf("%s / %s records", formatCount(engine.BufferSize), formatCount(engine.BufferCapacity)))
	report.line("History", statusInfo, fmt.Sprintf("%s / %s samples", formatCount(engine.HistoryLen), formatCount(engine.HistoryCapacity)))
	report.line("Limits", provisionalKind(engine.Provisional), provisionalMessage(engine.Provisional))
	report.line("Last update", statusInfo, formatAge(engine.LastUpdate, now))
	report.line("Next update", statusInfo, api.FormatUntil(engine.NextUpdate, now))

	counters := engine.Counters
	report.line("Records", statusInfo, printer.Sprintf(
		"%d admitted, %d duplicates, %d malformed", counters.Admitted, counters.Duplicates, counters.Malformed))
	failureKind := statusInfo
	if counters.SourceErrors > 0 || counters.PersistFailures > 0 {
		failureKind = statusWarn
	}
	report.line("Failures", failureKind, printer.Sprintf(
		"%d source, %d persistence", counters.SourceErrors, counters.PersistFailures))

	if snap := status.Snapshot; snap.Enabled {
		report.section("Snapshots")
		kind, message := statusOK, snap.LastPath
		switch {
		case snap.LastError != "":
			kind, message = statusError, snap.LastError
		case message == "":
			kind, message = statusInfo, "none written yet"
		}
		report.line("Last export", kind, message)
		report.line("Next export", statusInfo, api.FormatUntil(snap.NextRun, now))
	}

	report.writeTo(out)
}

func renderOfflineStatus(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	checkCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	results := preflight.RunAll(checkCtx, cfg)

	if jsonOutput {
		return writeJSON(cmd, offlineStatus{Running: false, APIBind: ctx.apiAddress(), Preflight: results})
	}

	out := cmd.OutOrStdout()
	report := newStatusReport(out)
	report.section("Daemon")
	report.line("Daemon", statusWarn, "not running at "+ctx.apiAddress())
	report.section("Preflight")
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		report.line(result.Name, kind, result.Detail)
	}
	report.writeTo(out)
	return nil
}

func collectingKind(collecting bool) statusKind {
	if collecting {
		return statusOK
	}
	return statusWarn
}

func provisionalKind(provisional bool) statusKind {
	if provisional {
		return statusWarn
	}
	return statusOK
}

func provisionalMessage(provisional bool) string {
	if provisional {
		return "provisional (too few samples)"
	}
	return "established"
}

func workflowKind(wf api.WorkflowStatus) statusKind {
	switch {
	case !wf.Running:
		return statusError
	case wf.LastError != "":
		return statusWarn
	default:
		return statusOK
	}
}

func workflowMessage(wf api.WorkflowStatus) string {
	msg := printer.Sprintf("%d cycles", wf.Cycles)
	if wf.Panics > 0 {
		msg += printer.Sprintf(", %d recovered panics", wf.Panics)
	}
	if wf.LastError != "" {
		msg += "; last error: " + wf.LastError
	}
	return msg
}
