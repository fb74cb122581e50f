package daemon

import (
	"github.com/prometheus/client_golang/prometheus"

	"castspc/internal/spc"
)

// engineCollector publishes engine status on every scrape.
type engineCollector struct {
	daemon *Daemon

	bufferSize      *prometheus.Desc
	historyLen      *prometheus.Desc
	collecting      *prometheus.Desc
	provisional     *prometheus.Desc
	defectRate      *prometheus.Desc
	limit           *prometheus.Desc
	zone            *prometheus.Desc
	events          *prometheus.Desc
	pollCycles      *prometheus.Desc
	pollPanics      *prometheus.Desc
	nextUpdateEpoch *prometheus.Desc
}

func newEngineCollector(d *Daemon) *engineCollector {
	return &engineCollector{
		daemon:          d,
		bufferSize:      prometheus.NewDesc("castspc_buffer_records", "Records held in the rolling buffer.", nil, nil),
		historyLen:      prometheus.NewDesc("castspc_chart_samples", "Samples held in the control chart history.", nil, nil),
		collecting:      prometheus.NewDesc("castspc_collecting", "1 when measurement collection is enabled.", nil, nil),
		provisional:     prometheus.NewDesc("castspc_limits_provisional", "1 while the chart has fewer samples than min_samples.", nil, nil),
		defectRate:      prometheus.NewDesc("castspc_defect_rate_percent", "Defect rate of the newest chart sample.", nil, nil),
		limit:           prometheus.NewDesc("castspc_control_limit_percent", "Current control chart bands.", []string{"band"}, nil),
		zone:            prometheus.NewDesc("castspc_chart_zone", "1 for the zone of the newest chart sample.", []string{"zone"}, nil),
		events:          prometheus.NewDesc("castspc_events_total", "Engine event counters.", []string{"event"}, nil),
		pollCycles:      prometheus.NewDesc("castspc_poll_cycles_total", "Poll loop cycles run.", nil, nil),
		pollPanics:      prometheus.NewDesc("castspc_poll_panics_total", "Poll cycles that panicked and were recovered.", nil, nil),
		nextUpdateEpoch: prometheus.NewDesc("castspc_next_update_timestamp_seconds", "Unix time of the next scheduled chart update.", nil, nil),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range []*prometheus.Desc{
		c.bufferSize, c.historyLen, c.collecting, c.provisional, c.defectRate,
		c.limit, c.zone, c.events, c.pollCycles, c.pollPanics, c.nextUpdateEpoch,
	} {
		ch <- desc
	}
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	status := c.daemon.engine.Status(c.daemon.clock())
	chart := c.daemon.engine.Chart()
	wf := c.daemon.workflow.Status()

	gauge := func(desc *prometheus.Desc, value float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
	}
	counter := func(desc *prometheus.Desc, value uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), labels...)
	}

	gauge(c.bufferSize, float64(status.BufferSize))
	gauge(c.historyLen, float64(status.HistoryLen))
	gauge(c.collecting, boolValue(status.Collecting))
	gauge(c.provisional, boolValue(status.Provisional))
	gauge(c.defectRate, chart.Summary.LatestRate)
	gauge(c.limit, chart.Limits.Mean, "mean")
	gauge(c.limit, chart.Limits.UCL, "ucl")
	gauge(c.limit, chart.Limits.LCL, "lcl")
	gauge(c.limit, chart.Limits.USL, "usl")
	gauge(c.limit, chart.Limits.LSL, "lsl")
	for _, zone := range []spc.Zone{spc.ZoneNoData, spc.ZoneInControl, spc.ZoneWarning, spc.ZoneOutOfControl} {
		gauge(c.zone, boolValue(status.Zone == zone), string(zone))
	}
	counter(c.events, status.Counters.Admitted, "admitted")
	counter(c.events, status.Counters.Duplicates, "duplicate")
	counter(c.events, status.Counters.Malformed, "malformed")
	counter(c.events, status.Counters.SourceErrors, "source_error")
	counter(c.events, status.Counters.PersistFailures, "persist_failure")
	counter(c.events, status.Counters.Updates, "chart_update")
	counter(c.events, status.Counters.SkippedUpdates, "skipped_update")
	counter(c.pollCycles, wf.Cycles)
	counter(c.pollPanics, wf.Panics)
	gauge(c.nextUpdateEpoch, float64(status.NextUpdate.Unix()))
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
