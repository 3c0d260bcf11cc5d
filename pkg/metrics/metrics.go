// Package metrics records scan and tool execution metrics through OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// ScanMetrics defines the metrics operations of the scan pipeline.
type ScanMetrics interface {
	IncScansStarted(ctx context.Context)
	IncScansFinished(ctx context.Context, status string)
	AddActiveScans(ctx context.Context, delta int64)
	ObserveScanDuration(ctx context.Context, duration time.Duration)

	ObserveToolRun(ctx context.Context, tool, status string, duration time.Duration)
	AddFindings(ctx context.Context, tool string, count int)
	AddDroppedFindings(ctx context.Context, tool string, count int)
	AddSeverityFallbacks(ctx context.Context, tool string, count int)
}

type scanMetrics struct {
	scansStarted  metric.Int64Counter
	scansFinished metric.Int64Counter
	activeScans   metric.Int64UpDownCounter
	scanDuration  metric.Float64Histogram

	toolRuns          metric.Int64Counter
	toolDuration      metric.Float64Histogram
	findings          metric.Int64Counter
	droppedFindings   metric.Int64Counter
	severityFallbacks metric.Int64Counter
}

const namespace = "scanhub"

// NewScanMetrics creates the instruments on mp.
func NewScanMetrics(mp metric.MeterProvider) (ScanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(scanMetrics)
	var err error

	if m.scansStarted, err = meter.Int64Counter(
		"scans_started_total",
		metric.WithDescription("Total number of scans started"),
	); err != nil {
		return nil, err
	}

	if m.scansFinished, err = meter.Int64Counter(
		"scans_finished_total",
		metric.WithDescription("Total number of scans that reached a terminal state"),
	); err != nil {
		return nil, err
	}

	if m.activeScans, err = meter.Int64UpDownCounter(
		"active_scans",
		metric.WithDescription("Number of scans currently executing"),
	); err != nil {
		return nil, err
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Wall time of finished scans"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.toolRuns, err = meter.Int64Counter(
		"tool_runs_total",
		metric.WithDescription("Total number of adapter runs by outcome"),
	); err != nil {
		return nil, err
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"tool_run_duration_seconds",
		metric.WithDescription("Wall time of adapter runs"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.findings, err = meter.Int64Counter(
		"findings_total",
		metric.WithDescription("Total number of normalized findings"),
	); err != nil {
		return nil, err
	}

	if m.droppedFindings, err = meter.Int64Counter(
		"findings_dropped_total",
		metric.WithDescription("Total number of findings that could not be normalized"),
	); err != nil {
		return nil, err
	}

	if m.severityFallbacks, err = meter.Int64Counter(
		"severity_fallbacks_total",
		metric.WithDescription("Total number of findings whose severity was not mapped"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() ScanMetrics {
	m, _ := NewScanMetrics(noop.NewMeterProvider())
	return m
}

func (m *scanMetrics) IncScansStarted(ctx context.Context) {
	m.scansStarted.Add(ctx, 1)
}

func (m *scanMetrics) IncScansFinished(ctx context.Context, status string) {
	m.scansFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *scanMetrics) AddActiveScans(ctx context.Context, delta int64) {
	m.activeScans.Add(ctx, delta)
}

func (m *scanMetrics) ObserveScanDuration(ctx context.Context, duration time.Duration) {
	m.scanDuration.Record(ctx, duration.Seconds())
}

func (m *scanMetrics) ObserveToolRun(ctx context.Context, tool, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.toolRuns.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *scanMetrics) AddFindings(ctx context.Context, tool string, count int) {
	m.findings.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tool", tool)))
}

func (m *scanMetrics) AddDroppedFindings(ctx context.Context, tool string, count int) {
	if count > 0 {
		m.droppedFindings.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tool", tool)))
	}
}

func (m *scanMetrics) AddSeverityFallbacks(ctx context.Context, tool string, count int) {
	if count > 0 {
		m.severityFallbacks.Add(ctx, int64(count), metric.WithAttributes(attribute.String("tool", tool)))
	}
}
