package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics defines the metrics recorded over a scan run. It also satisfies
// the file worker's classifier metrics.
type ScanMetrics interface {
	// File metrics
	IncFilesScanned(ctx context.Context)
	IncFileFailures(ctx context.Context, reason string)
	ObserveFileDuration(ctx context.Context, d time.Duration)
	AddActiveWorkers(ctx context.Context, delta int)

	// Finding metrics
	ObserveFindings(ctx context.Context, kind string, count int)

	// Classifier metrics
	IncClassifierCalls(ctx context.Context)
	IncClassifierErrors(ctx context.Context)
	ObserveChunkBytes(ctx context.Context, size int)
}

// scanMetrics implements ScanMetrics with OpenTelemetry instruments.
type scanMetrics struct {
	// File metrics
	filesScanned  metric.Int64Counter
	fileFailures  metric.Int64Counter
	fileDuration  metric.Float64Histogram
	activeWorkers metric.Int64UpDownCounter

	// Finding metrics
	findings metric.Int64Counter

	// Classifier metrics
	classifierCalls  metric.Int64Counter
	classifierErrors metric.Int64Counter
	chunkBytes       metric.Int64Histogram
}

const namespace = "piiguard"

// NewScanMetrics creates a new ScanMetrics instance.
func NewScanMetrics(mp metric.MeterProvider) (*scanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(scanMetrics)
	var err error

	if s.filesScanned, err = meter.Int64Counter(
		"files_scanned_total",
		metric.WithDescription("Total number of files processed by file workers"),
	); err != nil {
		return nil, err
	}

	if s.fileFailures, err = meter.Int64Counter(
		"file_failures_total",
		metric.WithDescription("Total number of files skipped or failed"),
	); err != nil {
		return nil, err
	}

	if s.fileDuration, err = meter.Float64Histogram(
		"file_scan_duration_seconds",
		metric.WithDescription("Time taken to scan each file"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if s.activeWorkers, err = meter.Int64UpDownCounter(
		"active_workers",
		metric.WithDescription("Number of file workers currently running"),
	); err != nil {
		return nil, err
	}

	if s.findings, err = meter.Int64Counter(
		"findings_total",
		metric.WithDescription("Total number of findings reported"),
	); err != nil {
		return nil, err
	}

	if s.classifierCalls, err = meter.Int64Counter(
		"classifier_calls_total",
		metric.WithDescription("Total number of entity classifier requests"),
	); err != nil {
		return nil, err
	}

	if s.classifierErrors, err = meter.Int64Counter(
		"classifier_errors_total",
		metric.WithDescription("Total number of failed entity classifier requests"),
	); err != nil {
		return nil, err
	}

	if s.chunkBytes, err = meter.Int64Histogram(
		"chunk_size_bytes",
		metric.WithDescription("Size of chunks sent to the entity classifier"),
		metric.WithUnit("bytes"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

// File metrics implementations
func (m *scanMetrics) IncFilesScanned(ctx context.Context) {
	m.filesScanned.Add(ctx, 1)
}

func (m *scanMetrics) IncFileFailures(ctx context.Context, reason string) {
	m.fileFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *scanMetrics) ObserveFileDuration(ctx context.Context, d time.Duration) {
	m.fileDuration.Record(ctx, d.Seconds())
}

func (m *scanMetrics) AddActiveWorkers(ctx context.Context, delta int) {
	m.activeWorkers.Add(ctx, int64(delta))
}

func (m *scanMetrics) ObserveFindings(ctx context.Context, kind string, count int) {
	m.findings.Add(ctx, int64(count), metric.WithAttributes(attribute.String("kind", kind)))
}

// Classifier metrics implementations
func (m *scanMetrics) IncClassifierCalls(ctx context.Context) {
	m.classifierCalls.Add(ctx, 1)
}

func (m *scanMetrics) IncClassifierErrors(ctx context.Context) {
	m.classifierErrors.Add(ctx, 1)
}

func (m *scanMetrics) ObserveChunkBytes(ctx context.Context, size int) {
	m.chunkBytes.Record(ctx, int64(size))
}
