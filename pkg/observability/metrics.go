package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricLinesIndexed    = "linedex.lines.indexed"
	metricBytesScanned    = "linedex.bytes.scanned"
	metricScanDuration    = "linedex.scan.duration.seconds"
	metricLinesRead       = "linedex.lines.read"
	metricCheckpointSaves = "linedex.checkpoint.saves"

	attrOp = "op"

	opBuild  = "build"
	opExtend = "extend"
)

// scanBucketBoundaries covers sub-second extensions of small files up to
// multi-minute full scans of very large ones.
var scanBucketBoundaries = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}

// IndexMetrics holds the OTel instruments for index operations. A nil
// *IndexMetrics is valid and records nothing, so callers never branch on
// whether telemetry is configured.
type IndexMetrics struct {
	linesIndexed    metric.Int64Counter
	bytesScanned    metric.Int64Counter
	scanDuration    metric.Float64Histogram
	linesRead       metric.Int64Counter
	checkpointSaves metric.Int64Counter
}

// NewIndexMetrics creates the index instruments from the given meter.
func NewIndexMetrics(mt metric.Meter) (*IndexMetrics, error) {
	linesIndexed, err := mt.Int64Counter(metricLinesIndexed,
		metric.WithDescription("Lines added to the index"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLinesIndexed, err)
	}

	bytesScanned, err := mt.Int64Counter(metricBytesScanned,
		metric.WithDescription("Source bytes scanned while indexing"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBytesScanned, err)
	}

	scanDuration, err := mt.Float64Histogram(metricScanDuration,
		metric.WithDescription("Index scan duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(scanBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricScanDuration, err)
	}

	linesRead, err := mt.Int64Counter(metricLinesRead,
		metric.WithDescription("Lines served through indexed reads"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricLinesRead, err)
	}

	checkpointSaves, err := mt.Int64Counter(metricCheckpointSaves,
		metric.WithDescription("Durable job checkpoint saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCheckpointSaves, err)
	}

	return &IndexMetrics{
		linesIndexed:    linesIndexed,
		bytesScanned:    bytesScanned,
		scanDuration:    scanDuration,
		linesRead:       linesRead,
		checkpointSaves: checkpointSaves,
	}, nil
}

// RecordBuild records a completed full scan.
func (im *IndexMetrics) RecordBuild(lines, bytes uint64, elapsed time.Duration) {
	im.recordScan(opBuild, lines, bytes, elapsed)
}

// RecordExtend records a completed incremental scan.
func (im *IndexMetrics) RecordExtend(lines, bytes uint64, elapsed time.Duration) {
	im.recordScan(opExtend, lines, bytes, elapsed)
}

func (im *IndexMetrics) recordScan(op string, lines, bytes uint64, elapsed time.Duration) {
	if im == nil {
		return
	}

	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String(attrOp, op))

	im.linesIndexed.Add(ctx, int64(lines), attrs)
	im.bytesScanned.Add(ctx, int64(bytes), attrs)
	im.scanDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordReads records lines served through indexed reads.
func (im *IndexMetrics) RecordReads(n int) {
	if im == nil {
		return
	}

	im.linesRead.Add(context.Background(), int64(n))
}

// RecordCheckpointSave records one durable job checkpoint.
func (im *IndexMetrics) RecordCheckpointSave() {
	if im == nil {
		return
	}

	im.checkpointSaves.Add(context.Background(), 1)
}
