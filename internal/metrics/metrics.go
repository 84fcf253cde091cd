// Package metrics exposes the worker/repository/cache counters spec §6
// calls out as a telemetry concern, as OpenTelemetry metric instruments.
// Components in this repository never import go.opentelemetry.io/otel
// themselves; they expose plain Stats() snapshots (internal/factory,
// internal/cache, internal/pipeline), and a single Recorder here turns
// those snapshots into instrument recordings. This keeps the metrics
// dependency at one seam, the same way the teacher keeps its own OTel
// instruments package-local to internal/storage/dolt rather than
// threading a meter through every storage call site.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pulseone/pulseone/metrics"

// instruments holds every OTel instrument this package records into.
// Registered against the global delegating provider at construction
// time, the same way the teacher's doltMetrics forwards to whatever
// real provider a caller later installs — absent that, these are
// no-ops, matching spec §6's "absence must not affect correctness".
type instruments struct {
	workersCreated    metric.Int64Counter
	creationFailures  metric.Int64Counter
	cacheHits         metric.Int64Counter
	cacheMisses       metric.Int64Counter
	cacheEvictions    metric.Int64Counter
	pipelineAccepted  metric.Int64Counter
	pipelineRejected  metric.Int64Counter
	pipelineQueued    metric.Int64Gauge
	reconnectAttempts metric.Int64Counter
	pollLatencyMs     metric.Float64Histogram
}

// Recorder turns plain Stats() snapshots from factory/cache/pipeline
// into OTel instrument recordings. It is safe for concurrent use.
type Recorder struct {
	inst instruments

	mu          sync.Mutex
	lastFactory FactorySnapshot
	lastCache   map[string]CacheSnapshot
	lastPipe    PipelineSnapshot
}

// FactorySnapshot is the subset of internal/factory.Stats this package
// records, duplicated locally so the Recorder works on plain values;
// only this package's Collector imports internal/factory to fill it.
type FactorySnapshot struct {
	WorkersCreated   int64
	CreationFailures int64
}

// CacheSnapshot mirrors internal/cache.Stats.
type CacheSnapshot struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// PipelineSnapshot mirrors internal/pipeline.Stats.
type PipelineSnapshot struct {
	Accepted int64
	Rejected int64
	Queued   int64
}

// NewRecorder registers every instrument against otel.Meter(meterName).
// Instrument registration failures are ignored (nil-valued instruments
// are safe zero values that silently drop recordings), the same
// tolerance the teacher shows for its own doltMetrics init.
func NewRecorder() *Recorder {
	m := otel.Meter(meterName)
	r := &Recorder{lastCache: make(map[string]CacheSnapshot)}

	r.inst.workersCreated, _ = m.Int64Counter("pulseone.factory.workers_created",
		metric.WithDescription("Protocol workers successfully constructed"),
		metric.WithUnit("{worker}"),
	)
	r.inst.creationFailures, _ = m.Int64Counter("pulseone.factory.creation_failures",
		metric.WithDescription("Worker construction attempts that failed"),
		metric.WithUnit("{failure}"),
	)
	r.inst.cacheHits, _ = m.Int64Counter("pulseone.cache.hits",
		metric.WithDescription("Repository cache lookups satisfied without a store round trip"),
		metric.WithUnit("{hit}"),
	)
	r.inst.cacheMisses, _ = m.Int64Counter("pulseone.cache.misses",
		metric.WithDescription("Repository cache lookups that fell through to the store"),
		metric.WithUnit("{miss}"),
	)
	r.inst.cacheEvictions, _ = m.Int64Counter("pulseone.cache.evictions",
		metric.WithDescription("Repository cache entries evicted under capacity pressure"),
		metric.WithUnit("{eviction}"),
	)
	r.inst.pipelineAccepted, _ = m.Int64Counter("pulseone.pipeline.accepted",
		metric.WithDescription("DeviceDataMessages accepted onto the pipeline bridge queue"),
		metric.WithUnit("{message}"),
	)
	r.inst.pipelineRejected, _ = m.Int64Counter("pulseone.pipeline.rejected",
		metric.WithDescription("DeviceDataMessages dropped because the pipeline bridge queue was full"),
		metric.WithUnit("{message}"),
	)
	r.inst.pipelineQueued, _ = m.Int64Gauge("pulseone.pipeline.queued",
		metric.WithDescription("Current depth of the pipeline bridge queue"),
		metric.WithUnit("{message}"),
	)
	r.inst.reconnectAttempts, _ = m.Int64Counter("pulseone.worker.reconnect_attempts",
		metric.WithDescription("Reconnection attempts made by protocol workers"),
		metric.WithUnit("{attempt}"),
	)
	r.inst.pollLatencyMs, _ = m.Float64Histogram("pulseone.worker.poll_latency_ms",
		metric.WithDescription("Wall-clock time of one device poll cycle"),
		metric.WithUnit("ms"),
	)

	return r
}

// RecordFactory records the delta since the last call against the
// factory's workers-created and creation-failures counters. factory.Stats
// already accumulates monotonically for the process lifetime, so the
// recorder only ever adds the increment, never the running total.
func (r *Recorder) RecordFactory(ctx context.Context, snap FactorySnapshot) {
	r.mu.Lock()
	prev := r.lastFactory
	r.lastFactory = snap
	r.mu.Unlock()

	if d := snap.WorkersCreated - prev.WorkersCreated; d > 0 {
		r.inst.workersCreated.Add(ctx, d)
	}
	if d := snap.CreationFailures - prev.CreationFailures; d > 0 {
		r.inst.creationFailures.Add(ctx, d)
	}
}

// RecordCache records the delta since the last call for one named
// cache instance (e.g. "device", "data_point", "current_value" — one
// per repository.Repository[K,E] that wraps a cache).
func (r *Recorder) RecordCache(ctx context.Context, name string, snap CacheSnapshot) {
	r.mu.Lock()
	prev := r.lastCache[name]
	r.lastCache[name] = snap
	r.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("cache", name))
	if d := snap.Hits - prev.Hits; d > 0 {
		r.inst.cacheHits.Add(ctx, d, attrs)
	}
	if d := snap.Misses - prev.Misses; d > 0 {
		r.inst.cacheMisses.Add(ctx, d, attrs)
	}
	if d := snap.Evictions - prev.Evictions; d > 0 {
		r.inst.cacheEvictions.Add(ctx, d, attrs)
	}
}

// RecordPipeline records the delta since the last call for
// accepted/rejected counts, plus the current queue depth as a gauge
// (queue depth is a level, not a cumulative total, so it is recorded
// directly rather than diffed).
func (r *Recorder) RecordPipeline(ctx context.Context, snap PipelineSnapshot) {
	r.mu.Lock()
	prev := r.lastPipe
	r.lastPipe = snap
	r.mu.Unlock()

	if d := snap.Accepted - prev.Accepted; d > 0 {
		r.inst.pipelineAccepted.Add(ctx, d)
	}
	if d := snap.Rejected - prev.Rejected; d > 0 {
		r.inst.pipelineRejected.Add(ctx, d)
	}
	r.inst.pipelineQueued.Record(ctx, snap.Queued)
}

// RecordReconnectAttempt records one reconnection attempt for a
// device, tagged with whether it succeeded (spec §6's reconnection
// event shape).
func (r *Recorder) RecordReconnectAttempt(ctx context.Context, deviceID string, succeeded bool) {
	r.inst.reconnectAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device_id", deviceID),
			attribute.Bool("succeeded", succeeded),
		),
	)
}

// RecordPollLatency records how long one poll cycle took for a device
// of the given protocol tag.
func (r *Recorder) RecordPollLatency(ctx context.Context, protocolTag string, d time.Duration) {
	r.inst.pollLatencyMs.Record(ctx, float64(d.Milliseconds()),
		metric.WithAttributes(attribute.String("protocol_tag", protocolTag)),
	)
}
