package metrics

import (
	"context"
	"time"

	"github.com/pulseone/pulseone/internal/cache"
	"github.com/pulseone/pulseone/internal/factory"
	"github.com/pulseone/pulseone/internal/pipeline"
)

// CacheSource is the slice of cache.Cache[K, V]'s method set the
// collector needs; declared locally (rather than over a concrete
// generic type) so one Collector can watch several differently-typed
// caches (device, data point, current value) through one map.
type CacheSource interface {
	Stats() cache.Stats
}

// Collector periodically pulls Stats() snapshots from the factory, the
// pipeline bridge, and any number of named repository caches, feeding
// each into a Recorder. It runs on a ticker the same way WorkerCore's
// pollLoop does: a single goroutine, cancelled by context, ticking at
// a fixed interval (spec §6 has no fixed scrape interval, so 10s is a
// reasonable default for a push-style recorder sitting in front of a
// pull-based OTel exporter).
type Collector struct {
	recorder *Recorder
	interval time.Duration

	factory  *factory.Factory
	pipeline *pipeline.Bridge
	caches   map[string]CacheSource
}

// NewCollector builds a Collector recording into r at the given
// interval. factory or pipeline may be nil if that component isn't
// wired into this process; caches may be nil or empty.
func NewCollector(r *Recorder, interval time.Duration, f *factory.Factory, p *pipeline.Bridge, caches map[string]CacheSource) *Collector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Collector{recorder: r, interval: interval, factory: f, pipeline: p, caches: caches}
}

// Run blocks, collecting on every tick until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce(ctx)
		}
	}
}

func (c *Collector) collectOnce(ctx context.Context) {
	if c.factory != nil {
		s := c.factory.Stats()
		c.recorder.RecordFactory(ctx, FactorySnapshot{
			WorkersCreated:   s.WorkersCreated,
			CreationFailures: s.CreationFailures,
		})
	}
	if c.pipeline != nil {
		s := c.pipeline.Stats()
		c.recorder.RecordPipeline(ctx, PipelineSnapshot{
			Accepted: s.Accepted,
			Rejected: s.Rejected,
			Queued:   int64(s.Queued),
		})
	}
	for name, cs := range c.caches {
		s := cs.Stats()
		c.recorder.RecordCache(ctx, name, CacheSnapshot{
			Hits:      s.Hits,
			Misses:    s.Misses,
			Evictions: s.Evictions,
		})
	}
}
