// Package telemetry implements the two optional sinks spec §6 describes
// as "Telemetry sinks (opt-in)": a Redis-style publisher for worker
// status/reconnection events, and an Influx-style time-series client for
// per-point samples. Both are additive observers layered on top of a
// worker.WorkerCore (via worker.StatusPublisher and a pipeline.Consumer
// respectively) — absence of either must never affect core correctness,
// matching spec §6's "both are optional; absence must not affect
// correctness".
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseone/pulseone/internal/worker"
)

const (
	defaultNamespace = "pulseone"
)

// RedisPublisherOption configures a RedisPublisher at construction time,
// matching the teacher's functional-options style for its own Redis
// store (internal/daemon/redis_wisp_store.go's RedisWispOption).
type RedisPublisherOption func(*RedisPublisher)

// WithNamespace overrides the channel name prefix.
func WithNamespace(ns string) RedisPublisherOption {
	return func(p *RedisPublisher) {
		if ns != "" {
			p.namespace = ns
		}
	}
}

// statusEvent is the JSON payload published to device_status:<id>.
type statusEvent struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	WorkerID        string `json:"worker_id"`
	ProtocolType    string `json:"protocol_type"`
	Endpoint        string `json:"endpoint"`
	State           string `json:"state"`
	Connected       bool   `json:"connected"`
	DataPointsCount int    `json:"data_points_count"`
	WriteSupported  bool   `json:"write_supported"`
	PublishedAt     string `json:"published_at"`
}

// reconnectionEvent is the JSON payload published to
// device_reconnection:<id>.
type reconnectionEvent struct {
	DeviceID    string `json:"device_id"`
	Succeeded   bool   `json:"succeeded"`
	Attempt     int64  `json:"attempt"`
	WaitCycle   bool   `json:"wait_cycle"`
	PublishedAt string `json:"published_at"`
}

// RedisPublisher implements worker.StatusPublisher by publishing JSON to
// per-device Redis pub/sub channels (spec §6: "device_status:<id>" /
// "device_reconnection:<id>"). A publish failure is counted, not
// logged, and never returned, since PublishStatus/PublishReconnection
// have no error channel — this mirrors the teacher's own Redis store
// being wrapped so failures never propagate into core worker logic.
type RedisPublisher struct {
	client    *redis.Client
	namespace string

	published atomic.Int64
	failures  atomic.Int64
}

// NewRedisPublisher connects to redisURL ("redis://host:port/db") and
// verifies connectivity with a bounded ping, the same shape as the
// teacher's NewRedisWispStore.
func NewRedisPublisher(redisURL string, opts ...RedisPublisherOption) (*RedisPublisher, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("telemetry: invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)

	p := &RedisPublisher{client: client, namespace: defaultNamespace}
	for _, opt := range opts {
		opt(p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: redis ping failed: %w", err)
	}
	return p, nil
}

func (p *RedisPublisher) statusChannel(deviceID string) string {
	return fmt.Sprintf("%s:device_status:%s", p.namespace, deviceID)
}

func (p *RedisPublisher) reconnectionChannel(deviceID string) string {
	return fmt.Sprintf("%s:device_reconnection:%s", p.namespace, deviceID)
}

// PublishStatus implements worker.StatusPublisher.
func (p *RedisPublisher) PublishStatus(ctx context.Context, deviceID string, status worker.StatusSnapshot) {
	evt := statusEvent{
		DeviceID:        status.DeviceID,
		DeviceName:      status.DeviceName,
		WorkerID:        status.WorkerID,
		ProtocolType:    status.ProtocolType,
		Endpoint:        status.Endpoint,
		State:           status.State,
		Connected:       status.Connected,
		DataPointsCount: status.DataPointsCount,
		WriteSupported:  status.WriteSupported,
		PublishedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	p.publish(ctx, p.statusChannel(deviceID), evt)
}

// PublishReconnection implements worker.StatusPublisher.
func (p *RedisPublisher) PublishReconnection(ctx context.Context, deviceID string, event worker.ReconnectionEvent) {
	evt := reconnectionEvent{
		DeviceID:    event.DeviceID,
		Succeeded:   event.Succeeded,
		Attempt:     event.Attempt,
		WaitCycle:   event.WaitCycle,
		PublishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	p.publish(ctx, p.reconnectionChannel(deviceID), evt)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.failures.Add(1)
		return
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.failures.Add(1)
		return
	}
	p.published.Add(1)
}

// Stats is the publisher's observable counter set.
type Stats struct {
	Published int64
	Failures  int64
}

// Stats returns a snapshot of publish counters.
func (p *RedisPublisher) Stats() Stats {
	return Stats{Published: p.published.Load(), Failures: p.failures.Load()}
}

// Close releases the underlying Redis client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ worker.StatusPublisher = (*RedisPublisher)(nil)
