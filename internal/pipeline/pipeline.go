// Package pipeline implements the bridge between a worker.WorkerCore and
// the downstream pipeline consumer spec §1 scopes as an external
// collaborator (described only by its accept-or-reject interface). The
// Bridge is the one piece of that boundary PulseOne itself owns: a
// bounded, non-blocking queue satisfying worker.Sink, drained by a
// background goroutine that hands each message to whatever Consumer the
// caller wires in (a real pipeline, a test spy, or a CCR-side ingester).
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/worker"
)

// Consumer is the downstream pipeline's accept contract. Unlike
// worker.Sink's Push, Consume never signals backpressure back to the
// caller: once Bridge has accepted a message onto its queue, delivery
// to Consume is the bridge's own problem, not the worker's.
type Consumer interface {
	Consume(ctx context.Context, msg *worker.DeviceDataMessage)
}

// defaultQueueCapacity bounds the bridge's internal channel (spec §4.3:
// "queue overflow returns false and is counted as a failure" — the
// exact capacity is left to the deployment, this is a reasonable
// default sized for one device's burst under a slow consumer).
const defaultQueueCapacity = 256

// Bridge is a worker.Sink that queues DeviceDataMessages and forwards
// them to a Consumer on a background goroutine, never blocking the
// poll loop that called Push (spec §6: "fire-and-forget sink with
// backpressure-as-rejection; no response channel").
type Bridge struct {
	queue    chan *worker.DeviceDataMessage
	consumer Consumer
	log      *logging.Logger

	accepted atomic.Int64
	rejected atomic.Int64

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithQueueCapacity overrides the default queue depth.
func WithQueueCapacity(capacity int) Option {
	return func(b *Bridge) { b.queue = make(chan *worker.DeviceDataMessage, capacity) }
}

// New builds a Bridge delivering to consumer.
func New(consumer Consumer, opts ...Option) *Bridge {
	b := &Bridge{
		queue:    make(chan *worker.DeviceDataMessage, defaultQueueCapacity),
		consumer: consumer,
		log:      logging.Default().With("pipeline"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push implements worker.Sink: a non-blocking send that drops (and
// counts) the message if the queue is full, matching the rpc package's
// watcher-dispatch pattern of "select with a default drop" rather than
// ever blocking the producer.
func (b *Bridge) Push(ctx context.Context, msg *worker.DeviceDataMessage) bool {
	select {
	case b.queue <- msg:
		b.accepted.Add(1)
		return true
	default:
		b.rejected.Add(1)
		b.log.Warnf("queue full, dropping batch seq=%d device=%s", msg.BatchSequence, msg.DeviceID)
		return false
	}
}

// Start launches the drain goroutine. Calling Start on an already-
// running Bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	if b.running {
		return
	}
	drainCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.wg.Add(1)
	go b.drainLoop(drainCtx)
}

// Stop cancels the drain goroutine and waits for it to exit. Messages
// still queued at the time of Stop are left undelivered, matching the
// fire-and-forget contract: nothing downstream of Push is guaranteed.
func (b *Bridge) Stop() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	if !b.running {
		return
	}
	b.cancel()
	b.wg.Wait()
	b.running = false
}

func (b *Bridge) drainLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.queue:
			b.consumer.Consume(ctx, msg)
		}
	}
}

// Stats is the bridge's observable counter set.
type Stats struct {
	Accepted int64
	Rejected int64
	Queued   int
}

// Stats returns a snapshot of accept/reject counters and current depth.
func (b *Bridge) Stats() Stats {
	return Stats{
		Accepted: b.accepted.Load(),
		Rejected: b.rejected.Load(),
		Queued:   len(b.queue),
	}
}

var _ worker.Sink = (*Bridge)(nil)
