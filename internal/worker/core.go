package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/model"
)

// gracePeriod bounds how long Stop waits for the poll/reconnection
// goroutines to observe cancellation before force-closing the
// transport (spec §5: "a protocol-specific grace period (default 5s)").
const gracePeriod = 5 * time.Second

// reconnectionTick is how often the reconnection loop wakes (spec §5:
// "1 s for the reconnection loop").
const reconnectionTick = 1 * time.Second

// Option configures a WorkerCore at construction time.
type Option func(*WorkerCore)

// WithSink sets the pipeline sink batches are pushed to.
func WithSink(sink Sink) Option { return func(c *WorkerCore) { c.sink = sink } }

// WithPublisher wires an optional telemetry status/reconnection publisher.
func WithPublisher(p StatusPublisher) Option { return func(c *WorkerCore) { c.publisher = p } }

// WithThresholds overrides the protocol-default status thresholds.
func WithThresholds(t StatusThresholds) Option { return func(c *WorkerCore) { c.thresholds = t } }

// WithCurrentValueSaver wires an optional best-effort persistence hook,
// called after each successfully decoded point (spec §4.1's repository
// layer, joined here rather than inside the driver per spec §9's
// "factory — not the repository — joins the two on load" guidance).
func WithCurrentValueSaver(save func(context.Context, model.CurrentValue)) Option {
	return func(c *WorkerCore) { c.saveCurrentValue = save }
}

// WorkerCore is the protocol-independent worker base (spec §4.3): the
// state machine, reconnection loop, deadband/status logic, and
// DeviceDataMessage emission shared by every protocol worker.
type WorkerCore struct {
	id     string
	device DeviceInfo
	driver ProtocolDriver
	log    *logging.Logger

	pointsMu sync.RWMutex
	points   []*model.DataPoint

	policyMu sync.RWMutex
	policy   model.ReconnectionPolicy

	thresholds StatusThresholds
	sink       Sink
	publisher  StatusPublisher

	saveCurrentValue func(context.Context, model.CurrentValue)

	state     atomic.Int32
	connected atomic.Bool

	inWaitCycle      atomic.Bool
	waitCycleUntilNS atomic.Int64
	nextAttemptNS    atomic.Int64
	retryCount       atomic.Int32

	connectMu sync.Mutex

	consecutiveFailures   atomic.Int64
	totalFailures         atomic.Int64
	totalAttempts         atomic.Int64
	successfulConnections atomic.Int64
	waitCycles            atomic.Int64
	reconnectionCycles    atomic.Int64
	lastSuccessNS         atomic.Int64
	lastResponseNS        atomic.Int64

	errMu         sync.Mutex
	lastErrorText string
	lastErrorCode string

	batchSeq   atomic.Int64
	prevStatus atomic.Int32

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewWorkerCore builds a WorkerCore for one device. points is the
// initial enabled data-point set; SetDataPoints can update it later
// (spec §5: "Data-point list: guarded by a mutex").
func NewWorkerCore(id string, device DeviceInfo, points []*model.DataPoint, driver ProtocolDriver, policy model.ReconnectionPolicy, opts ...Option) *WorkerCore {
	c := &WorkerCore{
		id:         id,
		device:     device,
		driver:     driver,
		policy:     policy,
		points:     points,
		thresholds: ThresholdsFor(device.ProtocolTag),
		log:        logging.Default().With("worker").With(id),
	}
	c.state.Store(int32(StateStopped))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the worker's identifier.
func (c *WorkerCore) ID() string { return c.id }

// State returns the worker's current lifecycle state.
func (c *WorkerCore) State() State { return State(c.state.Load()) }

// Connected reports whether the transport is currently established.
func (c *WorkerCore) Connected() bool { return c.connected.Load() }

// SetDataPoints replaces the polled point set (e.g. after a config
// reload); the polling loop picks it up on its next tick.
func (c *WorkerCore) SetDataPoints(points []*model.DataPoint) {
	c.pointsMu.Lock()
	c.points = points
	c.pointsMu.Unlock()
}

func (c *WorkerCore) dataPointsSnapshot() []*model.DataPoint {
	c.pointsMu.RLock()
	defer c.pointsMu.RUnlock()
	out := make([]*model.DataPoint, len(c.points))
	copy(out, c.points)
	return out
}

// Policy returns a copy of the current reconnection policy.
func (c *WorkerCore) Policy() model.ReconnectionPolicy {
	c.policyMu.RLock()
	defer c.policyMu.RUnlock()
	return c.policy
}

// SetPolicy replaces the reconnection policy (spec §5: "reconnection
// settings are guarded by a dedicated mutex").
func (c *WorkerCore) SetPolicy(p model.ReconnectionPolicy) {
	c.policyMu.Lock()
	c.policy = p
	c.policyMu.Unlock()
}

func (c *WorkerCore) setLastError(err error, code string) {
	c.errMu.Lock()
	c.lastErrorText = err.Error()
	c.lastErrorCode = code
	c.errMu.Unlock()
}

func (c *WorkerCore) lastError() (string, string) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErrorText, c.lastErrorCode
}

// Start launches the reconnection and polling loops. It returns
// immediately; connectivity is established asynchronously by the
// reconnection loop's first tick.
func (c *WorkerCore) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("worker %s: already started", c.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state.Store(int32(StateStarting))

	c.wg.Add(2)
	go c.reconnectionLoop(runCtx)
	go c.pollLoop(runCtx)
	c.log.Infof("started (endpoint=%s protocol=%s)", c.device.EndpointString, c.device.ProtocolTag)
	return nil
}

// Stop signals both loops to exit and waits up to gracePeriod before
// force-closing the transport (spec §5: "stop() MUST complete within a
// bounded interval").
func (c *WorkerCore) Stop(ctx context.Context) error {
	c.lifecycleMu.Lock()
	cancel := c.cancel
	c.lifecycleMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracePeriod):
		c.log.Warnf("stop grace period elapsed, force-closing transport")
		_ = c.driver.CloseProtocolConnection()
		<-done
	}

	c.connectMu.Lock()
	_ = c.driver.CloseProtocolConnection()
	c.connectMu.Unlock()
	c.connected.Store(false)
	c.state.Store(int32(StateStopped))

	c.lifecycleMu.Lock()
	c.cancel = nil
	c.lifecycleMu.Unlock()
	return nil
}

// Pause transitions an active worker to PAUSED; while paused the polling
// loop skips ticks and the reconnection loop neither reconnects nor
// sends keep-alives.
func (c *WorkerCore) Pause() {
	if State(c.state.Load()).IsActive() {
		c.state.Store(int32(StatePaused))
	}
}

// Resume transitions a paused worker back to RUNNING.
func (c *WorkerCore) Resume() {
	if State(c.state.Load()) == StatePaused {
		c.state.Store(int32(StateRunning))
	}
}

// Stats returns a snapshot of the connection counters carried on every
// outgoing message.
func (c *WorkerCore) Stats() ConnectionStats {
	text, code := c.lastError()
	return ConnectionStats{
		ConsecutiveFailures: c.consecutiveFailures.Load(),
		TotalFailures:       c.totalFailures.Load(),
		TotalAttempts:       c.totalAttempts.Load(),
		LastResponseTime:    time.Duration(c.lastResponseNS.Load()),
		LastErrorText:       text,
		LastErrorCode:       code,
	}
}

// ForceReconnect is an operator-initiated override (spec §4.3): close
// the current connection, clear wait-cycle/retry state, attempt an
// immediate reconnect, return its result. Safe to call concurrently
// with itself and with the reconnection loop; connectMu arbitrates so
// exactly one close+establish happens at a time.
func (c *WorkerCore) ForceReconnect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	_ = c.driver.CloseProtocolConnection()
	c.connected.Store(false)
	c.inWaitCycle.Store(false)
	c.retryCount.Store(0)
	c.waitCycleUntilNS.Store(0)

	return c.attemptConnectLocked(ctx)
}

// attemptConnectLocked performs one connect attempt. Caller must hold
// connectMu.
func (c *WorkerCore) attemptConnectLocked(ctx context.Context) error {
	policy := c.Policy()
	timeout := time.Duration(policy.ConnectionTimeoutSeconds) * time.Second
	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.totalAttempts.Add(1)
	err := c.driver.EstablishProtocolConnection(connCtx)
	if err != nil {
		c.totalFailures.Add(1)
		c.consecutiveFailures.Add(1)
		c.setLastError(err, "establish_connection")
		c.publishReconnection(ctx, false)
		return err
	}

	c.connected.Store(true)
	c.successfulConnections.Add(1)
	c.consecutiveFailures.Store(0)
	c.lastSuccessNS.Store(time.Now().UnixNano())
	c.retryCount.Store(0)
	if State(c.state.Load()) != StatePaused {
		c.state.Store(int32(StateRunning))
	}
	c.publishReconnection(ctx, true)
	return nil
}

func (c *WorkerCore) publishReconnection(ctx context.Context, succeeded bool) {
	if c.publisher == nil {
		return
	}
	c.publisher.PublishReconnection(ctx, c.device.ID, ReconnectionEvent{
		DeviceID:  c.device.ID,
		Succeeded: succeeded,
		Attempt:   int64(c.retryCount.Load()),
		WaitCycle: c.inWaitCycle.Load(),
	})
}

// reconnectionLoop implements spec §4.3's reconnection algorithm on a
// dedicated goroutine per worker (spec §5).
func (c *WorkerCore) reconnectionLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(reconnectionTick)
	defer ticker.Stop()

	c.reconnectionStep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reconnectionStep(ctx)
		}
	}
}

func (c *WorkerCore) reconnectionStep(ctx context.Context) {
	state := State(c.state.Load())
	if state == StateStopped || state == StatePaused {
		return
	}

	if !c.connected.Load() {
		c.handleDisconnected(ctx)
		return
	}

	c.checkKeepAlive(ctx)
}

func (c *WorkerCore) handleDisconnected(ctx context.Context) {
	policy := c.Policy()

	if !policy.AutoReconnectEnabled {
		// No path back to RUNNING without an operator override (spec
		// §4.3 diagram: "MAX_RETRIES_EXCEEDED (terminal unless
		// force-reconnect)").
		c.state.Store(int32(StateMaxRetriesExceeded))
		return
	}

	if c.inWaitCycle.Load() {
		if time.Now().UnixNano() < c.waitCycleUntilNS.Load() {
			return
		}
		c.inWaitCycle.Store(false)
		c.retryCount.Store(0)
		c.waitCycles.Add(1)
		c.reconnectionCycles.Add(1)
		// The new cycle's first connect attempt happens on the next tick.
		return
	}

	now := time.Now().UnixNano()
	if now < c.nextAttemptNS.Load() {
		return
	}

	c.state.Store(int32(StateReconnecting))

	c.connectMu.Lock()
	err := c.attemptConnectLocked(ctx)
	c.connectMu.Unlock()

	if err == nil {
		return
	}

	retries := c.retryCount.Add(1)
	policy = c.Policy()
	if policy.MaxRetriesPerCycle > 0 && int(retries) >= policy.MaxRetriesPerCycle {
		c.inWaitCycle.Store(true)
		c.waitCycleUntilNS.Store(time.Now().Add(time.Duration(policy.WaitTimeAfterMaxRetriesMS) * time.Millisecond).UnixNano())
		c.state.Store(int32(StateWaitingRetry))
		return
	}
	c.nextAttemptNS.Store(time.Now().Add(time.Duration(policy.RetryIntervalMS) * time.Millisecond).UnixNano())
}

func (c *WorkerCore) checkKeepAlive(ctx context.Context) {
	policy := c.Policy()
	if !policy.KeepAliveEnabled {
		return
	}
	now := time.Now()
	lastKA := time.Unix(0, c.lastSuccessNS.Load())
	if now.Sub(lastKA) < time.Duration(policy.KeepAliveIntervalSeconds)*time.Second {
		return
	}

	kaCtx, cancel := context.WithTimeout(ctx, time.Duration(policy.ConnectionTimeoutSeconds)*time.Second)
	defer cancel()

	if err := c.driver.SendProtocolKeepAlive(kaCtx); err != nil {
		c.onConnectionLost(err, "keep_alive")
		return
	}
	if !c.driver.CheckProtocolConnection() {
		c.onConnectionLost(fmt.Errorf("keep-alive check reported connection down"), "check_connection")
		return
	}
	c.lastSuccessNS.Store(now.UnixNano())
}

func (c *WorkerCore) onConnectionLost(err error, code string) {
	c.connected.Store(false)
	c.totalFailures.Add(1)
	c.consecutiveFailures.Add(1)
	c.setLastError(err, code)
	c.state.Store(int32(StateReconnecting))
	c.log.Warnf("connection lost: %v", err)
}
