package worker

import (
	"context"

	"github.com/pulseone/pulseone/internal/model"
)

// DeviceInfo is the assembled, read-only device context the factory
// (spec §4.5) hands to a protocol worker constructor.
type DeviceInfo struct {
	ID             string
	Name           string
	ProtocolTag    string
	EndpointString string
	TenantID       string
	SiteID         string
	Priority       int
	Timing         model.Timing

	TriggerAlarms        bool
	TriggerVirtualPoints bool
	HighPriority         bool
}

// ProtocolDriver is what each protocol worker (spec §4.4) supplies to a
// WorkerCore: the connect/poll/decode/write primitives specific to one
// wire protocol. WorkerCore owns the state machine, reconnection loop,
// deadband/status logic, and emission; ProtocolDriver owns the bytes.
type ProtocolDriver interface {
	// EstablishProtocolConnection opens the underlying transport and
	// performs any protocol handshake (e.g. MQTT CONNECT).
	EstablishProtocolConnection(ctx context.Context) error
	// CloseProtocolConnection releases the transport.
	CloseProtocolConnection() error
	// CheckProtocolConnection is a non-destructive health probe.
	CheckProtocolConnection() bool
	// SendProtocolKeepAlive emits a protocol-level keep-alive.
	SendProtocolKeepAlive(ctx context.Context) error
	// Poll reads every enabled, currently-configured data point once
	// and returns one TimestampedValue per point attempted (callers use
	// len(points) vs len(result) plus each value's Quality to derive
	// per-point success/failure; a non-nil error means the whole poll
	// attempt failed at the transport/protocol level, e.g. a timeout
	// before any point could be read).
	Poll(ctx context.Context, points []*model.DataPoint) ([]TimestampedValue, error)
	// WritePoint issues a single write command to one point. Callers
	// (WorkerCore.Write) have already checked AccessMode/state; the
	// driver only needs to perform the protocol-specific encode+send.
	WritePoint(ctx context.Context, point *model.DataPoint, value model.Value) error
}

// Sink is the downstream pipeline contract (spec §6): Push returns
// false when the message was rejected (e.g. a full queue), which the
// worker counts as a failure but never blocks on.
type Sink interface {
	Push(ctx context.Context, msg *DeviceDataMessage) bool
}

// StatusPublisher is the optional telemetry hook (spec §6): worker
// status and reconnection events are opt-in side-channel publications
// that must never affect core correctness if absent.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, deviceID string, status StatusSnapshot)
	PublishReconnection(ctx context.Context, deviceID string, event ReconnectionEvent)
}

// StatusSnapshot is the worker status JSON payload (spec §6).
type StatusSnapshot struct {
	DeviceID        string
	DeviceName      string
	WorkerID        string
	ProtocolType    string
	Endpoint        string
	State           string
	Connected       bool
	DataPointsCount int
	WriteSupported  bool
}

// ReconnectionEvent is published to device_reconnection:<id> (spec §6)
// after every connect attempt, successful or not.
type ReconnectionEvent struct {
	DeviceID  string
	Succeeded bool
	Attempt   int64
	WaitCycle bool
}
