// Package transport implements the three connection-level adapters
// (spec §4.2) that every protocol worker wraps: TCP, UDP, and serial.
// Each adapter owns exactly one physical connection and exposes
// connect/close/health-check/send/recv/keep-alive plus running
// counters; protocol framing (Modbus PDU, MQTT CONNECT, BACnet APDU)
// is out of scope here, per spec §1.
package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTimeout is returned by Recv when no data arrived within the
// caller's timeout (spec §4.2: "0 ⇒ timeout" is folded into this
// sentinel rather than a bare zero-length, silent return, so a caller
// can't mistake a timeout for a genuine empty read).
var ErrTimeout = errors.New("transport: read timeout")

// ErrClosed is returned by any operation attempted on a closed adapter.
var ErrClosed = errors.New("transport: adapter is closed")

// Adapter is the common contract spec §4.2 gives all three transports.
type Adapter interface {
	// EstablishConnection opens the adapter's endpoint within timeout.
	EstablishConnection(ctx context.Context, timeout time.Duration) error
	// CloseConnection idempotently releases the underlying handle.
	CloseConnection() error
	// CheckConnection is a non-destructive health probe.
	CheckConnection() bool
	// Send writes b, returning the number of bytes actually written.
	Send(ctx context.Context, b []byte) (int, error)
	// Recv reads into buf, blocking up to timeout. Returns ErrTimeout
	// (not 0, nil) if no data arrived in time.
	Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
	// SendKeepAlive emits a transport-level keep-alive probe.
	SendKeepAlive(ctx context.Context) error
	// Stats returns a snapshot of the running counters.
	Stats() Stats
}

// counters holds the atomic running counters spec §4.2 requires of
// every adapter ("packets_sent/received, bytes_sent/received,
// send_errors, recv_errors, timeouts").
type counters struct {
	packetsSent     atomic.Int64
	packetsReceived atomic.Int64
	bytesSent       atomic.Int64
	bytesReceived   atomic.Int64
	sendErrors      atomic.Int64
	recvErrors      atomic.Int64
	timeouts        atomic.Int64
}

// Stats is a point-in-time snapshot of an adapter's running counters.
type Stats struct {
	PacketsSent     int64
	PacketsReceived int64
	BytesSent       int64
	BytesReceived   int64
	SendErrors      int64
	RecvErrors      int64
	Timeouts        int64
}

// Stats satisfies Adapter.Stats for every adapter that embeds counters.
func (c *counters) Stats() Stats {
	return Stats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		SendErrors:      c.sendErrors.Load(),
		RecvErrors:      c.recvErrors.Load(),
		Timeouts:        c.timeouts.Load(),
	}
}

func (c *counters) recordSend(n int, err error) {
	if err != nil {
		c.sendErrors.Add(1)
		return
	}
	c.packetsSent.Add(1)
	c.bytesSent.Add(int64(n))
}

func (c *counters) recordRecv(n int, err error) {
	switch {
	case errors.Is(err, ErrTimeout):
		c.timeouts.Add(1)
	case err != nil:
		c.recvErrors.Add(1)
	default:
		c.packetsReceived.Add(1)
		c.bytesReceived.Add(int64(n))
	}
}
