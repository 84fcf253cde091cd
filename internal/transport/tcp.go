//go:build !windows

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pulseone/pulseone/internal/perrors"
)

// TCPAdapter implements Adapter over a TCP socket (spec §4.2 "TCP"):
// non-blocking connect with an explicit timeout, SO_REUSEADDR set
// before connect, reverting to a plain blocking *net.TCPConn
// afterward. A down socket is detected the same way the spec
// prescribes: a Recv returning 0 bytes with io.EOF, or a write/read
// syscall error.
type TCPAdapter struct {
	addr string

	mu   sync.Mutex
	conn *net.TCPConn
	counters
}

// NewTCPAdapter builds a TCPAdapter for addr ("host:port", the
// transport-specific coordinates spec §3 says endpoint_string encodes
// for TCP devices).
func NewTCPAdapter(addr string) *TCPAdapter {
	return &TCPAdapter{addr: addr}
}

// EstablishConnection opens the TCP connection within timeout. The
// SO_REUSEADDR control hook runs on the raw socket before connect
// completes, matching the spec's requirement that it be set ahead of
// the handshake rather than patched in afterward.
func (a *TCPAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dialer := net.Dialer{
		Timeout: timeout,
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dctx, "tcp", a.addr)
	if err != nil {
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return &perrors.TransportError{Op: "establish_connection", Err: errors.New("dialed connection is not TCP")}
	}
	a.conn = tcpConn
	return nil
}

// CloseConnection idempotently releases the socket.
func (a *TCPAdapter) CloseConnection() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	if err != nil {
		return &perrors.TransportError{Op: "close_connection", Err: err}
	}
	return nil
}

// CheckConnection is a non-destructive health probe: it only reports
// whether a handle is currently held, since a true liveness probe
// would require a read/write that could disturb in-flight protocol
// framing the worker above this layer owns.
func (a *TCPAdapter) CheckConnection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Send writes b to the socket.
func (a *TCPAdapter) Send(ctx context.Context, b []byte) (int, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}

	if dl, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(dl)
	} else {
		conn.SetWriteDeadline(time.Time{})
	}
	n, err := conn.Write(b)
	a.counters.recordSend(n, err)
	if err != nil {
		return n, &perrors.TransportError{Op: "send", Err: err}
	}
	return n, nil
}

// Recv reads into buf, blocking up to timeout. A read returning
// (0, io.EOF) indicates the peer closed the connection (spec §4.2: "A
// down socket MUST be detected by a read returning 0 or an error").
func (a *TCPAdapter) Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetReadDeadline(deadline)

	n, err := conn.Read(buf)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		a.counters.recordRecv(n, ErrTimeout)
		return n, ErrTimeout
	}
	if errors.Is(err, io.EOF) {
		a.counters.recordRecv(0, &perrors.TransportError{Op: "recv", Err: io.EOF})
		return 0, &perrors.TransportError{Op: "recv", Err: io.EOF}
	}
	a.counters.recordRecv(n, err)
	if err != nil {
		return n, &perrors.TransportError{Op: "recv", Err: err}
	}
	return n, nil
}

// SendKeepAlive writes a zero-length probe; TCP itself has no wire
// keep-alive frame at this layer, so the probe is a write that would
// surface a broken pipe/connection reset immediately.
func (a *TCPAdapter) SendKeepAlive(ctx context.Context) error {
	_, err := a.Send(ctx, []byte{})
	return err
}

var _ Adapter = (*TCPAdapter)(nil)
