//go:build windows

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pulseone/pulseone/internal/perrors"
)

// TCPAdapter on Windows omits the SO_REUSEADDR control hook the unix
// build applies pre-connect (golang.org/x/sys/unix's socket option
// constants are unix-only); everything else matches tcp.go.
type TCPAdapter struct {
	addr string

	mu   sync.Mutex
	conn *net.TCPConn
	counters
}

func NewTCPAdapter(addr string) *TCPAdapter {
	return &TCPAdapter{addr: addr}
}

func (a *TCPAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := (&net.Dialer{Timeout: timeout}).DialContext(dctx, "tcp", a.addr)
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

func (a *TCPAdapter) CheckConnection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

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

func (a *TCPAdapter) SendKeepAlive(ctx context.Context) error {
	_, err := a.Send(ctx, []byte{})
	return err
}

var _ Adapter = (*TCPAdapter)(nil)
