//go:build !linux

package transport

import (
	"context"
	"errors"
	"time"
)

// SerialAdapter is a stub on platforms other than Linux: termios raw-mode
// control is implemented against golang.org/x/sys/unix's Linux ioctl
// constants (TCGETS/TCSETS), which have no portable equivalent across
// every unix the toolchain targets. Parsing/validation still works
// everywhere so config loading and tests don't need a build-tag split.
type SerialAdapter struct {
	cfg SerialConfig
	counters
}

func NewSerialAdapter(cfg SerialConfig) *SerialAdapter {
	return &SerialAdapter{cfg: cfg}
}

var errSerialUnsupported = errors.New("transport: serial adapter is not supported on this platform")

func (a *SerialAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	return errSerialUnsupported
}

func (a *SerialAdapter) CloseConnection() error { return nil }

func (a *SerialAdapter) CheckConnection() bool { return false }

func (a *SerialAdapter) Send(ctx context.Context, b []byte) (int, error) {
	return 0, errSerialUnsupported
}

func (a *SerialAdapter) Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	return 0, errSerialUnsupported
}

func (a *SerialAdapter) SendKeepAlive(ctx context.Context) error { return errSerialUnsupported }

var _ Adapter = (*SerialAdapter)(nil)
