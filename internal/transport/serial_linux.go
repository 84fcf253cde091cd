//go:build linux

package transport

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pulseone/pulseone/internal/perrors"
)

var linuxBaudConstants = map[int]uint32{
	1200: unix.B1200, 2400: unix.B2400, 4800: unix.B4800, 9600: unix.B9600,
	19200: unix.B19200, 38400: unix.B38400, 57600: unix.B57600,
	115200: unix.B115200, 230400: unix.B230400, 460800: unix.B460800,
	921600: unix.B921600,
}

// SerialAdapter implements Adapter over a serial port (spec §4.2
// "Serial"): raw mode, VMIN=0, original termios captured on open and
// restored on close.
type SerialAdapter struct {
	cfg SerialConfig

	mu       sync.Mutex
	file     *os.File
	original *unix.Termios
	counters
}

// NewSerialAdapter builds a SerialAdapter from a parsed SerialConfig.
func NewSerialAdapter(cfg SerialConfig) *SerialAdapter {
	return &SerialAdapter{cfg: cfg}
}

// EstablishConnection opens the device file and puts it into raw mode.
func (a *SerialAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.cfg.Device, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}

	fd := int(f.Fd())
	orig, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}
	saved := *orig

	raw := *orig
	applyRawMode(&raw, a.cfg)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		f.Close()
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}

	a.file = f
	a.original = &saved
	return nil
}

// applyRawMode configures termios for 8N1-style raw I/O per cfg:
// VMIN=0/VTIME=0 so reads never block past the caller's own
// readiness-selection poll, no echo, no signal generation, the
// requested baud/bits/parity/stop applied.
func applyRawMode(t *unix.Termios, cfg SerialConfig) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB
	t.Cflag |= unix.CREAD | unix.CLOCAL

	switch cfg.DataBits {
	case 7:
		t.Cflag |= unix.CS7
	default:
		t.Cflag |= unix.CS8
	}
	switch cfg.Parity {
	case 'E':
		t.Cflag |= unix.PARENB
	case 'O':
		t.Cflag |= unix.PARENB | unix.PARODD
	}
	if cfg.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	speed := linuxBaudConstants[cfg.Baud]
	t.Ispeed = speed
	t.Ospeed = speed

	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
}

// CloseConnection restores the original termios and closes the file.
func (a *SerialAdapter) CloseConnection() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	if a.original != nil {
		_ = unix.IoctlSetTermios(int(a.file.Fd()), unix.TCSETS, a.original)
	}
	err := a.file.Close()
	a.file = nil
	a.original = nil
	if err != nil {
		return &perrors.TransportError{Op: "close_connection", Err: err}
	}
	return nil
}

// CheckConnection reports whether the device file is currently open.
func (a *SerialAdapter) CheckConnection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file != nil
}

// Send writes b to the serial port.
func (a *SerialAdapter) Send(ctx context.Context, b []byte) (int, error) {
	a.mu.Lock()
	f := a.file
	a.mu.Unlock()
	if f == nil {
		return 0, ErrClosed
	}
	n, err := f.Write(b)
	a.counters.recordSend(n, err)
	if err != nil {
		return n, &perrors.TransportError{Op: "send", Err: err}
	}
	return n, nil
}

// Recv reads into buf, using a readiness-selection poll against
// read_timeout_ms (spec §4.2: "Reads use readiness selection for
// read_timeout_ms; VMIN=0, raw mode").
func (a *SerialAdapter) Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	a.mu.Lock()
	f := a.file
	a.mu.Unlock()
	if f == nil {
		return 0, ErrClosed
	}

	fd := int(f.Fd())
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			a.counters.timeouts.Add(1)
			return 0, ErrTimeout
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(remaining.Milliseconds()))
		if err != nil {
			a.counters.recvErrors.Add(1)
			return 0, &perrors.TransportError{Op: "recv", Err: err}
		}
		if n == 0 {
			a.counters.timeouts.Add(1)
			return 0, ErrTimeout
		}
		read, err := f.Read(buf)
		a.counters.recordRecv(read, err)
		if err != nil {
			return read, &perrors.TransportError{Op: "recv", Err: err}
		}
		return read, nil
	}
}

// SendKeepAlive is a no-op: serial has no transport-level keep-alive
// frame, only whatever the protocol worker's own polling provides.
func (a *SerialAdapter) SendKeepAlive(ctx context.Context) error { return nil }

var _ Adapter = (*SerialAdapter)(nil)
