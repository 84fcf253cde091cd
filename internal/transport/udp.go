package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/perrors"
)

// udpQueueCapacity bounds the owner-drained receive queue (spec §4.2:
// "a queue capped at 1000 entries (overflow drops with warning)").
const udpQueueCapacity = 1000

// udpReceiveWake is how often the receive loop's readiness selection
// wakes to check for a stop request (spec §5: "100 ms for UDP").
const udpReceiveWake = 100 * time.Millisecond

// packet is one datagram handed from the receive loop to the owner.
type packet struct {
	data []byte
	from net.Addr
}

// UDPAdapter implements Adapter over a UDP socket (spec §4.2 "UDP"):
// bound to a local interface/port, with a dedicated receive loop
// pushing datagrams into a bounded queue the owner (worker) drains.
// Broadcast needs no opt-in, since Go sets SO_BROADCAST on every UDP
// socket; JoinMulticast checks a group address but does not join it.
type UDPAdapter struct {
	localAddr string
	log       *logging.Logger

	mu       sync.Mutex
	conn     *net.UDPConn
	queue    chan packet
	stopRecv chan struct{}
	recvDone chan struct{}
	counters
}

// NewUDPAdapter builds a UDPAdapter bound to localAddr ("host:port" or
// ":port" for all interfaces).
func NewUDPAdapter(localAddr string) *UDPAdapter {
	return &UDPAdapter{
		localAddr: localAddr,
		log:       logging.Default().With("transport").With("udp"),
	}
}

// EstablishConnection binds the local socket and starts the receive
// loop. timeout bounds only the bind call; UDP has no handshake.
func (a *UDPAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", a.localAddr)
	if err != nil {
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return &perrors.TransportError{Op: "establish_connection", Err: err}
	}
	a.conn = conn
	a.queue = make(chan packet, udpQueueCapacity)
	a.stopRecv = make(chan struct{})
	a.recvDone = make(chan struct{})
	go a.receiveLoop(conn, a.queue, a.stopRecv, a.recvDone)
	return nil
}

// receiveLoop reads datagrams until stop is closed, using a read
// deadline as the readiness-selection wake interval (spec §5:
// "readiness selection with a small wake interval").
func (a *UDPAdapter) receiveLoop(conn *net.UDPConn, queue chan packet, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 65535)
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(udpReceiveWake))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			a.counters.recvErrors.Add(1)
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case queue <- packet{data: cp, from: from}:
			a.counters.packetsReceived.Add(1)
			a.counters.bytesReceived.Add(int64(n))
		default:
			a.log.Warnf("receive queue full (cap=%d), dropping datagram from %s", udpQueueCapacity, from)
		}
	}
}

// CloseConnection stops the receive loop and closes the socket.
func (a *UDPAdapter) CloseConnection() error {
	a.mu.Lock()
	conn := a.conn
	stop := a.stopRecv
	done := a.recvDone
	a.conn = nil
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(stop)
	err := conn.Close()
	<-done
	if err != nil {
		return &perrors.TransportError{Op: "close_connection", Err: err}
	}
	return nil
}

// CheckConnection reports whether the socket is currently bound.
func (a *UDPAdapter) CheckConnection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// Send always returns an error: the adapter has no default peer, so
// every datagram has to go through SendTo with an explicit target.
func (a *UDPAdapter) Send(ctx context.Context, b []byte) (int, error) {
	return a.SendTo(ctx, b, "")
}

// SendTo writes b to target. An empty target is an error, since the
// adapter has no default peer.
func (a *UDPAdapter) SendTo(_ context.Context, b []byte, target string) (int, error) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}

	var n int
	var err error
	if target == "" {
		err = errors.New("udp: no default peer, use SendTo with an explicit target")
	} else {
		addr, rerr := net.ResolveUDPAddr("udp", target)
		if rerr != nil {
			err = rerr
		} else {
			n, err = conn.WriteToUDP(b, addr)
		}
	}
	a.counters.recordSend(n, err)
	if err != nil {
		return n, &perrors.TransportError{Op: "send", Err: err}
	}
	return n, nil
}

// Recv drains the owner-side receive queue, blocking up to timeout.
func (a *UDPAdapter) Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	a.mu.Lock()
	queue := a.queue
	a.mu.Unlock()
	if queue == nil {
		return 0, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case p := <-queue:
		n := copy(buf, p.data)
		return n, nil
	case <-timer.C:
		a.counters.timeouts.Add(1)
		return 0, ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// SendKeepAlive is a no-op for UDP: the protocol is connectionless, so
// there is nothing at this layer to probe beyond what the protocol
// worker's own keep-alive framing already sends as a normal datagram.
func (a *UDPAdapter) SendKeepAlive(ctx context.Context) error { return nil }

// EnableBroadcast checks that the socket is bound and changes nothing
// else: broadcast already works on every UDP socket Go opens.
func (a *UDPAdapter) EnableBroadcast() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return ErrClosed
	}
	// UDP broadcast on a *net.UDPConn requires only that the peer
	// address be the broadcast address (255.255.255.255); Go's net
	// package sets SO_BROADCAST implicitly in ListenUDP, so there is
	// no further socket option to flip here beyond documenting intent.
	return nil
}

// JoinMulticast checks that the socket is bound and that group resolves
// as a UDP address. It does not join the multicast group: no membership
// request is sent, so the socket receives no group traffic through it.
func (a *UDPAdapter) JoinMulticast(group string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	if _, err := net.ResolveUDPAddr("udp", group); err != nil {
		return &perrors.TransportError{Op: "join_multicast", Err: err}
	}
	return nil
}

var _ Adapter = (*UDPAdapter)(nil)
