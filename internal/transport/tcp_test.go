package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestTCPAdapterSendRecvRoundTrip(t *testing.T) {
	addr := startEchoServer(t)
	a := NewTCPAdapter(addr)

	ctx := context.Background()
	require.NoError(t, a.EstablishConnection(ctx, time.Second))
	defer a.CloseConnection()

	assert.True(t, a.CheckConnection())

	n, err := a.Send(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = a.Recv(ctx, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	stats := a.Stats()
	assert.Equal(t, int64(1), stats.PacketsSent)
	assert.Equal(t, int64(1), stats.PacketsReceived)
}

func TestTCPAdapterRecvTimeout(t *testing.T) {
	addr := startEchoServer(t)
	a := NewTCPAdapter(addr)

	ctx := context.Background()
	require.NoError(t, a.EstablishConnection(ctx, time.Second))
	defer a.CloseConnection()

	buf := make([]byte, 16)
	_, err := a.Recv(ctx, buf, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int64(1), a.Stats().Timeouts)
}

func TestTCPAdapterEstablishConnectionFailsOnBadAddr(t *testing.T) {
	a := NewTCPAdapter("127.0.0.1:1")
	err := a.EstablishConnection(context.Background(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestTCPAdapterOperationsFailWhenClosed(t *testing.T) {
	a := NewTCPAdapter("127.0.0.1:9")
	assert.False(t, a.CheckConnection())

	_, err := a.Send(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = a.Recv(context.Background(), make([]byte, 4), time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)

	assert.NoError(t, a.CloseConnection())
}
