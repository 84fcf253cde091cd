package modbus

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/transport"
)

// fakeAdapter is a transport.Adapter test double that answers Modbus
// TCP requests out of a scripted response queue instead of a real
// socket.
type fakeAdapter struct {
	lastRequest []byte
	responses   [][]byte
	connected   bool
}

func (f *fakeAdapter) EstablishConnection(ctx context.Context, timeout time.Duration) error {
	f.connected = true
	return nil
}
func (f *fakeAdapter) CloseConnection() error { f.connected = false; return nil }
func (f *fakeAdapter) CheckConnection() bool  { return f.connected }
func (f *fakeAdapter) Send(ctx context.Context, b []byte) (int, error) {
	f.lastRequest = append([]byte(nil), b...)
	return len(b), nil
}
func (f *fakeAdapter) Recv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if len(f.responses) == 0 {
		return 0, transport.ErrTimeout
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	n := copy(buf, resp)
	return n, nil
}
func (f *fakeAdapter) SendKeepAlive(ctx context.Context) error { return nil }
func (f *fakeAdapter) Stats() transport.Stats                  { return transport.Stats{} }

var _ transport.Adapter = (*fakeAdapter)(nil)

// readHoldingRegistersResponse builds a well-formed MBAP response for
// function code 3 carrying the given register values, echoing the
// transaction id the driver just sent.
func readHoldingRegistersResponse(txID uint16, unitID byte, regs []uint16) []byte {
	byteCount := len(regs) * 2
	resp := make([]byte, 9+byteCount)
	binary.BigEndian.PutUint16(resp[0:2], txID)
	binary.BigEndian.PutUint16(resp[2:4], 0)
	binary.BigEndian.PutUint16(resp[4:6], uint16(3+byteCount))
	resp[6] = unitID
	resp[7] = funcReadHoldingRegisters
	resp[8] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(resp[9+i*2:11+i*2], r)
	}
	return resp
}

func txIDFromRequest(req []byte) uint16 {
	return binary.BigEndian.Uint16(req[0:2])
}

func TestPollHappyPathMatchesSeedScenario(t *testing.T) {
	adapter := &fakeAdapter{}
	driver := NewDriver(adapter, 1)

	a := &model.DataPoint{ID: "A", Address: 0, DataType: "uint16", ScalingFactor: 1.0, ScalingOffset: 0, Enabled: true}
	b := &model.DataPoint{ID: "B", Address: 1, DataType: "uint16", ScalingFactor: 0.1, ScalingOffset: -10, Enabled: true}

	// Pre-script the response: nextTransactionID is deterministic
	// (monotonic from 0), so the first call always uses transaction id
	// 1 and the response can carry that id up front.
	adapter.responses = [][]byte{readHoldingRegistersResponse(1, 1, []uint16{100, 500})}

	values, err := driver.Poll(context.Background(), []*model.DataPoint{a, b})
	require.NoError(t, err)
	require.Len(t, values, 2)

	byID := map[string]float64{}
	for _, v := range values {
		f, ok := v.Value.AsFloat64()
		require.True(t, ok)
		byID[v.PointID] = f
		assert.Equal(t, model.QualityGood, v.Quality)
	}
	assert.Equal(t, 100.0, byID["A"])
	assert.Equal(t, 40.0, byID["B"])

	assert.Equal(t, byte(1), adapter.lastRequest[6])
	assert.Equal(t, byte(funcReadHoldingRegisters), adapter.lastRequest[7])
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(adapter.lastRequest[8:10]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(adapter.lastRequest[10:12]))
}

func TestPollSkipsDisabledPoints(t *testing.T) {
	adapter := &fakeAdapter{}
	driver := NewDriver(adapter, 1)

	disabled := &model.DataPoint{ID: "X", Address: 5, Enabled: false}

	values, err := driver.Poll(context.Background(), []*model.DataPoint{disabled})
	require.NoError(t, err)
	assert.Nil(t, values)
	assert.Nil(t, adapter.lastRequest)
}

func TestPollReturnsProtocolErrorOnUnexpectedFunctionCode(t *testing.T) {
	adapter := &fakeAdapter{}
	driver := NewDriver(adapter, 1)
	a := &model.DataPoint{ID: "A", Address: 0, Enabled: true}

	exception := []byte{0, 1, 0, 0, 0, 3, 1, 0x83, 0x02}
	adapter.responses = [][]byte{exception}

	_, err := driver.Poll(context.Background(), []*model.DataPoint{a})
	assert.Error(t, err)
}

func TestWritePointEncodesSingleRegister(t *testing.T) {
	adapter := &fakeAdapter{}
	driver := NewDriver(adapter, 1)
	p := &model.DataPoint{ID: "A", Address: 7, AccessMode: model.AccessReadWrite}

	ackResp := make([]byte, 12)
	binary.BigEndian.PutUint16(ackResp[0:2], 1)
	ackResp[6] = 1
	ackResp[7] = funcWriteSingleRegister
	adapter.responses = [][]byte{ackResp}

	err := driver.WritePoint(context.Background(), p, model.NewNumeric(42))
	require.NoError(t, err)
	assert.Equal(t, uint16(7), binary.BigEndian.Uint16(adapter.lastRequest[8:10]))
	assert.Equal(t, uint16(42), binary.BigEndian.Uint16(adapter.lastRequest[10:12]))
}

func TestNewDriverDefaultsSlaveID(t *testing.T) {
	driver := NewDriver(&fakeAdapter{}, 0)
	assert.Equal(t, byte(1), driver.slaveID)
}

func TestDefaultEndpointAppendsConventionalPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:502", DefaultEndpoint("10.0.0.5"))
}
