// Package bacnet implements the BACnet/IP protocol worker (spec §4.4).
// Like the modbus package, the APDU framing here is a small, purpose-
// built ReadProperty/WriteProperty exchange rather than a full BACnet
// stack: spec §1 treats the wire codec as an external black box, and no
// library in the retrieval pack covers BACnet APDU encoding.
package bacnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/perrors"
	"github.com/pulseone/pulseone/internal/transport"
	"github.com/pulseone/pulseone/internal/worker"
)

const (
	defaultUDPPort = 47808

	propertyPresentValue = 85

	objectTypeAnalogInput  = 0
	objectTypeAnalogOutput = 1
	objectTypeBinaryInput  = 3
	objectTypeBinaryOutput = 4

	serviceReadProperty  = 0x0C
	serviceWriteProperty = 0x0F

	tagReal    = 4
	tagBoolean = 1
)

// Driver implements worker.ProtocolDriver over a transport.Adapter
// (UDP, spec §6's "BACnet: host:port (default 47808)").
type Driver struct {
	adapter   transport.Adapter
	invokeSeq atomic.Uint32
	mu        sync.Mutex
}

// NewDriver builds a BACnet/IP driver.
func NewDriver(adapter transport.Adapter) *Driver {
	return &Driver{adapter: adapter}
}

func (d *Driver) EstablishProtocolConnection(ctx context.Context) error {
	return d.adapter.EstablishConnection(ctx, 10*time.Second)
}

func (d *Driver) CloseProtocolConnection() error {
	return d.adapter.CloseConnection()
}

func (d *Driver) CheckProtocolConnection() bool {
	return d.adapter.CheckConnection()
}

func (d *Driver) SendProtocolKeepAlive(ctx context.Context) error {
	return d.adapter.SendKeepAlive(ctx)
}

// objectType maps a data point's data_type to a BACnet object type,
// defaulting to analog-input (spec leaves the mapping unspecified;
// analog points are the common case for field telemetry).
func objectType(dataType string) uint8 {
	switch dataType {
	case "analog_output", "ao":
		return objectTypeAnalogOutput
	case "binary_input", "bi":
		return objectTypeBinaryInput
	case "binary_output", "bo":
		return objectTypeBinaryOutput
	default:
		return objectTypeAnalogInput
	}
}

// Poll issues one ReadProperty request per enabled point (BACnet has no
// native multi-object read this driver implements; ReadPropertyMultiple
// would batch these, but PulseOne's black-box framing doesn't require
// it). Per-point failures degrade that point's quality rather than
// failing the whole batch, since each is an independent request.
func (d *Driver) Poll(ctx context.Context, points []*model.DataPoint) ([]worker.TimestampedValue, error) {
	out := make([]worker.TimestampedValue, 0, len(points))
	for _, p := range points {
		if !p.Enabled {
			continue
		}
		now := time.Now()
		raw, err := d.readProperty(ctx, objectType(p.DataType), uint32(p.Address))
		if err != nil {
			out = append(out, worker.TimestampedValue{PointID: p.ID, Quality: model.QualityBad, Timestamp: now})
			continue
		}
		out = append(out, worker.TimestampedValue{
			PointID:   p.ID,
			Value:     model.NewNumeric(p.Engineering(raw)),
			RawValue:  model.NewNumeric(raw),
			Quality:   model.QualityGood,
			Timestamp: now,
		})
	}
	return out, nil
}

func (d *Driver) WritePoint(ctx context.Context, point *model.DataPoint, value model.Value) error {
	raw, ok := value.AsFloat64()
	if !ok {
		return &perrors.ProtocolError{Detail: "bacnet write requires a numeric value"}
	}
	return d.writeProperty(ctx, objectType(point.DataType), uint32(point.Address), float32(raw))
}

func (d *Driver) nextInvokeID() byte {
	return byte(d.invokeSeq.Add(1))
}

// readProperty builds a minimal confirmed ReadProperty APDU: invoke id,
// service choice, object type+instance, property identifier. The
// response is expected to carry a tagged application value (REAL or
// boolean) for present-value.
func (d *Driver) readProperty(ctx context.Context, objType uint8, instance uint32) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	invokeID := d.nextInvokeID()
	req := make([]byte, 0, 16)
	req = append(req, 0x00, invokeID, serviceReadProperty)
	req = append(req, objType)
	instBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(instBuf, instance)
	req = append(req, instBuf...)
	req = append(req, propertyPresentValue)

	if _, err := d.adapter.Send(ctx, req); err != nil {
		return 0, err
	}

	resp := make([]byte, 64)
	n, err := d.adapter.Recv(ctx, resp, 5*time.Second)
	if err != nil {
		return 0, err
	}
	if n < 9 {
		return 0, &perrors.ProtocolError{Detail: "bacnet response shorter than minimal APDU"}
	}
	if resp[1] != invokeID {
		return 0, &perrors.ProtocolError{Detail: "bacnet response invoke id mismatch"}
	}

	tag := resp[7]
	switch tag {
	case tagReal:
		bits := binary.BigEndian.Uint32(resp[8:12])
		return float64(math.Float32frombits(bits)), nil
	case tagBoolean:
		if resp[8] != 0 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &perrors.ProtocolError{Detail: fmt.Sprintf("unsupported bacnet application tag %d", tag)}
	}
}

func (d *Driver) writeProperty(ctx context.Context, objType uint8, instance uint32, value float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	invokeID := d.nextInvokeID()
	req := make([]byte, 0, 16)
	req = append(req, 0x00, invokeID, serviceWriteProperty)
	req = append(req, objType)
	instBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(instBuf, instance)
	req = append(req, instBuf...)
	req = append(req, propertyPresentValue, tagReal)
	valBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(valBuf, math.Float32bits(value))
	req = append(req, valBuf...)

	if _, err := d.adapter.Send(ctx, req); err != nil {
		return err
	}

	resp := make([]byte, 16)
	n, err := d.adapter.Recv(ctx, resp, 5*time.Second)
	if err != nil {
		return err
	}
	if n < 2 || resp[1] != invokeID {
		return &perrors.ProtocolError{Detail: "bacnet write response invoke id mismatch"}
	}
	return nil
}

// DefaultEndpoint returns the conventional BACnet/IP port appended to
// host when endpoint lacks one (spec §6: "BACnet: host:port (default
// 47808)").
func DefaultEndpoint(host string) string {
	return fmt.Sprintf("%s:%d", host, defaultUDPPort)
}

var _ worker.ProtocolDriver = (*Driver)(nil)
