package factory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/transport"
	"github.com/pulseone/pulseone/internal/worker"
	"github.com/pulseone/pulseone/internal/worker/bacnet"
	"github.com/pulseone/pulseone/internal/worker/modbus"
	mqttdriver "github.com/pulseone/pulseone/internal/worker/mqtt"
)

// targetedUDPAdapter binds a local ephemeral UDP socket and fixes the
// remote peer every Send goes to, since transport.UDPAdapter's bare
// Send requires an explicit target per call (spec §4.2 treats UDP as
// connectionless) while worker.ProtocolDriver implementations (bacnet)
// only call the common Adapter.Send(ctx, b) signature.
type targetedUDPAdapter struct {
	*transport.UDPAdapter
	target string
}

func (a *targetedUDPAdapter) Send(ctx context.Context, b []byte) (int, error) {
	return a.SendTo(ctx, b, a.target)
}

var _ transport.Adapter = (*targetedUDPAdapter)(nil)

// RegisterDefaults wires PulseOne's three built-in protocol drivers
// (Modbus TCP, MQTT, BACnet/IP) into f, each built from the device's
// endpoint_string and typed_properties (spec §4.4/§4.5).
func (f *Factory) RegisterDefaults() {
	f.RegisterProtocol("modbus_tcp", newModbusDriver)
	f.RegisterProtocol("modbus", newModbusDriver)
	f.RegisterProtocol("mqtt", newMQTTDriver)
	f.RegisterProtocol("bacnet", newBACnetDriver)
	f.RegisterProtocol("bacnet_ip", newBACnetDriver)
}

func newModbusDriver(device model.Device, info worker.DeviceInfo) (worker.ProtocolDriver, error) {
	slaveID := 1
	if raw, ok := device.TypedProps["slave_id"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			slaveID = n
		}
	}
	endpoint := info.EndpointString
	if endpoint == "" {
		return nil, fmt.Errorf("modbus device %q has no endpoint_string", device.ID)
	}
	adapter := transport.NewTCPAdapter(endpoint)
	return modbus.NewDriver(adapter, slaveID), nil
}

func newMQTTDriver(device model.Device, info worker.DeviceInfo) (worker.ProtocolDriver, error) {
	qos := byte(1)
	if raw, ok := device.TypedProps["qos"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n <= 2 {
			qos = byte(n)
		}
	}
	clientID := device.TypedProps["client_id"]
	if clientID == "" {
		clientID = fmt.Sprintf("pulseone-%s", device.ID)
	}
	if info.EndpointString == "" {
		return nil, fmt.Errorf("mqtt device %q has no endpoint_string (broker URL)", device.ID)
	}
	return mqttdriver.NewDriverWithQoS(info.EndpointString, clientID, qos), nil
}

func newBACnetDriver(device model.Device, info worker.DeviceInfo) (worker.ProtocolDriver, error) {
	if info.EndpointString == "" {
		return nil, fmt.Errorf("bacnet device %q has no endpoint_string", device.ID)
	}
	udp := transport.NewUDPAdapter(fmt.Sprintf(":%d", ephemeralBACnetPort))
	adapter := &targetedUDPAdapter{UDPAdapter: udp, target: info.EndpointString}
	return bacnet.NewDriver(adapter), nil
}

// ephemeralBACnetPort is 0, letting the OS assign a free local port for
// the outbound socket (the field device owns 47808; PulseOne dials out).
const ephemeralBACnetPort = 0
