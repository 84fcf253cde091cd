// Package mqtt implements the MQTT protocol worker (spec §4.4). Unlike
// Modbus/BACnet, MQTT is push-based: EstablishProtocolConnection opens
// one broker connection and subscribes to every configured point's
// topic, and Poll merely returns the latest message received on each
// point's topic rather than issuing a request per cycle.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/perrors"
	"github.com/pulseone/pulseone/internal/worker"
)

const defaultQoS = 1

// Driver implements worker.ProtocolDriver over a paho MQTT client.
// Address_string (spec §3) carries the subscribed topic per point;
// writes publish to the same topic.
type Driver struct {
	brokerURL string
	clientID  string
	qos       byte

	mu     sync.Mutex
	client mqtt.Client

	pointsMu sync.RWMutex
	points   []*model.DataPoint

	latestMu sync.Mutex
	latest   map[string]worker.TimestampedValue // keyed by topic
}

// NewDriver builds an MQTT driver for brokerURL ("mqtt://host:port" or
// "mqtts://…", spec §6) with QoS 1 (spec §4.5: "MQTT qos=1");
// NewDriverWithQoS takes any other level, including 0.
func NewDriver(brokerURL, clientID string) *Driver {
	return NewDriverWithQoS(brokerURL, clientID, defaultQoS)
}

// NewDriverWithQoS builds an MQTT driver with an explicit QoS level.
func NewDriverWithQoS(brokerURL, clientID string, qos byte) *Driver {
	return &Driver{
		brokerURL: brokerURL,
		clientID:  clientID,
		qos:       qos,
		latest:    make(map[string]worker.TimestampedValue),
	}
}

func (d *Driver) EstablishProtocolConnection(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(d.brokerURL).
		SetClientID(d.clientID).
		SetAutoReconnect(false). // WorkerCore's reconnection loop owns retries
		SetConnectTimeout(10 * time.Second).
		SetDefaultPublishHandler(d.onMessage)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return &perrors.TimeoutError{Op: "mqtt_connect", Timeout: "10s"}
	}
	if err := token.Error(); err != nil {
		return &perrors.TransportError{Op: "mqtt_connect", Err: err}
	}
	d.client = client

	d.pointsMu.RLock()
	points := d.points
	d.pointsMu.RUnlock()
	if len(points) > 0 {
		if err := d.subscribeLocked(points); err != nil {
			return err
		}
	}
	return nil
}

// SetDataPoints records the points to (re-)subscribe to on every
// successful connect, including reconnects the WorkerCore's
// reconnection loop drives (spec §5).
func (d *Driver) SetDataPoints(points []*model.DataPoint) {
	d.pointsMu.Lock()
	d.points = points
	d.pointsMu.Unlock()
}

func (d *Driver) CloseProtocolConnection() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	d.client.Disconnect(250)
	d.client = nil
	return nil
}

func (d *Driver) CheckProtocolConnection() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil && d.client.IsConnected()
}

// SendProtocolKeepAlive is a no-op: paho's client already maintains its
// own PINGREQ/PINGRESP cadence internally.
func (d *Driver) SendProtocolKeepAlive(ctx context.Context) error {
	return nil
}

// Subscribe subscribes to every enabled point's topic immediately.
// SetDataPoints is preferred for normal operation, since it also
// resubscribes across reconnects; Subscribe remains useful for tests
// and one-off callers that already hold a connected driver.
func (d *Driver) Subscribe(points []*model.DataPoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return &perrors.TransportError{Op: "mqtt_subscribe", Err: fmt.Errorf("not connected")}
	}
	return d.subscribeLocked(points)
}

// subscribeLocked subscribes to every enabled point's topic. Callers
// must hold d.mu and have already confirmed d.client is non-nil.
func (d *Driver) subscribeLocked(points []*model.DataPoint) error {
	for _, p := range points {
		if !p.Enabled || p.AddressString == "" {
			continue
		}
		token := d.client.Subscribe(p.AddressString, d.qos, d.onMessage)
		if !token.WaitTimeout(5 * time.Second) {
			return &perrors.TimeoutError{Op: "mqtt_subscribe:" + p.AddressString, Timeout: "5s"}
		}
		if err := token.Error(); err != nil {
			return &perrors.TransportError{Op: "mqtt_subscribe:" + p.AddressString, Err: err}
		}
	}
	return nil
}

func (d *Driver) onMessage(client mqtt.Client, msg mqtt.Message) {
	d.latestMu.Lock()
	defer d.latestMu.Unlock()
	d.latest[msg.Topic()] = worker.TimestampedValue{
		Value:     model.NewString(string(msg.Payload())),
		RawValue:  model.NewString(string(msg.Payload())),
		Quality:   model.QualityGood,
		Timestamp: time.Now(),
	}
}

// Poll returns the most recently received message on each point's topic
// (spec §4.4's polling contract, adapted for a push-based transport);
// a message is kept and returned again by later polls until a newer one
// arrives. A point whose topic has received no message yet reports
// NOT_CONNECTED-equivalent quality via QualityUncertain rather than
// failing the whole batch.
func (d *Driver) Poll(ctx context.Context, points []*model.DataPoint) ([]worker.TimestampedValue, error) {
	d.latestMu.Lock()
	defer d.latestMu.Unlock()

	out := make([]worker.TimestampedValue, 0, len(points))
	for _, p := range points {
		if !p.Enabled {
			continue
		}
		v, ok := d.latest[p.AddressString]
		if !ok {
			out = append(out, worker.TimestampedValue{PointID: p.ID, Quality: model.QualityUncertain, Timestamp: time.Now()})
			continue
		}
		v.PointID = p.ID
		out = append(out, v)
	}
	return out, nil
}

// WritePoint publishes value to the point's topic.
func (d *Driver) WritePoint(ctx context.Context, point *model.DataPoint, value model.Value) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return &perrors.TransportError{Op: "mqtt_publish", Err: fmt.Errorf("not connected")}
	}
	token := client.Publish(point.AddressString, d.qos, false, value.String())
	if !token.WaitTimeout(5 * time.Second) {
		return &perrors.TimeoutError{Op: "mqtt_publish:" + point.AddressString, Timeout: "5s"}
	}
	return token.Error()
}

var _ worker.ProtocolDriver = (*Driver)(nil)
