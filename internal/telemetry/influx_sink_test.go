package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/worker"
)

type fakePointWriter struct {
	points []*write.Point
	fail   bool
}

func (f *fakePointWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	if f.fail {
		return errors.New("write rejected")
	}
	f.points = append(f.points, points...)
	return nil
}

func newTestInfluxSink(w pointWriter) *InfluxSink {
	return &InfluxSink{writeAPI: w, log: logging.Default().With("telemetry").With("influx")}
}

func TestConsumeWritesOnePointPerValue(t *testing.T) {
	fw := &fakePointWriter{}
	s := newTestInfluxSink(fw)

	msg := &worker.DeviceDataMessage{
		DeviceID:    "dev-1",
		ProtocolTag: "modbus_tcp",
		Values: []worker.TimestampedValue{
			{PointID: "temp", Value: model.NewNumeric(72.5), Quality: model.QualityGood, Timestamp: time.Now()},
			{PointID: "label", Value: model.NewString("ok"), Quality: model.QualityGood, Timestamp: time.Now()},
		},
	}

	s.Consume(context.Background(), msg)

	require.Len(t, fw.points, 2)
	assert.Equal(t, int64(2), s.Stats().Written)
	assert.Equal(t, int64(0), s.Stats().Errors)
}

func TestConsumeCountsWriteFailuresWithoutStoppingBatch(t *testing.T) {
	fw := &fakePointWriter{fail: true}
	s := newTestInfluxSink(fw)

	msg := &worker.DeviceDataMessage{
		DeviceID:    "dev-1",
		ProtocolTag: "modbus_tcp",
		Values: []worker.TimestampedValue{
			{PointID: "temp", Value: model.NewNumeric(1), Quality: model.QualityGood, Timestamp: time.Now()},
			{PointID: "pressure", Value: model.NewNumeric(2), Quality: model.QualityBad, Timestamp: time.Now()},
		},
	}

	s.Consume(context.Background(), msg)

	assert.Equal(t, int64(0), s.Stats().Written)
	assert.Equal(t, int64(2), s.Stats().Errors)
	assert.Empty(t, fw.points)
}

func TestConsumeSkipsNeitherNumericNorStringValueButStillWritesPoint(t *testing.T) {
	fw := &fakePointWriter{}
	s := newTestInfluxSink(fw)

	msg := &worker.DeviceDataMessage{
		DeviceID:    "dev-1",
		ProtocolTag: "bacnet_ip",
		Values: []worker.TimestampedValue{
			{PointID: "flag", Value: model.NewBool(true), Quality: model.QualityUncertain, Timestamp: time.Now()},
		},
	}

	s.Consume(context.Background(), msg)

	require.Len(t, fw.points, 1)
	assert.Equal(t, int64(1), s.Stats().Written)
}

var _ worker.StatusPublisher = (*RedisPublisher)(nil)
