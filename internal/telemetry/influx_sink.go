package telemetry

import (
	"context"
	"sync/atomic"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/worker"
)

const measurementName = "point_sample"

// pointWriter is the slice of api.WriteAPIBlocking's method set this
// sink actually calls. Declaring it locally (rather than depending on
// the full api.WriteAPIBlocking interface) keeps the sink trivially
// fakeable in tests without needing a live InfluxDB server.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink is the Influx-style time-series client spec §6 describes
// receiving "per-point samples". It implements pipeline.Consumer, so it
// can be wired in behind an internal/pipeline.Bridge the same way any
// other downstream consumer is: one write per passing sample in a
// DeviceDataMessage's Values (deadband-suppressed samples, by
// construction, never reach here).
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI pointWriter
	log      *logging.Logger

	written atomic.Int64
	errors  atomic.Int64
}

// NewInfluxSink connects to an InfluxDB 2.x server at url using token,
// writing into org/bucket.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logging.Default().With("telemetry").With("influx"),
	}
}

// Consume implements pipeline.Consumer: one Influx point per sample that
// passed deadband filtering, tagged by device_id/point_id/protocol_tag
// and carrying the numeric or string value plus its reported quality.
func (s *InfluxSink) Consume(ctx context.Context, msg *worker.DeviceDataMessage) {
	for _, v := range msg.Values {
		fields := map[string]any{
			"quality": v.Quality.String(),
		}
		if v.Value.IsString() {
			fields["value_str"] = v.Value.String()
		} else if f, ok := v.Value.AsFloat64(); ok {
			fields["value"] = f
		}

		p := influxdb2.NewPoint(
			measurementName,
			map[string]string{
				"device_id":    msg.DeviceID,
				"point_id":     v.PointID,
				"protocol_tag": msg.ProtocolTag,
			},
			fields,
			v.Timestamp,
		)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			s.errors.Add(1)
			s.log.Warnf("write failed for device=%s point=%s: %v", msg.DeviceID, v.PointID, err)
			continue
		}
		s.written.Add(1)
	}
}

// InfluxStats is the sink's observable counter set.
type InfluxStats struct {
	Written int64
	Errors  int64
}

// Stats returns a snapshot of write counters.
func (s *InfluxSink) Stats() InfluxStats {
	return InfluxStats{Written: s.written.Load(), Errors: s.errors.Load()}
}

// Close releases the underlying Influx client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
