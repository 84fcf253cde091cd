package worker

import (
	"time"

	"github.com/pulseone/pulseone/internal/model"
)

// TimestampedValue is one decoded sample a protocol driver's Poll
// returns (spec §4.3: "protocol workers produce batches of
// TimestampedValue { point_id, value, raw_value, quality, timestamp }").
type TimestampedValue struct {
	PointID   string
	Value     model.Value
	RawValue  model.Value
	Quality   model.Quality
	Timestamp time.Time
}

// ConnectionStats is the connection-health snapshot carried on every
// outgoing DeviceDataMessage (spec §4.3).
type ConnectionStats struct {
	ConsecutiveFailures int64
	TotalFailures       int64
	TotalAttempts       int64
	LastResponseTime    time.Duration
	LastErrorText       string
	LastErrorCode       string
}

// PointCounts summarizes one poll cycle's outcome per spec §4.3.
type PointCounts struct {
	TotalConfigured int
	Successful      int
	Failed          int
}

// DeviceDataMessage is the unit the worker base pushes to the pipeline
// sink, one per poll cycle (spec §4.3).
type DeviceDataMessage struct {
	DeviceID       string
	ProtocolTag    string
	BatchTimestamp time.Time
	Priority       int
	TenantID       string
	SiteID         string

	TriggerAlarms        bool
	TriggerVirtualPoints bool
	HighPriority         bool

	CorrelationID  string
	BatchSequence  int64

	Status         model.DeviceStatus
	PreviousStatus model.DeviceStatus
	StatusChanged  bool

	Connection ConnectionStats
	Points     PointCounts

	// Values holds only the samples that passed deadband filtering
	// (spec §4.3's "Deadband logging"); the worker still updates its
	// in-memory current value on every poll regardless of this filter.
	Values []TimestampedValue
}
