package worker

import (
	"time"

	"github.com/pulseone/pulseone/internal/model"
)

// StatusThresholds are the per-protocol device-status derivation inputs
// (spec §4.3's threshold table).
type StatusThresholds struct {
	OfflineFailureCount int64
	Timeout             time.Duration
	PartialFailRatio    float64
	ErrorFailRatio      float64
	OfflineTimeout      time.Duration
}

// Per-protocol defaults from spec §4.3's table. ThresholdsFor falls back
// to DefaultThresholds for any tag not listed here.
var (
	ModbusThresholds = StatusThresholds{
		OfflineFailureCount: 3, Timeout: 3 * time.Second,
		PartialFailRatio: 0.2, ErrorFailRatio: 0.5, OfflineTimeout: 10 * time.Second,
	}
	MQTTThresholds = StatusThresholds{
		OfflineFailureCount: 10, Timeout: 10 * time.Second,
		PartialFailRatio: 0.5, ErrorFailRatio: 0.8, OfflineTimeout: 60 * time.Second,
	}
	BACnetThresholds = StatusThresholds{
		OfflineFailureCount: 5, Timeout: 5 * time.Second,
		PartialFailRatio: 0.3, ErrorFailRatio: 0.7, OfflineTimeout: 30 * time.Second,
	}
	DefaultThresholds = StatusThresholds{
		OfflineFailureCount: 3, Timeout: 5 * time.Second,
		PartialFailRatio: 0.3, ErrorFailRatio: 0.7, OfflineTimeout: 30 * time.Second,
	}
)

// ThresholdsFor resolves the status-derivation thresholds for a
// protocol tag (spec §4.3's table, keyed the way internal/factory keys
// its protocol-default table).
func ThresholdsFor(protocolTag string) StatusThresholds {
	switch protocolTag {
	case "modbus_tcp", "modbus_rtu", "modbus":
		return ModbusThresholds
	case "mqtt":
		return MQTTThresholds
	case "bacnet", "bacnet_ip":
		return BACnetThresholds
	default:
		return DefaultThresholds
	}
}

// batchStats is the subset of connection counters status derivation
// needs for one batch evaluation.
type batchStats struct {
	consecutiveFailures int64
	timeSinceSuccess    time.Duration
	failedInBatch       int64
	totalInBatch        int64
}

// deriveStatus implements spec §4.3's device-status derivation: "Rules
// (evaluated in order, first match wins): if consecutive_failures >=
// offline_failure_count OR time since last success > offline_timeout ->
// OFFLINE. Else if failed/total >= error_fail_ratio -> ERROR. Else if
// failed/total >= partial_fail_ratio -> DEGRADED. Else ONLINE." Manual
// states (MAINTENANCE, SIMULATION, ...) override and are applied by the
// caller before falling back to this derivation.
func deriveStatus(t StatusThresholds, bs batchStats) model.DeviceStatus {
	if bs.consecutiveFailures >= t.OfflineFailureCount || bs.timeSinceSuccess > t.OfflineTimeout {
		return model.DeviceStatusOffline
	}
	if bs.totalInBatch > 0 {
		ratio := float64(bs.failedInBatch) / float64(bs.totalInBatch)
		if ratio >= t.ErrorFailRatio {
			return model.DeviceStatusError
		}
		if ratio >= t.PartialFailRatio {
			return model.DeviceStatusDegraded
		}
	}
	return model.DeviceStatusOnline
}
