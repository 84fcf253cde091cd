// Package model defines the entity types shared by the repository layer,
// the worker runtime, and the pipeline bridge: devices, data points,
// current values, and the small set of auxiliary entities that share the
// same repository contract.
package model

// Quality describes how much a consumer should trust a sample.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityGood
	QualityBad
	QualityUncertain
	QualityNotConnected
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "GOOD"
	case QualityBad:
		return "BAD"
	case QualityUncertain:
		return "UNCERTAIN"
	case QualityNotConnected:
		return "NOT_CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ParseQuality parses the wire vocabulary back into a Quality. Unknown
// strings map to QualityUnknown rather than erroring, since quality is
// advisory metadata, not a validated enum at the wire boundary.
func ParseQuality(s string) Quality {
	switch s {
	case "GOOD":
		return QualityGood
	case "BAD":
		return QualityBad
	case "UNCERTAIN":
		return QualityUncertain
	case "NOT_CONNECTED":
		return QualityNotConnected
	default:
		return QualityUnknown
	}
}

// DeviceStatus is the derived communication health of a device, computed
// per batch from recent success/failure counters against protocol
// thresholds (see internal/worker/status.go).
type DeviceStatus int

const (
	DeviceStatusUnknown DeviceStatus = iota
	DeviceStatusOnline
	DeviceStatusOffline
	DeviceStatusError
	DeviceStatusDegraded
	DeviceStatusMaintenance
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceStatusOnline:
		return "ONLINE"
	case DeviceStatusOffline:
		return "OFFLINE"
	case DeviceStatusError:
		return "ERROR"
	case DeviceStatusDegraded:
		return "DEGRADED"
	case DeviceStatusMaintenance:
		return "MAINTENANCE"
	default:
		return "UNKNOWN"
	}
}
