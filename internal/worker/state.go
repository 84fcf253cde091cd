// Package worker implements the protocol-independent worker base (spec
// §4.3): the state machine, reconnection loop, deadband logging, device
// status derivation, and DeviceDataMessage emission that every protocol
// worker (internal/worker/modbus, .../mqtt, .../bacnet) builds on by
// supplying a ProtocolDriver.
package worker

// State is the worker's lifecycle state (spec §4.3's finite-state
// machine plus its operational/error states).
type State int32

const (
	StateUnknown State = iota
	StateStopped
	StateStarting
	StateRunning
	StatePaused
	StateReconnecting
	StateWaitingRetry
	StateMaxRetriesExceeded
	StateDeviceOffline
	StateCommunicationError
	StateError

	// Operational states (spec §4.3: "additional operational states").
	StateMaintenance
	StateSimulation
	StateCalibration
	StateCommissioning
	StateDiagnosticMode
	StateManualOverride
	StateEmergencyStop
	StateBypassMode
	StateSensorFault
	StateDataInvalid
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateWaitingRetry:
		return "WAITING_RETRY"
	case StateMaxRetriesExceeded:
		return "MAX_RETRIES_EXCEEDED"
	case StateDeviceOffline:
		return "DEVICE_OFFLINE"
	case StateCommunicationError:
		return "COMMUNICATION_ERROR"
	case StateError:
		return "ERROR"
	case StateMaintenance:
		return "MAINTENANCE"
	case StateSimulation:
		return "SIMULATION"
	case StateCalibration:
		return "CALIBRATION"
	case StateCommissioning:
		return "COMMISSIONING"
	case StateDiagnosticMode:
		return "DIAGNOSTIC_MODE"
	case StateManualOverride:
		return "MANUAL_OVERRIDE"
	case StateEmergencyStop:
		return "EMERGENCY_STOP"
	case StateBypassMode:
		return "BYPASS_MODE"
	case StateSensorFault:
		return "SENSOR_FAULT"
	case StateDataInvalid:
		return "DATA_INVALID"
	default:
		return "UNKNOWN"
	}
}

// IsActive reports whether the worker should be polling in this state
// (spec §4.3: "Only RUNNING, SIMULATION, CALIBRATION, COMMISSIONING,
// MAINTENANCE, DIAGNOSTIC_MODE are considered active").
func (s State) IsActive() bool {
	switch s {
	case StateRunning, StateSimulation, StateCalibration, StateCommissioning,
		StateMaintenance, StateDiagnosticMode:
		return true
	default:
		return false
	}
}

// IsError reports whether the state represents a fault condition (spec
// §4.3's error-state list).
func (s State) IsError() bool {
	switch s {
	case StateError, StateDeviceOffline, StateCommunicationError,
		StateDataInvalid, StateSensorFault, StateEmergencyStop,
		StateMaxRetriesExceeded:
		return true
	default:
		return false
	}
}

// IsManualOverride reports whether the state is one of spec §4.3's
// additional operational states, which override the computed device
// status (MAINTENANCE/SIMULATION/.../DATA_INVALID report
// model.DeviceStatusMaintenance regardless of the failed/total ratio).
func (s State) IsManualOverride() bool {
	switch s {
	case StateMaintenance, StateSimulation, StateCalibration, StateCommissioning,
		StateDiagnosticMode, StateManualOverride, StateEmergencyStop, StateBypassMode,
		StateSensorFault, StateDataInvalid:
		return true
	default:
		return false
	}
}
