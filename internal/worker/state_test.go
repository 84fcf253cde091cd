package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateStringCoversEveryConstant(t *testing.T) {
	cases := map[State]string{
		StateStopped:            "STOPPED",
		StateStarting:           "STARTING",
		StateRunning:            "RUNNING",
		StatePaused:             "PAUSED",
		StateReconnecting:       "RECONNECTING",
		StateWaitingRetry:       "WAITING_RETRY",
		StateMaxRetriesExceeded: "MAX_RETRIES_EXCEEDED",
		StateDeviceOffline:      "DEVICE_OFFLINE",
		StateCommunicationError: "COMMUNICATION_ERROR",
		StateError:              "ERROR",
		StateMaintenance:        "MAINTENANCE",
		StateSimulation:         "SIMULATION",
		StateCalibration:        "CALIBRATION",
		StateCommissioning:      "COMMISSIONING",
		StateDiagnosticMode:     "DIAGNOSTIC_MODE",
		StateManualOverride:     "MANUAL_OVERRIDE",
		StateEmergencyStop:      "EMERGENCY_STOP",
		StateBypassMode:         "BYPASS_MODE",
		StateSensorFault:        "SENSOR_FAULT",
		StateDataInvalid:        "DATA_INVALID",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
	assert.Equal(t, "UNKNOWN", StateUnknown.String())
}

func TestIsActiveCoversOnlyOperationalRunningStates(t *testing.T) {
	active := []State{StateRunning, StateSimulation, StateCalibration, StateCommissioning, StateMaintenance, StateDiagnosticMode}
	for _, s := range active {
		assert.True(t, s.IsActive(), "%s should be active", s)
	}

	inactive := []State{StateStopped, StateStarting, StatePaused, StateReconnecting, StateWaitingRetry, StateMaxRetriesExceeded, StateError, StateManualOverride, StateEmergencyStop, StateBypassMode, StateSensorFault, StateDataInvalid}
	for _, s := range inactive {
		assert.False(t, s.IsActive(), "%s should not be active", s)
	}
}

func TestIsErrorCoversFaultStates(t *testing.T) {
	errorStates := []State{StateError, StateDeviceOffline, StateCommunicationError, StateDataInvalid, StateSensorFault, StateEmergencyStop, StateMaxRetriesExceeded}
	for _, s := range errorStates {
		assert.True(t, s.IsError(), "%s should be an error state", s)
	}

	nonError := []State{StateRunning, StateStopped, StatePaused, StateReconnecting, StateWaitingRetry, StateMaintenance}
	for _, s := range nonError {
		assert.False(t, s.IsError(), "%s should not be an error state", s)
	}
}
