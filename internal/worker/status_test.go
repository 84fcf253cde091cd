package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulseone/pulseone/internal/model"
)

func TestThresholdsForResolvesKnownProtocolTags(t *testing.T) {
	assert.Equal(t, ModbusThresholds, ThresholdsFor("modbus_tcp"))
	assert.Equal(t, ModbusThresholds, ThresholdsFor("modbus_rtu"))
	assert.Equal(t, ModbusThresholds, ThresholdsFor("modbus"))
	assert.Equal(t, MQTTThresholds, ThresholdsFor("mqtt"))
	assert.Equal(t, BACnetThresholds, ThresholdsFor("bacnet"))
	assert.Equal(t, BACnetThresholds, ThresholdsFor("bacnet_ip"))
	assert.Equal(t, DefaultThresholds, ThresholdsFor("udp_raw"))
	assert.Equal(t, DefaultThresholds, ThresholdsFor(""))
}

func TestDeriveStatusOfflineTimeoutTakesPriorityOverRatio(t *testing.T) {
	status := deriveStatus(ModbusThresholds, batchStats{
		consecutiveFailures: 0,
		timeSinceSuccess:    11 * time.Second,
		failedInBatch:       0,
		totalInBatch:        10,
	})
	assert.Equal(t, model.DeviceStatusOffline, status)
}

func TestDeriveStatusEmptyBatchIsOnline(t *testing.T) {
	status := deriveStatus(DefaultThresholds, batchStats{})
	assert.Equal(t, model.DeviceStatusOnline, status)
}

func TestDeriveStatusBoundaryRatiosAreInclusive(t *testing.T) {
	// MQTT: partial=0.5, error=0.8
	degraded := deriveStatus(MQTTThresholds, batchStats{failedInBatch: 5, totalInBatch: 10})
	assert.Equal(t, model.DeviceStatusDegraded, degraded)

	errStatus := deriveStatus(MQTTThresholds, batchStats{failedInBatch: 8, totalInBatch: 10})
	assert.Equal(t, model.DeviceStatusError, errStatus)
}
