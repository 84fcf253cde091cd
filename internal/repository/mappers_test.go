package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseone/pulseone/internal/model"
)

func TestDeviceRepositoryRoundTrip(t *testing.T) {
	db := newFakeStore()
	repo := NewDeviceRepository(db, nil)

	dev := model.Device{
		Name:           "plc-1",
		ProtocolTag:    "modbus_tcp",
		EndpointString: "10.0.0.5:502",
		Enabled:        true,
		Timing:         model.Timing{PollInterval: time.Second, Timeout: 500 * time.Millisecond, RetryCount: 3},
		TypedProps:     map[string]string{"unit_id": "1"},
	}
	id, ok := repo.Save(ctx(), dev)
	require.True(t, ok)
	require.NotEmpty(t, id)

	got, ok := repo.FindByID(ctx(), id)
	require.True(t, ok)
	assert.Equal(t, "plc-1", got.Name)
	assert.Equal(t, "modbus_tcp", got.ProtocolTag)
	assert.True(t, got.Enabled)
	assert.Equal(t, time.Second, got.Timing.PollInterval)
	assert.Equal(t, 3, got.Timing.RetryCount)
	assert.Equal(t, "1", got.TypedProps["unit_id"])
}

func TestDataPointRepositoryRoundTrip(t *testing.T) {
	db := newFakeStore()
	repo := NewDataPointRepository(db, nil)

	dp := model.DataPoint{
		DeviceID:      "dev-1",
		Name:          "temperature",
		Address:       40001,
		DataType:      "float32",
		AccessMode:    model.AccessReadWrite,
		Enabled:       true,
		ScalingFactor: 0.1,
		ScalingOffset: -40,
		LogDeadband:   0.5,
		Tags:          []string{"hvac", "zone-1"},
	}
	id, ok := repo.Save(ctx(), dp)
	require.True(t, ok)

	got, ok := repo.FindByID(ctx(), id)
	require.True(t, ok)
	assert.Equal(t, "temperature", got.Name)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.True(t, got.AccessMode.CanWrite())
	assert.InDelta(t, 0.1, got.ScalingFactor, 1e-9)
	assert.Equal(t, []string{"hvac", "zone-1"}, got.Tags)
	assert.InDelta(t, 10.0, got.Engineering(500), 1e-9) // 500*0.1-40 = 10
}

func TestCurrentValueRepositoryRoundTrip(t *testing.T) {
	db := newFakeStore()
	repo := NewCurrentValueRepository(db, nil)

	cv := model.CurrentValue{
		DataPointID: "dp-1",
		Value:       model.NewNumeric(72.5),
		RawValue:    model.NewNumeric(725),
		Quality:     model.QualityGood,
		ValueTS:     time.Now(),
		ReadCount:   10,
	}
	_, ok := repo.Save(ctx(), cv)
	require.True(t, ok)

	got, ok := repo.FindByID(ctx(), "dp-1")
	require.True(t, ok)
	assert.Equal(t, model.QualityGood, got.Quality)
	f, _ := got.Value.AsFloat64()
	assert.InDelta(t, 72.5, f, 1e-9)
	assert.Equal(t, int64(10), got.ReadCount)
}

func TestCurrentValueRepositoryStringValueBypassesNumericColumns(t *testing.T) {
	db := newFakeStore()
	repo := NewCurrentValueRepository(db, nil)

	cv := model.CurrentValue{DataPointID: "dp-2", Value: model.NewString("fault: E04"), Quality: model.QualityUncertain}
	_, ok := repo.Save(ctx(), cv)
	require.True(t, ok)

	got, ok := repo.FindByID(ctx(), "dp-2")
	require.True(t, ok)
	assert.True(t, got.Value.IsString())
	assert.Equal(t, "fault: E04", got.Value.Str)
}
