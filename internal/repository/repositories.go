package repository

import (
	"time"

	"github.com/pulseone/pulseone/internal/cache"
	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/store"
)

// DeviceRepository, DataPointRepository, and CurrentValueRepository are
// the concrete Repository instantiations the worker factory depends on,
// each wired to its Mapper (spec §9: "uniform repository
// contract across entity kinds" realized as one generic type applied
// three times rather than three hand-written CRUD implementations).
type DeviceRepository = Repository[string, model.Device]
type DataPointRepository = Repository[string, model.DataPoint]
type CurrentValueRepository = Repository[string, model.CurrentValue]

// NewDeviceRepository wires a DeviceRepository over db, with a longer
// default TTL than the point-level caches since device configuration
// changes far less often than a polled value (spec §4.1 default is a
// starting point, not a hard rule, per entity kind).
func NewDeviceRepository(db store.Store, logf func(string, ...any)) *DeviceRepository {
	return New[string, model.Device](db, DeviceMapper{}, logf,
		cache.WithMaxSize[string, model.Device](cache.DefaultMaxSize),
		cache.WithTTL[string, model.Device](10*time.Minute),
	)
}

// NewDataPointRepository wires a DataPointRepository over db.
func NewDataPointRepository(db store.Store, logf func(string, ...any)) *DataPointRepository {
	return New[string, model.DataPoint](db, DataPointMapper{}, logf,
		cache.WithMaxSize[string, model.DataPoint](cache.DefaultMaxSize),
		cache.WithTTL[string, model.DataPoint](5*time.Minute),
	)
}

// NewCurrentValueRepository wires a CurrentValueRepository over db, with
// the package default TTL since current values churn on every poll cycle.
func NewCurrentValueRepository(db store.Store, logf func(string, ...any)) *CurrentValueRepository {
	return New[string, model.CurrentValue](db, CurrentValueMapper{}, logf)
}
