// Package factory implements the worker factory (spec §4.5): it turns a
// configured Device plus its enabled DataPoints into a running
// worker.WorkerCore, picking the protocol driver constructor by
// protocol_tag the way the teacher's storage factory picks a backend
// constructor by scheme (internal/storage/factory/factory.go's
// BackendFactory/backendRegistry/RegisterBackend pattern).
package factory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseone/pulseone/internal/logging"
	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/repository"
	"github.com/pulseone/pulseone/internal/worker"
)

// ProtocolConstructor builds the protocol-specific driver for one
// device, given the assembled DeviceInfo and the raw Device record (for
// typed_properties protocol defaults have already been applied to).
// Registered by protocol_tag (spec §4.5 step 5).
type ProtocolConstructor func(device model.Device, info worker.DeviceInfo) (worker.ProtocolDriver, error)

// Dependencies wires the repositories and worker-level collaborators
// the factory needs to assemble a WorkerCore (spec §4.1's repository
// layer, joined here rather than inside any one protocol driver, per
// spec §9: "factory — not the repository — joins the two on load").
type Dependencies struct {
	Devices       *repository.DeviceRepository
	DataPoints    *repository.DataPointRepository
	CurrentValues *repository.CurrentValueRepository
	Sink          worker.Sink
	Publisher     worker.StatusPublisher
}

// Factory constructs and tracks protocol workers (spec §4.5: "Factory
// tracks workers_created, creation_failures, registered_protocols,
// factory_start_time").
type Factory struct {
	deps Dependencies
	log  *logging.Logger

	registryMu sync.RWMutex
	registry   map[string]ProtocolConstructor

	workersMu sync.RWMutex
	workers   map[string]*worker.WorkerCore

	workersCreated   atomic.Int64
	creationFailures atomic.Int64
	startTime        time.Time
}

// New builds a Factory with an empty protocol registry; callers add
// protocol constructors with RegisterProtocol, or call RegisterDefaults
// to wire PulseOne's built-in Modbus/MQTT/BACnet drivers.
func New(deps Dependencies) *Factory {
	return &Factory{
		deps:      deps,
		log:       logging.Default().With("factory"),
		registry:  make(map[string]ProtocolConstructor),
		workers:   make(map[string]*worker.WorkerCore),
		startTime: time.Now(),
	}
}

// RegisterProtocol adds (or replaces) the constructor for protocolTag.
func (f *Factory) RegisterProtocol(protocolTag string, ctor ProtocolConstructor) {
	f.registryMu.Lock()
	defer f.registryMu.Unlock()
	f.registry[protocolTag] = ctor
}

// RegisteredProtocols lists every protocol_tag with a registered
// constructor, in no particular order.
func (f *Factory) RegisteredProtocols() []string {
	f.registryMu.RLock()
	defer f.registryMu.RUnlock()
	tags := make([]string, 0, len(f.registry))
	for tag := range f.registry {
		tags = append(tags, tag)
	}
	return tags
}

func (f *Factory) constructorFor(protocolTag string) (ProtocolConstructor, bool) {
	f.registryMu.RLock()
	defer f.registryMu.RUnlock()
	ctor, ok := f.registry[protocolTag]
	return ctor, ok
}

// Stats is the factory's observable counter set (spec §4.5).
type Stats struct {
	WorkersCreated      int64
	CreationFailures    int64
	RegisteredProtocols []string
	FactoryStartTime    time.Time
}

// Stats returns a snapshot of the factory's tracked counters.
func (f *Factory) Stats() Stats {
	return Stats{
		WorkersCreated:      f.workersCreated.Load(),
		CreationFailures:    f.creationFailures.Load(),
		RegisteredProtocols: f.RegisteredProtocols(),
		FactoryStartTime:    f.startTime,
	}
}

// Worker returns a previously-created worker by device id.
func (f *Factory) Worker(deviceID string) (*worker.WorkerCore, bool) {
	f.workersMu.RLock()
	defer f.workersMu.RUnlock()
	w, ok := f.workers[deviceID]
	return w, ok
}

// CreateByDeviceID implements spec §4.5 steps 1-6 for a single device:
// fetch, refuse if missing/disabled, assemble data points and current
// values, default typed_properties, construct, register.
func (f *Factory) CreateByDeviceID(ctx context.Context, id string) (*worker.WorkerCore, error) {
	device, ok := f.deps.Devices.FindByID(ctx, id)
	if !ok {
		f.creationFailures.Add(1)
		return nil, fmt.Errorf("factory: device %q not found", id)
	}
	if !device.Enabled {
		f.creationFailures.Add(1)
		return nil, fmt.Errorf("factory: device %q is disabled", id)
	}
	w, err := f.build(ctx, device)
	if err != nil {
		f.creationFailures.Add(1)
		return nil, err
	}
	f.workersCreated.Add(1)
	f.workersMu.Lock()
	f.workers[device.ID] = w
	f.workersMu.Unlock()
	return w, nil
}

// CreateAllActiveWorkers implements create_all_active_workers(limit?):
// every enabled device, optionally bounded by limit (<=0 means
// unbounded). Per-device failures are collected rather than aborting
// the whole run, since one misconfigured device shouldn't block the
// rest of the fleet from starting.
func (f *Factory) CreateAllActiveWorkers(ctx context.Context, limit int) ([]*worker.WorkerCore, []error) {
	conds := []repository.QueryCondition{{Field: "enabled", Op: repository.OpEq, Value: "1"}}
	var page *repository.Pagination
	if limit > 0 {
		page = &repository.Pagination{Page: 1, Size: limit}
	}
	devices := f.deps.Devices.FindByConditions(ctx, conds, nil, page)
	return f.createEach(ctx, devices)
}

// CreateWorkersByProtocol implements create_workers_by_protocol(tag, limit?).
func (f *Factory) CreateWorkersByProtocol(ctx context.Context, protocolTag string, limit int) ([]*worker.WorkerCore, []error) {
	conds := []repository.QueryCondition{
		{Field: "enabled", Op: repository.OpEq, Value: "1"},
		{Field: "protocol_tag", Op: repository.OpEq, Value: protocolTag},
	}
	var page *repository.Pagination
	if limit > 0 {
		page = &repository.Pagination{Page: 1, Size: limit}
	}
	devices := f.deps.Devices.FindByConditions(ctx, conds, nil, page)
	return f.createEach(ctx, devices)
}

func (f *Factory) createEach(ctx context.Context, devices []model.Device) ([]*worker.WorkerCore, []error) {
	workers := make([]*worker.WorkerCore, 0, len(devices))
	var errs []error
	for _, device := range devices {
		w, err := f.build(ctx, device)
		if err != nil {
			f.creationFailures.Add(1)
			errs = append(errs, fmt.Errorf("factory: device %q: %w", device.ID, err))
			continue
		}
		f.workersCreated.Add(1)
		f.workersMu.Lock()
		f.workers[device.ID] = w
		f.workersMu.Unlock()
		workers = append(workers, w)
	}
	return workers, errs
}

// build runs spec §4.5 steps 2-6 for an already-fetched, already
// enabled-checked device.
func (f *Factory) build(ctx context.Context, device model.Device) (*worker.WorkerCore, error) {
	applyProtocolDefaults(&device)

	ctor, ok := f.constructorFor(device.ProtocolTag)
	if !ok {
		return nil, fmt.Errorf("no protocol constructor registered for %q", device.ProtocolTag)
	}

	pointConds := []repository.QueryCondition{
		{Field: "device_id", Op: repository.OpEq, Value: device.ID},
		{Field: "enabled", Op: repository.OpEq, Value: "1"},
	}
	rawPoints := f.deps.DataPoints.FindByConditions(ctx, pointConds, nil, nil)

	points := make([]*model.DataPoint, 0, len(rawPoints))
	for i := range rawPoints {
		p := rawPoints[i]
		f.projectCurrentValue(ctx, &p)
		points = append(points, &p)
	}

	info := worker.DeviceInfo{
		ID:             device.ID,
		Name:           device.Name,
		ProtocolTag:    device.ProtocolTag,
		EndpointString: device.EndpointString,
		TenantID:       device.TenantID,
		SiteID:         device.SiteID,
		Timing:         device.Timing,
	}

	driver, err := ctor(device, info)
	if err != nil {
		return nil, fmt.Errorf("construct %s driver: %w", device.ProtocolTag, err)
	}
	// Push-based drivers (MQTT) need the point list up front to know
	// what to subscribe to on connect; pull-based drivers ignore this.
	if subscriber, ok := driver.(interface{ SetDataPoints([]*model.DataPoint) }); ok {
		subscriber.SetDataPoints(points)
	}

	workerID := fmt.Sprintf("worker-%s", device.ID)
	opts := []worker.Option{}
	if f.deps.Sink != nil {
		opts = append(opts, worker.WithSink(f.deps.Sink))
	}
	if f.deps.Publisher != nil {
		opts = append(opts, worker.WithPublisher(f.deps.Publisher))
	}
	if f.deps.CurrentValues != nil {
		opts = append(opts, worker.WithCurrentValueSaver(f.saveCurrentValue))
	}

	policy := model.DefaultReconnectionPolicy()
	return worker.NewWorkerCore(workerID, info, points, driver, policy, opts...), nil
}

// projectCurrentValue implements spec §4.5 step 3: load (if any) the
// point's persisted current value and project it into the runtime
// overlay; a missing current value means the point has never been
// successfully read, so its quality starts at NOT_CONNECTED rather than
// the zero value's implicit "good".
func (f *Factory) projectCurrentValue(ctx context.Context, p *model.DataPoint) {
	p.Runtime.QualityCode = model.QualityNotConnected
	if f.deps.CurrentValues == nil {
		return
	}
	cv, ok := f.deps.CurrentValues.FindByID(ctx, p.ID)
	if !ok {
		return
	}
	p.Runtime.CurrentValue = cv.Value
	p.Runtime.LastLoggedValue = cv.Value
	p.Runtime.RawValue = cv.RawValue
	p.Runtime.QualityCode = cv.Quality
	p.Runtime.ValueTimestamp = cv.ValueTS
	p.Runtime.QualityTS = cv.QualityTS
}

func (f *Factory) saveCurrentValue(ctx context.Context, cv model.CurrentValue) {
	if f.deps.CurrentValues == nil {
		return
	}
	if existing, ok := f.deps.CurrentValues.FindByID(ctx, cv.DataPointID); ok {
		cv.ReadCount = existing.ReadCount + 1
		cv.WriteCount = existing.WriteCount
		cv.ErrorCount = existing.ErrorCount
		f.deps.CurrentValues.Update(ctx, cv)
	} else {
		cv.ReadCount = 1
		f.deps.CurrentValues.Save(ctx, cv)
	}
}

// applyProtocolDefaults implements spec §4.5 step 4: protocol-specific
// defaults for typed_properties and timings when absent.
func applyProtocolDefaults(device *model.Device) {
	if device.TypedProps == nil {
		device.TypedProps = make(map[string]string)
	}
	switch device.ProtocolTag {
	case "modbus_tcp", "modbus":
		if _, ok := device.TypedProps["slave_id"]; !ok {
			device.TypedProps["slave_id"] = "1"
		}
	case "mqtt":
		if _, ok := device.TypedProps["qos"]; !ok {
			device.TypedProps["qos"] = "1"
		}
		if _, ok := device.TypedProps["client_id"]; !ok {
			device.TypedProps["client_id"] = fmt.Sprintf("pulseone-%s", device.ID)
		}
	case "bacnet", "bacnet_ip":
		if device.Timing.PollInterval < 5*time.Second {
			device.Timing.PollInterval = 5 * time.Second
		}
	}
}
