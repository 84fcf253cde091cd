package model

import "time"

// AccessMode constrains whether a data point accepts write commands.
type AccessMode string

const (
	AccessRead      AccessMode = "read"
	AccessWrite     AccessMode = "write"
	AccessReadWrite AccessMode = "read_write"
)

// CanWrite reports whether the access mode permits write commands
// (spec §3: "Write-access points may receive commands; read-only points
// reject them").
func (m AccessMode) CanWrite() bool {
	return m == AccessWrite || m == AccessReadWrite
}

// Timing holds per-device polling/retry timing, overridable per protocol
// by the worker factory's defaulting step (spec §4.5).
type Timing struct {
	PollInterval time.Duration
	Timeout      time.Duration
	RetryCount   int
}

// Device is a configuration record describing one field device. Devices
// are created and mutated by external configuration (spec §3 Lifecycle &
// ownership) and are never destroyed by the core.
type Device struct {
	ID             string
	Name           string
	Description    string
	ProtocolTag    string
	EndpointString string
	Enabled        bool
	Timing         Timing
	TypedProps     map[string]string
	TenantID       string
	SiteID         string
	DeviceType     string
	Vendor         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers (factory, cache) never hand out a
// record another goroutine could mutate concurrently.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.TypedProps = make(map[string]string, len(d.TypedProps))
	for k, v := range d.TypedProps {
		cp.TypedProps[k] = v
	}
	return &cp
}

// RuntimeOverlay is the mutable, worker-owned sample state layered on top
// of a DataPoint's configuration (spec §3).
type RuntimeOverlay struct {
	CurrentValue    Value
	RawValue        Value
	QualityCode     Quality
	ValueTimestamp  time.Time
	QualityTS       time.Time
	LastReadTime    time.Time
	LastWriteTime   time.Time
	LastLogTime     time.Time
	LastLoggedValue Value
}

// DataPoint is one addressable value on a device.
type DataPoint struct {
	ID             string
	DeviceID       string
	Name           string
	Address        int
	AddressString  string
	DataType       string
	AccessMode     AccessMode
	Enabled        bool
	Unit           string
	ScalingFactor  float64
	ScalingOffset  float64
	MinValue       float64
	MaxValue       float64
	LogEnabled     bool
	LogIntervalMS  int64
	LogDeadband    float64
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Runtime RuntimeOverlay
}

// Clone deep-copies a DataPoint including its runtime overlay and tags.
func (p *DataPoint) Clone() *DataPoint {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tags = append([]string(nil), p.Tags...)
	return &cp
}

// Engineering applies spec §3's scaling rule:
// engineering = raw * scaling_factor + scaling_offset when scaling_factor != 0,
// else engineering = raw.
func (p *DataPoint) Engineering(raw float64) float64 {
	if p.ScalingFactor == 0 {
		return raw
	}
	return raw*p.ScalingFactor + p.ScalingOffset
}

// PassesDeadband reports whether the transition from prev to next should
// be logged, per spec §3/§4.3: string values always pass; others require
// |next - prev| >= LogDeadband.
func (p *DataPoint) PassesDeadband(prev, next Value) bool {
	if next.IsString() || prev.IsString() {
		return true
	}
	pf, pok := prev.AsFloat64()
	nf, nok := next.AsFloat64()
	if !pok || !nok {
		return true
	}
	delta := nf - pf
	if delta < 0 {
		delta = -delta
	}
	return delta >= p.LogDeadband
}

// CurrentValue is the persisted mirror of a DataPoint's runtime overlay,
// keyed 1:1 by DataPointID, with read/write/error counters.
type CurrentValue struct {
	DataPointID  string
	Value        Value
	RawValue     Value
	Quality      Quality
	ValueTS      time.Time
	QualityTS    time.Time
	ReadCount    int64
	WriteCount   int64
	ErrorCount   int64
	UpdatedAt    time.Time
}

// Clone deep-copies a CurrentValue.
func (c *CurrentValue) Clone() *CurrentValue {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// AlarmRule, VirtualPoint, ScriptLibrary, Site, Tenant, and User are
// auxiliary entities (spec §3) that share the uniform repository contract
// but are not on the worker hot path. Their fields are kept minimal since
// no SPEC_FULL operation evaluates alarms, virtual points, or scripts
// (spec §1 Non-goals: "no rule engine, no alarm evaluation logic").

type AlarmRule struct {
	ID        string
	DeviceID  string
	PointID   string
	Name      string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AlarmOccurrence struct {
	ID        string
	RuleID    string
	RaisedAt  time.Time
	ClearedAt time.Time
	Message   string
}

type VirtualPoint struct {
	ID         string
	Name       string
	Expression string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ScriptLibrary struct {
	ID        string
	Name      string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Site struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}

type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	CreatedAt time.Time
}
