package repository

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/store"
)

// DataPointMapper maps model.DataPoint to/from the "data_points" table.
// The RuntimeOverlay is deliberately not persisted here: it is worker-
// owned in-memory state (spec §3) mirrored to the "current_values" table
// by CurrentValueMapper instead.
type DataPointMapper struct{}

func (DataPointMapper) Table() string { return "data_points" }

func (DataPointMapper) Columns() []string {
	return []string{
		"id", "device_id", "name", "address", "address_string", "data_type",
		"access_mode", "enabled", "unit", "scaling_factor", "scaling_offset",
		"min_value", "max_value", "log_enabled", "log_interval_ms",
		"log_deadband", "tags", "created_at", "updated_at",
	}
}

func (DataPointMapper) KeyColumn() string { return "id" }

func (DataPointMapper) KeyOf(p model.DataPoint) string { return p.ID }

func (DataPointMapper) WithKey(p model.DataPoint, k string) model.DataPoint {
	p.ID = k
	return p
}

func (DataPointMapper) NewKey() string { return uuid.NewString() }

func (DataPointMapper) IsZeroKey(k string) bool { return k == "" }

func (DataPointMapper) KeyText(k string) string { return k }

func (DataPointMapper) ToValues(p model.DataPoint) map[string]string {
	now := time.Now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return map[string]string{
		"device_id":       quote(p.DeviceID),
		"name":            quote(p.Name),
		"address":         strconv.Itoa(p.Address),
		"address_string":  quote(p.AddressString),
		"data_type":       quote(p.DataType),
		"access_mode":     quote(string(p.AccessMode)),
		"enabled":         boolLiteral(p.Enabled),
		"unit":            quote(p.Unit),
		"scaling_factor":  formatFloat(p.ScalingFactor),
		"scaling_offset":  formatFloat(p.ScalingOffset),
		"min_value":       formatFloat(p.MinValue),
		"max_value":       formatFloat(p.MaxValue),
		"log_enabled":     boolLiteral(p.LogEnabled),
		"log_interval_ms": strconv.FormatInt(p.LogIntervalMS, 10),
		"log_deadband":    formatFloat(p.LogDeadband),
		"tags":            quote(strings.Join(p.Tags, ",")),
		"created_at":      quote(createdAt.Format(time.RFC3339Nano)),
		"updated_at":      quote(now.Format(time.RFC3339Nano)),
	}
}

func (DataPointMapper) FromRow(row store.Row) (model.DataPoint, error) {
	p := model.DataPoint{
		ID:            asString(row["id"]),
		DeviceID:      asString(row["device_id"]),
		Name:          asString(row["name"]),
		Address:       int(asInt64(row["address"])),
		AddressString: asString(row["address_string"]),
		DataType:      asString(row["data_type"]),
		AccessMode:    model.AccessMode(asString(row["access_mode"])),
		Enabled:       asBool(row["enabled"]),
		Unit:          asString(row["unit"]),
		ScalingFactor: asFloat64(row["scaling_factor"]),
		ScalingOffset: asFloat64(row["scaling_offset"]),
		MinValue:      asFloat64(row["min_value"]),
		MaxValue:      asFloat64(row["max_value"]),
		LogEnabled:    asBool(row["log_enabled"]),
		LogIntervalMS: asInt64(row["log_interval_ms"]),
		LogDeadband:   asFloat64(row["log_deadband"]),
	}
	if tags := asString(row["tags"]); tags != "" {
		p.Tags = strings.Split(tags, ",")
	}
	p.CreatedAt = asTime(row["created_at"])
	p.UpdatedAt = asTime(row["updated_at"])
	return p, nil
}
