package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/store"
)

// DeviceMapper maps model.Device to/from the "devices" table.
type DeviceMapper struct{}

func (DeviceMapper) Table() string { return "devices" }

func (DeviceMapper) Columns() []string {
	return []string{
		"id", "name", "description", "protocol_tag", "endpoint_string", "enabled",
		"poll_interval_ms", "timeout_ms", "retry_count", "typed_props",
		"tenant_id", "site_id", "device_type", "vendor", "created_at", "updated_at",
	}
}

func (DeviceMapper) KeyColumn() string { return "id" }

func (DeviceMapper) KeyOf(d model.Device) string { return d.ID }

func (DeviceMapper) WithKey(d model.Device, k string) model.Device {
	d.ID = k
	return d
}

func (DeviceMapper) NewKey() string { return uuid.NewString() }

func (DeviceMapper) IsZeroKey(k string) bool { return k == "" }

func (DeviceMapper) KeyText(k string) string { return k }

func (DeviceMapper) ToValues(d model.Device) map[string]string {
	props, _ := json.Marshal(d.TypedProps)
	now := time.Now()
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return map[string]string{
		"name":             quote(d.Name),
		"description":      quote(d.Description),
		"protocol_tag":     quote(d.ProtocolTag),
		"endpoint_string":  quote(d.EndpointString),
		"enabled":          boolLiteral(d.Enabled),
		"poll_interval_ms": strconv.FormatInt(d.Timing.PollInterval.Milliseconds(), 10),
		"timeout_ms":       strconv.FormatInt(d.Timing.Timeout.Milliseconds(), 10),
		"retry_count":      strconv.Itoa(d.Timing.RetryCount),
		"typed_props":      quote(string(props)),
		"tenant_id":        quote(d.TenantID),
		"site_id":          quote(d.SiteID),
		"device_type":      quote(d.DeviceType),
		"vendor":           quote(d.Vendor),
		"created_at":       quote(createdAt.Format(time.RFC3339Nano)),
		"updated_at":       quote(now.Format(time.RFC3339Nano)),
	}
}

func (DeviceMapper) FromRow(row store.Row) (model.Device, error) {
	d := model.Device{
		ID:             asString(row["id"]),
		Name:           asString(row["name"]),
		Description:    asString(row["description"]),
		ProtocolTag:    asString(row["protocol_tag"]),
		EndpointString: asString(row["endpoint_string"]),
		Enabled:        asBool(row["enabled"]),
		TenantID:       asString(row["tenant_id"]),
		SiteID:         asString(row["site_id"]),
		DeviceType:     asString(row["device_type"]),
		Vendor:         asString(row["vendor"]),
	}
	d.Timing.PollInterval = time.Duration(asInt64(row["poll_interval_ms"])) * time.Millisecond
	d.Timing.Timeout = time.Duration(asInt64(row["timeout_ms"])) * time.Millisecond
	d.Timing.RetryCount = int(asInt64(row["retry_count"]))

	d.TypedProps = map[string]string{}
	if raw := asString(row["typed_props"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.TypedProps); err != nil {
			return d, fmt.Errorf("decode typed_props: %w", err)
		}
	}
	d.CreatedAt = asTime(row["created_at"])
	d.UpdatedAt = asTime(row["updated_at"])
	return d, nil
}
