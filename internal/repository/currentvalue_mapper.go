package repository

import (
	"strconv"
	"time"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/store"
)

// CurrentValueMapper maps model.CurrentValue to/from the "current_values"
// table, the persisted mirror of a DataPoint's RuntimeOverlay (spec §3).
// Unlike the other mappers, the key (DataPointID) is never auto-assigned:
// a CurrentValue always belongs to a pre-existing DataPoint.
type CurrentValueMapper struct{}

func (CurrentValueMapper) Table() string { return "current_values" }

func (CurrentValueMapper) Columns() []string {
	cols := []string{"data_point_id"}
	cols = append(cols, valueColumnNames("value")...)
	cols = append(cols, valueColumnNames("raw")...)
	cols = append(cols, "quality", "value_ts", "quality_ts",
		"read_count", "write_count", "error_count", "updated_at")
	return cols
}

func valueColumnNames(prefix string) []string {
	return []string{prefix + "_kind", prefix + "_numeric", prefix + "_bool", prefix + "_str"}
}

func (CurrentValueMapper) KeyColumn() string { return "data_point_id" }

func (CurrentValueMapper) KeyOf(c model.CurrentValue) string { return c.DataPointID }

func (CurrentValueMapper) WithKey(c model.CurrentValue, k string) model.CurrentValue {
	c.DataPointID = k
	return c
}

// NewKey never fires in practice: a CurrentValue's key is always supplied
// by the caller (the DataPointID it mirrors), never auto-generated.
func (CurrentValueMapper) NewKey() string { return "" }

func (CurrentValueMapper) IsZeroKey(k string) bool { return k == "" }

func (CurrentValueMapper) KeyText(k string) string { return k }

func (CurrentValueMapper) ToValues(c model.CurrentValue) map[string]string {
	values := map[string]string{
		"quality":     quote(c.Quality.String()),
		"value_ts":    quote(c.ValueTS.Format(time.RFC3339Nano)),
		"quality_ts":  quote(c.QualityTS.Format(time.RFC3339Nano)),
		"read_count":  strconv.FormatInt(c.ReadCount, 10),
		"write_count": strconv.FormatInt(c.WriteCount, 10),
		"error_count": strconv.FormatInt(c.ErrorCount, 10),
		"updated_at":  quote(time.Now().Format(time.RFC3339Nano)),
	}
	for k, v := range valueColumns("value", c.Value) {
		values[k] = v
	}
	for k, v := range valueColumns("raw", c.RawValue) {
		values[k] = v
	}
	return values
}

func (CurrentValueMapper) FromRow(row store.Row) (model.CurrentValue, error) {
	c := model.CurrentValue{
		DataPointID: asString(row["data_point_id"]),
		Value:       valueFromRow(row, "value"),
		RawValue:    valueFromRow(row, "raw"),
		ReadCount:   asInt64(row["read_count"]),
		WriteCount:  asInt64(row["write_count"]),
		ErrorCount:  asInt64(row["error_count"]),
	}
	c.Quality = model.ParseQuality(asString(row["quality"]))
	c.ValueTS = asTime(row["value_ts"])
	c.QualityTS = asTime(row["quality_ts"])
	c.UpdatedAt = asTime(row["updated_at"])
	return c, nil
}
