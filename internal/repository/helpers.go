package repository

import (
	"strconv"
	"time"

	"github.com/pulseone/pulseone/internal/model"
	"github.com/pulseone/pulseone/internal/store"
)

// quote renders s as a single-quoted, escaped SQL literal (spec §6).
func quote(s string) string {
	return "'" + escapeLiteral(s) + "'"
}

// boolLiteral renders b the way MySQL-flavored dialects accept in a
// column value position.
func boolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// asString coerces a store.Row value to a string, the zero value if the
// column was absent or nil.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return ""
	}
}

// asBool coerces a store.Row value to a bool, accepting the numeric and
// textual encodings a SQL driver or the fakeStore might hand back.
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t == "1" || t == "true" || t == "TRUE"
	default:
		return false
	}
}

// asInt64 coerces a store.Row value to an int64.
func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

// asFloat64 coerces a store.Row value to a float64.
func asFloat64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

// asTime parses a store.Row timestamp column encoded as RFC3339Nano.
func asTime(v any) time.Time {
	s := asString(v)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// valueColumns renders a model.Value as its four backing columns
// (kind/numeric/bool/str), named with the given prefix, matching how
// CurrentValueMapper persists both RuntimeOverlay.CurrentValue and
// RuntimeOverlay.RawValue through the same encoding.
func valueColumns(prefix string, v model.Value) map[string]string {
	return map[string]string{
		prefix + "_kind":    strconv.Itoa(int(v.Kind)),
		prefix + "_numeric": strconv.FormatFloat(v.Numeric, 'g', -1, 64),
		prefix + "_bool":    boolLiteral(v.Bool),
		prefix + "_str":     quote(v.Str),
	}
}

// valueFromRow reconstructs a model.Value from the columns valueColumns
// wrote, reading them back out of a store.Row.
func valueFromRow(row store.Row, prefix string) model.Value {
	kind := model.ValueKind(asInt64(row[prefix+"_kind"]))
	switch kind {
	case model.ValueKindNumeric:
		return model.NewNumeric(asFloat64(row[prefix+"_numeric"]))
	case model.ValueKindBool:
		return model.NewBool(asBool(row[prefix+"_bool"]))
	case model.ValueKindString:
		return model.NewString(asString(row[prefix+"_str"]))
	default:
		return model.Value{}
	}
}
