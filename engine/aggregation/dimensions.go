package aggregation

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/retail-analytics/engine/types"
)

// UnknownLabel is the display value of a dimension that could not be resolved
const UnknownLabel = "Unknown"

// Resolution is the outcome of resolving one dimension on one row: either a
// resolved display value or Unknown. Date resolutions also carry the start of
// their bucket so rows can be ordered chronologically.
type Resolution struct {
	Value    string
	Resolved bool
	At       time.Time
}

// Resolved wraps a known display value
func Resolved(value string) Resolution {
	return Resolution{Value: value, Resolved: true}
}

// Unknown is the fallback resolution
func Unknown() Resolution {
	return Resolution{}
}

// String returns the display value, substituting UnknownLabel
func (r Resolution) String() string {
	if !r.Resolved {
		return UnknownLabel
	}
	return r.Value
}

// Lookups maps store and location ids to display names. It is supplied fully
// populated by the caller.
type Lookups struct {
	Stores    map[string]string
	Locations map[string]string
}

// Resolver turns a row into display values for the requested dimensions
type Resolver struct {
	lookups     Lookups
	granularity types.Granularity
}

// NewResolver creates a resolver bound to a lookup set and a date granularity
func NewResolver(lookups Lookups, granularity types.Granularity) *Resolver {
	if granularity == "" {
		granularity = types.GranularityDay
	}
	return &Resolver{lookups: lookups, granularity: granularity}
}

// Resolve resolves dimension d on row. Only the date dimension can fail.
func (r *Resolver) Resolve(d types.Dimension, row types.FactRow) (Resolution, error) {
	switch d {
	case types.DimensionDate:
		t, err := rowDate(row)
		if err != nil {
			return Resolution{}, err
		}
		label, start := Bucket(t, r.granularity)
		return Resolution{Value: label, Resolved: true, At: start}, nil
	case types.DimensionLocation:
		return lookupOrName(r.lookups.Locations, row, "location_id", "location_name"), nil
	case types.DimensionStore:
		return lookupOrName(r.lookups.Stores, row, "store_id", "store_name"), nil
	case types.DimensionChannel:
		if fieldString(row["pickup_location_id"]) != "" {
			return Resolved("In-Store"), nil
		}
		return Resolved("Online"), nil
	case types.DimensionSupplier:
		return direct(row, "supplier_name"), nil
	case types.DimensionPOStatus:
		return direct(row, "status"), nil
	default:
		return direct(row, string(d)), nil
	}
}

func lookupOrName(names map[string]string, row types.FactRow, idField, nameField string) Resolution {
	if id := fieldString(row[idField]); id != "" {
		if name := names[id]; name != "" {
			return Resolved(name)
		}
	}
	return direct(row, nameField)
}

func direct(row types.FactRow, field string) Resolution {
	if s := fieldString(row[field]); s != "" {
		return Resolved(s)
	}
	return Unknown()
}

// DistinctValues returns the distinct non-empty values of field in first-seen order
func DistinctValues(rows []types.FactRow, field string) []string {
	values := lo.FilterMap(rows, func(row types.FactRow, _ int) (string, bool) {
		s := fieldString(row[field])
		return s, s != ""
	})
	return lo.Uniq(values)
}

// fieldString renders a decoded field as text. Zero numbers, false and empty
// values render as "" so they fall back like missing fields.
func fieldString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case json.Number:
		if f, err := s.Float64(); err == nil && f == 0 {
			return ""
		}
		return s.String()
	case float64:
		if s == 0 {
			return ""
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		if s == 0 {
			return ""
		}
		return strconv.Itoa(s)
	case int64:
		if s == 0 {
			return ""
		}
		return strconv.FormatInt(s, 10)
	case bool:
		if !s {
			return ""
		}
		return "true"
	case time.Time:
		if s.IsZero() {
			return ""
		}
		return s.UTC().Format(time.RFC3339)
	}
	return ""
}
