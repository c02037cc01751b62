package location

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Location is a flat key-value mapping describing a logical position on a
// page. Values are restricted to strings, numbers and booleans. Locations are
// never mutated in place; operations return new maps so snapshots held by
// timer callbacks stay valid.
type Location map[string]any

// Reserved keys used by the live cursor channel. The marker key identifies a
// presence record as belonging to live cursors; the remaining keys carry the
// transient cursor data encoded into a sub-location of the base location.
const (
	MarkerKey     = "__live_cursors"
	CursorXKey    = "__cursor_x"
	CursorYKey    = "__cursor_y"
	CursorClick   = "__cursor_click"
	AnnotationKey = "__cursor_annotation"
)

// scalarEqual compares two location values, treating all numeric types as
// interchangeable.
func scalarEqual(a, b any) bool {
	an, aok := toFloat(a)
	bn, bok := toFloat(b)
	if aok && bok {
		return an == bn
	}
	if aok != bok {
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Equal reports whether two locations have identical key sets and values,
// independent of insertion order. Either side may be nil.
func (l Location) Equal(other Location) bool {
	if len(l) != len(other) {
		return false
	}
	for k, v := range l {
		ov, ok := other[k]
		if !ok || !scalarEqual(v, ov) {
			return false
		}
	}
	return true
}

// Matches reports whether every key/value pair of matcher is present in l.
// This is the partial-match relation: a sub-location matches its base.
func (l Location) Matches(matcher Location) bool {
	for k, v := range matcher {
		lv, ok := l[k]
		if !ok || !scalarEqual(v, lv) {
			return false
		}
	}
	return true
}

// Merge returns a new location containing all keys of l overlaid with all
// keys of base. Base wins key conflicts, so merging a sub-location over its
// base can never corrupt the channel marker.
func (l Location) Merge(base Location) Location {
	out := make(Location, len(l)+len(base))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of l.
func (l Location) Clone() Location {
	if l == nil {
		return nil
	}
	out := make(Location, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Canonical returns a stable JSON encoding of l with keys sorted, suitable
// for use as a map key (e.g. an exclusivity-region key).
func (l Location) Canonical() string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(l[k])
		b.Write(kj)
		b.WriteByte(':')
		b.Write(vj)
	}
	b.WriteByte('}')
	return b.String()
}

// Compare orders locations by number of keys, then by canonical JSON.
func Compare(a, b Location) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a.Canonical(), b.Canonical())
}

// Normalize validates that every value is a scalar (string, bool or number)
// and coerces numeric values to float64. Nested maps or arrays, as produced
// by unchecked JSON input, are rejected.
func (l Location) Normalize() (Location, error) {
	out := make(Location, len(l))
	for k, v := range l {
		switch val := v.(type) {
		case string, bool, float64:
			out[k] = val
		case float32, int, int64:
			f, _ := toFloat(val)
			out[k] = f
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("location key %q: invalid number: %w", k, err)
			}
			out[k] = f
		default:
			return nil, fmt.Errorf("location key %q: value must be a string, number or boolean", k)
		}
	}
	return out, nil
}

// WithMarker returns the base location for the live cursor channel: the input
// location plus the channel marker. The marker overrides any identically
// named key coming from caller data.
func WithMarker(l Location) Location {
	base := l.Clone()
	if base == nil {
		base = Location{}
	}
	base[MarkerKey] = true
	return base
}
