// Package payload holds the parameter bags exchanged with discovered endpoints.
package payload

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Payload is a decoded parameter bag: query parameters or a JSON object body.
// Values are string, float64, bool, []any, map[string]any or nil.
type Payload map[string]any

// Keys returns the top-level keys in sorted order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// With returns a copy of the payload with field overridden by value.
// The receiver is never modified.
func (p Payload) With(field string, value any) Payload {
	out := p.Clone()
	out[field] = value
	return out
}

// Key returns a canonical identity for the payload. Two payloads with the
// same key are considered the same probe input.
func (p Payload) Key() string {
	// encoding/json sorts map keys, so the output is stable
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(data)
}

// Query encodes the payload as URL query values.
// Arrays become repeated keys, objects are JSON encoded.
func (p Payload) Query() url.Values {
	values := make(url.Values, len(p))
	for _, k := range p.Keys() {
		switch v := p[k].(type) {
		case []any:
			if len(v) == 0 {
				values[k] = []string{}
				continue
			}
			for _, item := range v {
				values.Add(k, FormatValue(item))
			}
		default:
			values.Set(k, FormatValue(v))
		}
	}
	return values
}

// Encode returns the payload as a URL-encoded query string.
func (p Payload) Encode() string {
	return p.Query().Encode()
}

// FormatValue renders a single value the way it travels in a query string.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return FormatNumber(t)
	case float32:
		return FormatNumber(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

// FormatNumber formats a float in shortest round-trip form, switching to
// exponent notation for very large and very small magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FromQuery converts parsed query values into a payload. Keys with a single
// value map to a string, repeated keys map to an array of strings.
func FromQuery(values url.Values) Payload {
	p := make(Payload, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			p[k] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		p[k] = items
	}
	return p
}

// IsReadMethod reports whether method carries its payload in the query
// string rather than a body.
func IsReadMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD":
		return true
	}
	return false
}
