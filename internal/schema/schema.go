package schema

import (
	"errors"
	"reflect"
	"sort"

	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
)

// Schema maps top-level parameter names to their inferred kind.
type Schema map[string]Kind

// Fields returns the field names in sorted order.
func (s Schema) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Extract classifies every top-level value of payload. Nested objects and
// arrays are classified as a whole. A payload that is absent or not a
// key-value object yields an empty schema.
//
// A value the classifier rejects fails the whole extraction; callers treat
// that endpoint as having nothing to fuzz.
func Extract(payload any) (Schema, error) {
	fields, ok := asObject(payload)
	if !ok {
		return Schema{}, nil
	}

	s := make(Schema, len(fields))
	for name, value := range fields {
		kind, err := Classify(value)
		if err != nil {
			var scanErr *scanerrors.ScanError
			if errors.As(err, &scanErr) {
				return nil, scanerrors.NewUnclassifiableInput(name, value)
			}
			return nil, err
		}
		s[name] = kind
	}
	return s, nil
}

func asObject(payload any) (map[string]any, bool) {
	if payload == nil {
		return nil, false
	}
	if m, ok := payload.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(payload)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
