// Package schema infers the structural type of request parameters.
package schema

import "fmt"

// Kind is the semantic type assigned to a parameter value.
type Kind int

const (
	KindObject Kind = iota
	KindBoolean
	KindInt
	KindFloat
	KindString
	KindArray
)

// Kinds lists every kind in classification priority order.
var Kinds = []Kind{KindObject, KindBoolean, KindInt, KindFloat, KindString, KindArray}

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindBoolean:
		return "boolean"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a wire name back into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
