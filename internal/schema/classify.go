package schema

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	scanerrors "github.com/PentesterFlow/slowscope/internal/errors"
)

// MaxSafeInteger is the largest integer a float64 represents exactly along
// with all of its neighbours (2^53 - 1).
const MaxSafeInteger = 1<<53 - 1

// MinSafeInteger is the negative counterpart of MaxSafeInteger.
const MinSafeInteger = -MaxSafeInteger

var (
	booleanText   = regexp.MustCompile(`^(true|false)$`)
	numericPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)
)

// Classify maps a single value to its Kind. Rules apply in a fixed priority:
// structural object, textual value (boolean, int, float, string), number,
// boolean, array. Values outside that domain, including nil, produce an
// UnclassifiableInput error.
func Classify(value any) (Kind, error) {
	switch v := value.(type) {
	case nil:
		return 0, scanerrors.NewUnclassifiableInput("", value)
	case map[string]any:
		return KindObject, nil
	case string:
		return classifyText(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return KindFloat, nil
		}
		return classifyNumber(f), nil
	case float64:
		return classifyNumber(v), nil
	case bool:
		return KindBoolean, nil
	case []any:
		return KindArray, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindObject, nil
		}
	case reflect.String:
		return classifyText(rv.String()), nil
	case reflect.Float32, reflect.Float64:
		return classifyNumber(rv.Float()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classifyNumber(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return classifyNumber(float64(rv.Uint())), nil
	case reflect.Bool:
		return KindBoolean, nil
	case reflect.Slice, reflect.Array:
		return KindArray, nil
	}

	return 0, scanerrors.NewUnclassifiableInput("", value)
}

// classifyText re-infers the intended type of a transported string.
func classifyText(s string) Kind {
	if booleanText.MatchString(s) {
		return KindBoolean
	}
	f, ok := parseFloatPrefix(s)
	if !ok {
		return KindString
	}
	if IsSafeInteger(f) {
		return KindInt
	}
	if f != 0 {
		return KindFloat
	}
	return KindString
}

func classifyNumber(f float64) Kind {
	if IsSafeInteger(f) {
		return KindInt
	}
	return KindFloat
}

// IsSafeInteger reports whether f is an integer within the safe range.
func IsSafeInteger(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f) && f >= MinSafeInteger && f <= MaxSafeInteger
}

// isNumberSpace reports whether r may precede a numeric literal: the
// space separators plus tab, vertical tab, form feed, BOM and the line
// terminators. U+0085 is not one of them.
func isNumberSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\uFEFF', '\u2028', '\u2029':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

// parseFloatPrefix reads the longest decimal literal at the start of s after
// leading whitespace, so "42px" reads as 42 and "abc" does not parse.
func parseFloatPrefix(s string) (float64, bool) {
	s = strings.TrimLeftFunc(s, isNumberSpace)
	lit := numericPrefix.FindString(s)
	if lit == "" {
		return 0, false
	}

	sign := 1.0
	body := lit
	switch body[0] {
	case '-':
		sign = -1
		body = body[1:]
	case '+':
		body = body[1:]
	}
	if body == "Infinity" {
		return math.Inf(int(sign)), true
	}

	f, err := strconv.ParseFloat(body, 64)
	if err != nil {
		// ErrRange still yields ±Inf or 0, which is the value we want
		if numErr, ok := err.(*strconv.NumError); !ok || numErr.Err != strconv.ErrRange {
			return 0, false
		}
	}
	return sign * f, true
}
