// Package wire coerces generic hub values (decoded JSON, or values handed over in-process)
// into the concrete Go types the codecs and module methods need.
package wire

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// ErrType is returned when a value cannot be coerced to the requested type.
var ErrType = errors.New("wire: type mismatch")

// Float64 accepts integer and floating representations and json.Number.
// Strings, booleans and nil are rejected.
func Float64(v interface{}) (float64, error) {
	switch v.(type) {
	case nil, bool, string:
		return 0, fmt.Errorf("%w: %T is not a number", ErrType, v)
	}
	return toFloat64(v)
}

// ParseFloat64 is Float64 that also accepts numeric strings, for call
// arguments typed by hand.
func ParseFloat64(v interface{}) (float64, error) {
	if s, ok := v.(string); ok {
		if strings.TrimSpace(s) == "" {
			return 0, fmt.Errorf("%w: empty string is not a number", ErrType)
		}
		return toFloat64(strings.TrimSpace(s))
	}
	return Float64(v)
}

func toFloat64(v interface{}) (float64, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrType, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", ErrType, v)
	}
	return f, nil
}

// Int accepts any number with no fractional part.
func Int(v interface{}) (int, error) {
	f, err := Float64(v)
	if err != nil {
		return 0, err
	}
	return toInt(v, f)
}

// ParseInt is Int that also accepts numeric strings.
func ParseInt(v interface{}) (int, error) {
	f, err := ParseFloat64(v)
	if err != nil {
		return 0, err
	}
	return toInt(v, f)
}

func toInt(v interface{}, f float64) (int, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrType, v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %v out of range", ErrType, v)
	}
	return int(f), nil
}

// Bool accepts booleans only.
func Bool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %T is not a boolean", ErrType, v)
	}
	return b, nil
}

// ParseBool is Bool that also accepts the strings "true" and "false" in any case.
func ParseBool(v interface{}) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return Bool(v)
}

// String accepts strings only.
func String(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %T is not a string", ErrType, v)
	}
	return s, nil
}

// Sequence returns the elements of any slice or array value.
func Sequence(v interface{}) ([]interface{}, error) {
	switch s := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil is not a sequence", ErrType)
	case []interface{}:
		return s, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T is not a sequence", ErrType, v)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// Record returns v as a string-keyed mapping.
func Record(v interface{}) (map[string]interface{}, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a mapping", ErrType, v)
	}
	return m, nil
}

// Strings returns v as a list of strings. A nil value yields a nil slice.
func Strings(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, err := Sequence(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := String(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
