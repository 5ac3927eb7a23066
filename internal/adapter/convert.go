package adapter

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// convertValue converts a decoded client value to target. JSON numbers may
// arrive as float64 or json.Number, timestamps as RFC 3339 strings. With
// parseStrings set, strings are also parsed into numbers and booleans, which
// is what query string filters need.
func convertValue(value any, target reflect.Type, parseStrings bool) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}

	if target.Kind() == reflect.Ptr {
		elem, err := convertValue(value, target.Elem(), parseStrings)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	if target == timeType {
		s, ok := value.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: expected RFC 3339 timestamp, got %T", ErrInvalidValue, value)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return reflect.ValueOf(t), nil
	}

	switch target.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt(value, parseStrings)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(target).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%w: %d overflows %s", ErrInvalidValue, n, target)
		}
		out.SetInt(n)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt(value, parseStrings)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(target).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("%w: %d overflows %s", ErrInvalidValue, n, target)
		}
		out.SetUint(uint64(n))
		return out, nil

	case reflect.Float32, reflect.Float64:
		f, err := toFloat(value, parseStrings)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(target).Elem()
		out.SetFloat(f)
		return out, nil

	case reflect.Bool:
		b, ok := value.(bool)
		if !ok && parseStrings {
			if s, isString := value.(string); isString {
				parsed, err := strconv.ParseBool(s)
				if err != nil {
					return reflect.Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
				}
				b, ok = parsed, true
			}
		}
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: expected boolean, got %T", ErrInvalidValue, value)
		}
		return reflect.ValueOf(b).Convert(target), nil

	case reflect.String:
		if rv.Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("%w: expected string, got %T", ErrInvalidValue, value)
		}
		return rv.Convert(target), nil
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot convert %T to %s", ErrInvalidValue, value, target)
}

func toInt(value any, parseStrings bool) (int64, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidValue, v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v overflows int64", ErrInvalidValue, v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return n, nil
	case string:
		if parseStrings {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return n, nil
		}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, u)
		}
		return int64(u), nil
	}
	return 0, fmt.Errorf("%w: expected integer, got %T", ErrInvalidValue, value)
}

func toFloat(value any, parseStrings bool) (float64, error) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	case string:
		if parseStrings {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			return f, nil
		}
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("%w: expected number, got %T", ErrInvalidValue, value)
}
