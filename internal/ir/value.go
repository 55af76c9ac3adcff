package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface for edit record argument values.
// Only IRString, IRInt, IRBool, IRArray and IRObject implement it.
// There is no float type: float arguments (keyframe values) travel as
// strings so records hash identically on every platform.
type IRValue interface {
	irValue()
}

// IRString is a string value.
type IRString string

func (IRString) irValue() {}

// IRInt is an integer value. Durations are stored as nanoseconds.
type IRInt int64

func (IRInt) irValue() {}

// IRBool is a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray is an ordered list of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject maps string keys to values. Use SortedKeys for deterministic
// iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRDuration encodes a duration as nanoseconds.
func IRDuration(d time.Duration) IRInt {
	return IRInt(int64(d))
}

// IRFloat encodes a float as its shortest round-trip string form.
func IRFloat(f float64) IRString {
	return IRString(strconv.FormatFloat(f, 'g', -1, 64))
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 orders strings by UTF-16 code units. Go's native
// string comparison uses UTF-8 bytes, which differs for supplementary
// plane characters.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Has reports whether key is present.
func (obj IRObject) Has(key string) bool {
	_, ok := obj[key]
	return ok
}

// GetString returns a required string argument.
func (obj IRObject) GetString(key string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(IRString)
	if !ok {
		return "", fmt.Errorf("argument %q: expected string, got %T", key, v)
	}
	return string(s), nil
}

// OptString returns a string argument or def when absent.
func (obj IRObject) OptString(key, def string) (string, error) {
	if !obj.Has(key) {
		return def, nil
	}
	return obj.GetString(key)
}

// GetInt returns a required integer argument.
func (obj IRObject) GetInt(key string) (int64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	n, ok := v.(IRInt)
	if !ok {
		return 0, fmt.Errorf("argument %q: expected int, got %T", key, v)
	}
	return int64(n), nil
}

// GetBool returns a required boolean argument.
func (obj IRObject) GetBool(key string) (bool, error) {
	v, ok := obj[key]
	if !ok {
		return false, fmt.Errorf("missing argument %q", key)
	}
	b, ok := v.(IRBool)
	if !ok {
		return false, fmt.Errorf("argument %q: expected bool, got %T", key, v)
	}
	return bool(b), nil
}

// GetDuration returns a duration argument. Integers are nanoseconds;
// strings are parsed with time.ParseDuration ("4s", "250ms").
func (obj IRObject) GetDuration(key string) (time.Duration, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch val := v.(type) {
	case IRInt:
		return time.Duration(val), nil
	case IRString:
		d, err := time.ParseDuration(string(val))
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("argument %q: expected duration, got %T", key, v)
	}
}

// OptDuration returns a duration argument or def when absent.
func (obj IRObject) OptDuration(key string, def time.Duration) (time.Duration, error) {
	if !obj.Has(key) {
		return def, nil
	}
	return obj.GetDuration(key)
}

// GetFloat returns a float argument stored as a string or an integer.
func (obj IRObject) GetFloat(key string) (float64, error) {
	v, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch val := v.(type) {
	case IRInt:
		return float64(val), nil
	case IRString:
		f, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("argument %q: expected number, got %T", key, v)
	}
}

// GetStrings returns a list-of-strings argument.
func (obj IRObject) GetStrings(key string) ([]string, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	arr, ok := v.(IRArray)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected array, got %T", key, v)
	}
	out := make([]string, len(arr))
	for i, elem := range arr {
		s, ok := elem.(IRString)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d]: expected string, got %T", key, i, elem)
		}
		out[i] = string(s)
	}
	return out, nil
}

// GetObjects returns a list-of-objects argument.
func (obj IRObject) GetObjects(key string) ([]IRObject, error) {
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	arr, ok := v.(IRArray)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected array, got %T", key, v)
	}
	out := make([]IRObject, len(arr))
	for i, elem := range arr {
		o, ok := elem.(IRObject)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d]: expected object, got %T", key, i, elem)
		}
		out[i] = o
	}
	return out, nil
}

// StringArray builds an IRArray of strings.
func StringArray[S ~string](vals []S) IRArray {
	arr := make(IRArray, len(vals))
	for i, v := range vals {
		arr[i] = IRString(v)
	}
	return arr
}

// MarshalJSON writes keys in RFC 8785 order. This is not the canonical
// encoding used for digests; use MarshalCanonical for that.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals any IRValue to JSON.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRObject:
		return val.MarshalJSON()
	case IRArray:
		parts := make([][]byte, len(val))
		for i, elem := range val {
			b, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			parts[i] = b
		}
		out := append([]byte{'['}, bytes.Join(parts, []byte{','})...)
		return append(out, ']'), nil
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalJSON decodes an object, rejecting floats and null.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// UnmarshalIRValue decodes JSON into an IRValue, rejecting floats and null.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON or YAML data into an IRValue.
// Integral float64 values (YAML and JSON decoders produce them) become
// IRInt; fractional floats and null are rejected.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in edit arguments")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in edit arguments: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(n), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are forbidden in edit arguments: %v (quote it as a string)", val)
		}
		return IRInt(int64(val)), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromMap converts a decoded map into an IRObject.
func ObjectFromMap(m map[string]any) (IRObject, error) {
	if m == nil {
		return IRObject{}, nil
	}
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(IRObject), nil
}
