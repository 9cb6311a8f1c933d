package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindInvalid is the zero Kind and marks an absent value.
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindJSON
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindJSON:
		return "json"
	default:
		return "invalid"
	}
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "double", "float", "number":
		return KindDouble, nil
	case "string":
		return KindString, nil
	case "json", "object":
		return KindJSON, nil
	default:
		return KindInvalid, NewValidationError(fmt.Sprintf("unknown value type %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is an immutable flag value. Exactly one payload is meaningful,
// selected by Kind. There is no conversion between kinds.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	raw  json.RawMessage
}

// Bool creates a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int creates an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Double creates a floating point value.
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }

// String creates a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// JSON creates a JSON value from raw bytes. The input is validated and copied.
func JSON(raw []byte) (Value, error) {
	if !json.Valid(raw) {
		return Value{}, NewValidationError("invalid json value")
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return Value{kind: KindJSON, raw: cp}, nil
}

// MustJSON is like JSON but panics on invalid input. Intended for literals.
func MustJSON(raw string) Value {
	v, err := JSON([]byte(raw))
	if err != nil {
		panic(err)
	}
	return v
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

func (v Value) AsDouble() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.f, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsJSON returns a copy of the raw JSON payload.
func (v Value) AsJSON() (json.RawMessage, bool) {
	if v.kind != KindJSON {
		return nil, false
	}
	cp := make(json.RawMessage, len(v.raw))
	copy(cp, v.raw)
	return cp, true
}

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindString:
		return v.s
	case KindJSON:
		var out any
		if err := json.Unmarshal(v.raw, &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDouble:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindJSON:
		return bytes.Equal(v.raw, o.raw)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindJSON:
		return string(v.raw)
	default:
		return "<invalid>"
	}
}

// FromAny builds a value of the given kind from a decoded document payload.
// Integers must be integral; JSON accepts any encodable value.
func FromAny(kind Kind, in any) (Value, error) {
	switch kind {
	case KindBool:
		b, ok := in.(bool)
		if !ok {
			return Value{}, typeErr(kind, in)
		}
		return Bool(b), nil

	case KindInt:
		switch n := in.(type) {
		case int:
			return Int(int64(n)), nil
		case int64:
			return Int(n), nil
		case float64:
			if n != math.Trunc(n) || math.IsInf(n, 0) {
				return Value{}, typeErr(kind, in)
			}
			return Int(int64(n)), nil
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return Int(i), nil
			}
			f, err := n.Float64()
			if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
				return Value{}, typeErr(kind, in)
			}
			return Int(int64(f)), nil
		default:
			return Value{}, typeErr(kind, in)
		}

	case KindDouble:
		switch n := in.(type) {
		case float64:
			return Double(n), nil
		case int:
			return Double(float64(n)), nil
		case int64:
			return Double(float64(n)), nil
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return Value{}, typeErr(kind, in)
			}
			return Double(f), nil
		default:
			return Value{}, typeErr(kind, in)
		}

	case KindString:
		s, ok := in.(string)
		if !ok {
			return Value{}, typeErr(kind, in)
		}
		return String(s), nil

	case KindJSON:
		raw, err := json.Marshal(in)
		if err != nil {
			return Value{}, NewValidationErrorWithCause("json value not encodable", err)
		}
		return JSON(raw)

	default:
		return Value{}, NewValidationError("cannot build value of invalid kind")
	}
}

func typeErr(kind Kind, in any) error {
	return NewValidationError(fmt.Sprintf("%T is not a valid %s payload", in, kind))
}

type wireValue struct {
	Type  Kind            `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes v as {"type": "...", "value": ...}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return []byte("null"), nil
	}

	var payload []byte
	var err error
	if v.kind == KindJSON {
		payload = v.raw
	} else {
		payload, err = json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(wireValue{Type: v.kind, Value: payload})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}

	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Type == KindJSON {
		parsed, err := JSON(w.Value)
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(w.Value))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return err
	}

	parsed, err := FromAny(w.Type, payload)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
