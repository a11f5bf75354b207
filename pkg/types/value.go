// Package types defines the runtime value domain shared by the formula
// engine and the device model: floating-point numbers and text strings.
// Booleans are represented as the numbers 1.0 and 0.0, and NaN is the
// designated unknown/invalid sentinel that propagates through arithmetic.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType represents the type of a runtime value.
type ValueType int

const (
	TypeNumber ValueType = iota // float64
	TypeString                  // string
)

// String returns the type name used in diagnostics.
func (t ValueType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// Value represents a computed or stored attribute value.
type Value struct {
	typ       ValueType
	numberVal float64
	stringVal string
}

// NaN is the unknown/invalid sentinel value.
var NaN = Value{typ: TypeNumber, numberVal: math.NaN()}

// NewNumber creates a numeric value.
func NewNumber(v float64) Value {
	return Value{typ: TypeNumber, numberVal: v}
}

// NewString creates a string value.
func NewString(v string) Value {
	return Value{typ: TypeString, stringVal: v}
}

// NewBool creates the numeric representation of a boolean: 1.0 or 0.0.
func NewBool(v bool) Value {
	if v {
		return Value{typ: TypeNumber, numberVal: 1.0}
	}
	return Value{typ: TypeNumber, numberVal: 0.0}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNumber returns true for numeric values, including NaN.
func (v Value) IsNumber() bool {
	return v.typ == TypeNumber
}

// IsString returns true for string values.
func (v Value) IsString() bool {
	return v.typ == TypeString
}

// IsNaN returns true if the value is the numeric NaN sentinel.
func (v Value) IsNaN() bool {
	return v.typ == TypeNumber && math.IsNaN(v.numberVal)
}

// AsNumber returns the numeric value. Strings yield NaN, so arithmetic on a
// mistyped operand degrades to the unknown sentinel instead of failing.
func (v Value) AsNumber() float64 {
	if v.typ != TypeNumber {
		return math.NaN()
	}
	return v.numberVal
}

// AsString returns the string value. Panics if not a string; callers check
// Type first.
func (v Value) AsString() string {
	if v.typ != TypeString {
		panic(fmt.Sprintf("AsString called on %s value", v.typ))
	}
	return v.stringVal
}

// Equal compares two values of the same runtime type. Values of different
// types are never equal, and NaN is not equal to anything, itself included.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNumber:
		return v.numberVal == other.numberVal
	case TypeString:
		return v.stringVal == other.stringVal
	}
	return false
}

// String returns a human-readable representation for debugging and dumps.
func (v Value) String() string {
	switch v.typ {
	case TypeNumber:
		if math.IsNaN(v.numberVal) {
			return "NaN"
		}
		return strconv.FormatFloat(v.numberVal, 'g', -1, 64)
	case TypeString:
		return v.stringVal
	}
	return "<unknown>"
}

// MarshalJSON serializes the value for the API layer. NaN and the infinities
// have no JSON representation and serialize as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.typ {
	case TypeNumber:
		if math.IsNaN(v.numberVal) || math.IsInf(v.numberVal, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.numberVal)
	case TypeString:
		return json.Marshal(v.stringVal)
	}
	return nil, fmt.Errorf("cannot marshal unknown type %d", v.typ)
}

// FromAny converts a decoded JSON or YAML scalar into a Value. Booleans map
// to 1.0/0.0 and integer kinds widen to float64. Unsupported kinds (lists,
// maps, null) report false.
func FromAny(v interface{}) (Value, bool) {
	switch val := v.(type) {
	case bool:
		return NewBool(val), true
	case int:
		return NewNumber(float64(val)), true
	case int64:
		return NewNumber(float64(val)), true
	case float64:
		return NewNumber(val), true
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return NaN, false
		}
		return NewNumber(f), true
	case string:
		return NewString(val), true
	default:
		return NaN, false
	}
}

// ToGoValue converts a Value to a plain Go interface{} suitable for JSON
// marshaling. NaN converts to nil.
func (v Value) ToGoValue() interface{} {
	switch v.typ {
	case TypeNumber:
		if math.IsNaN(v.numberVal) || math.IsInf(v.numberVal, 0) {
			return nil
		}
		return v.numberVal
	case TypeString:
		return v.stringVal
	}
	return nil
}
