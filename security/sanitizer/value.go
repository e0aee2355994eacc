package sanitizer

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Value is a redactable payload: Null, String, Number, Bool, List or Map.
// The set is closed; Redactor dispatches on it structurally.
type Value interface {
	isValue()
}

// Null is the absent value.
type Null struct{}

// String is a text value.
type String string

// Number is any numeric value.
type Number float64

// Bool is a boolean value.
type Bool bool

// List is an ordered sequence of values.
type List []Value

// Map is a keyed collection of values.
type Map map[string]Value

func (Null) isValue()   {}
func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Map) isValue()    {}

// MarshalJSON encodes Null as JSON null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// maxConvertDepth bounds FromAny on self-referencing maps and slices.
const maxConvertDepth = 32

// FromAny converts an arbitrary Go value into a Value. Structs and other
// composite types go through their JSON representation.
func FromAny(v any) Value {
	return fromAny(v, 0)
}

func fromAny(v any, depth int) Value {
	if depth > maxConvertDepth {
		return String(MaxDepthMarker)
	}

	switch t := v.(type) {
	case nil:
		return Null{}
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Number(t)
	case int8:
		return Number(t)
	case int16:
		return Number(t)
	case int32:
		return Number(t)
	case int64:
		return Number(t)
	case uint:
		return Number(t)
	case uint8:
		return Number(t)
	case uint16:
		return Number(t)
	case uint32:
		return Number(t)
	case uint64:
		return Number(t)
	case float32:
		return Number(t)
	case float64:
		return Number(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case error:
		return String(t.Error())
	case []any:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = fromAny(e, depth+1)
		}
		return out
	case []string:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return out
	case map[string]any:
		out := make(Map, len(t))
		for k, e := range t {
			out[k] = fromAny(e, depth+1)
		}
		return out
	case map[string]string:
		out := make(Map, len(t))
		for k, e := range t {
			out[k] = String(e)
		}
		return out
	case fmt.Stringer:
		return String(t.String())
	}

	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return Null{}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return String(UnserializableMarker)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return String(UnserializableMarker)
	}
	return fromAny(generic, depth+1)
}

// ToAny converts a Value back into plain Go values (map[string]any, []any,
// string, float64, bool, nil).
func ToAny(v Value) any {
	switch t := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case List:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToAny(e)
		}
		return out
	}
	return nil
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch t := v.(type) {
	case List:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case Map:
		out := make(Map, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	}
	return v
}
