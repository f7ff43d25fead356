// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind identifies the category of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String returns the lowercase name of the kind, matching the type names
// used in node shape declarations.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a closed JSON-like value: null, string, number, bool, list, or map.
// It is the only value type that crosses package boundaries: store contents,
// resolved node parameters, workflow inputs and outputs, and trace payloads
// are all Values. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	dict map[string]Value
}

// Null is the null Value.
var Null = Value{}

// NewString returns a string Value.
func NewString(s string) Value { return Value{kind: KindString, str: s} }

// NewNumber returns a number Value.
func NewNumber(f float64) Value { return Value{kind: KindNumber, num: f} }

// NewInt returns a number Value holding an integer.
func NewInt(i int) Value { return Value{kind: KindNumber, num: float64(i)} }

// NewBool returns a bool Value.
func NewBool(b bool) Value { return Value{kind: KindBool, b: b} }

// NewList returns a list Value over the given items. The slice is not copied.
func NewList(items ...Value) Value { return Value{kind: KindList, list: items} }

// NewMap returns a map Value over the given fields. The map is not copied.
func NewMap(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, dict: fields}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload and whether the value is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload and whether the value is a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsInt returns the numeric payload truncated to int and whether the value
// is a number.
func (v Value) AsInt() (int, bool) { return int(v.num), v.kind == KindNumber }

// AsBool returns the bool payload and whether the value is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsList returns the list payload and whether the value is a list.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the map payload and whether the value is a map.
func (v Value) AsMap() (map[string]Value, bool) { return v.dict, v.kind == KindMap }

// Field returns the named field of a map Value.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != KindMap {
		return Null, false
	}
	f, ok := v.dict[key]
	return f, ok
}

// Index returns the i-th element of a list Value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Null, false
	}
	return v.list[i], true
}

// Len returns the number of elements of a list or map Value, and 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.dict)
	default:
		return 0
	}
}

// Text renders the value for interpolation into a string template. Strings
// render verbatim, numbers and bools in their canonical JSON form, null as
// "null", and lists and maps as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(raw)
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.dict) != len(other.dict) {
			return false
		}
		for k, f := range v.dict {
			of, ok := other.dict[k]
			if !ok || !f.Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy. Lists and maps are copied recursively so the
// clone can be mutated without aliasing the original.
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.Clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		fields := make(map[string]Value, len(v.dict))
		for k, f := range v.dict {
			fields[k] = f.Clone()
		}
		return Value{kind: KindMap, dict: fields}
	default:
		return v
	}
}

// Visit walks the value depth-first, calling fn for the value itself and
// every nested element. Paths are relative to the root in dot and bracket
// notation, for example "items[2].name"; the root has path "". Returning
// false from fn stops the walk. Visit reports whether the walk ran to
// completion. Map fields are visited in sorted key order so walks are
// deterministic.
func (v Value) Visit(fn func(path string, v Value) bool) bool {
	return v.visit("", fn)
}

func (v Value) visit(path string, fn func(path string, v Value) bool) bool {
	if !fn(path, v) {
		return false
	}
	switch v.kind {
	case KindList:
		for i, item := range v.list {
			if !item.visit(fmt.Sprintf("%s[%d]", path, i), fn) {
				return false
			}
		}
	case KindMap:
		keys := make([]string, 0, len(v.dict))
		for k := range v.dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			if !v.dict[k].visit(child, fn) {
				return false
			}
		}
	}
	return true
}

// FromAny converts a decoded JSON or YAML value into a Value. Supported
// inputs are nil, booleans, strings, byte slices, all integer and float
// widths, json.Number, []any, map[string]any, Value itself, and the typed
// []Value and map[string]Value forms.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case string:
		return NewString(x), nil
	case []byte:
		return NewString(string(x)), nil
	case bool:
		return NewBool(x), nil
	case float64:
		return NewNumber(x), nil
	case float32:
		return NewNumber(float64(x)), nil
	case int:
		return NewNumber(float64(x)), nil
	case int8:
		return NewNumber(float64(x)), nil
	case int16:
		return NewNumber(float64(x)), nil
	case int32:
		return NewNumber(float64(x)), nil
	case int64:
		return NewNumber(float64(x)), nil
	case uint:
		return NewNumber(float64(x)), nil
	case uint8:
		return NewNumber(float64(x)), nil
	case uint16:
		return NewNumber(float64(x)), nil
	case uint32:
		return NewNumber(float64(x)), nil
	case uint64:
		return NewNumber(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Null, fmt.Errorf("convert number %q: %w", x.String(), err)
		}
		return NewNumber(f), nil
	case []Value:
		return NewList(x...), nil
	case map[string]Value:
		return NewMap(x), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Null, fmt.Errorf("list element %d: %w", i, err)
			}
			items[i] = v
		}
		return NewList(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Null, fmt.Errorf("field %q: %w", k, err)
			}
			fields[k] = v
		}
		return NewMap(fields), nil
	default:
		return Null, fmt.Errorf("unsupported value type %T", raw)
	}
}

// FromAnyMap converts a decoded JSON or YAML object into a Value map.
func FromAnyMap(raw map[string]any) (map[string]Value, error) {
	out := make(map[string]Value, len(raw))
	for k, item := range raw {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// MustValue converts raw with FromAny and panics on error. Intended for
// literals in tests and examples.
func MustValue(raw any) Value {
	v, err := FromAny(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Interface converts the Value back into the plain Go form produced by
// decoding JSON: nil, string, float64, bool, []any, or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Interface()
		}
		return items
	case KindMap:
		fields := make(map[string]any, len(v.dict))
		for k, f := range v.dict {
			fields[k] = f.Interface()
		}
		return fields
	}
	return nil
}

// MarshalJSON encodes the value as plain JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes plain JSON into the value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// String implements fmt.Stringer for logging. Strings are quoted so a null
// value and the literal "null" remain distinguishable.
func (v Value) String() string {
	if v.kind == KindString {
		return strconv.Quote(v.str)
	}
	return v.Text()
}

// StringsIn collects every string payload in the value tree, depth-first.
// Template detection and scanning are built on this.
func (v Value) StringsIn() []string {
	var out []string
	v.Visit(func(_ string, val Value) bool {
		if s, ok := val.AsString(); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

// ParseKind maps a shape type name to a Kind. The name "any" is not a Kind;
// callers treat it as a wildcard before calling ParseKind.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "null":
		return KindNull, nil
	case "string", "str":
		return KindString, nil
	case "number", "int", "float":
		return KindNumber, nil
	case "bool", "boolean":
		return KindBool, nil
	case "list", "array":
		return KindList, nil
	case "map", "object", "dict":
		return KindMap, nil
	default:
		return KindNull, fmt.Errorf("unknown type name %q", name)
	}
}
