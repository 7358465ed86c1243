package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// VALUE - Tagged union for loosely-typed parameter values
// =============================================================================

// Kind identifies which variant of the Value union is populated.
type Kind uint8

const (
	KindMissing Kind = iota // zero Value: key absent
	KindNull
	KindNumber
	KindBool
	KindString
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one parameter value: number, boolean, string, nested object or
// list. The zero Value means "absent" and is what a Params lookup of an
// unknown key yields.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
	obj  Params
	list []Value
}

func Null() Value               { return Value{kind: KindNull} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func Object(p Params) Value     { return Value{kind: KindObject, obj: p} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsMissing() bool  { return v.kind == KindMissing }
func (v Value) Float() float64   { return v.num }
func (v Value) Boolean() bool    { return v.b }
func (v Value) Text() string     { return v.str }
func (v Value) Fields() Params   { return v.obj }
func (v Value) Items() []Value   { return v.list }

// Number coerces the value for use in a formula scope. Strings are parsed as
// decimals accepting either '.' or ',' as separator; booleans map to 1/0.
// ok is false when no numeric reading exists.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		return ParseDecimal(v.str)
	default:
		return 0, false
	}
}

// ParseDecimal parses "12.5" and "12,5" alike. Thousands separators are not
// supported: "1,234.5" is rejected.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			return 0, false
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FromAny converts decoded JSON (or hand-built Go literals) into a Value.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case string:
		return String(t)
	case map[string]any:
		return Object(ParamsFrom(t))
	case Params:
		return Object(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = FromAny(e)
		}
		return List(items...)
	default:
		return String(fmt.Sprint(t))
	}
}

// Any converts back to plain Go values (map[string]any, []any, float64...).
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.str
	case KindObject:
		return v.obj.Any()
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Any()
		}
		return out
	default:
		return nil
	}
}

// =============================================================================
// JSON
// =============================================================================

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindMissing, KindNull:
		return []byte("null"), nil
	case KindNumber:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindString:
		return json.Marshal(v.str)
	case KindObject:
		return json.Marshal(v.obj)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// =============================================================================
// PARAMS - Named parameter bag
// =============================================================================

// Params maps parameter names to values. Keys starting with '_' are meta keys.
type Params map[string]Value

// ParamsFrom builds Params from a decoded JSON object.
func ParamsFrom(m map[string]any) Params {
	if m == nil {
		return nil
	}
	p := make(Params, len(m))
	for k, x := range m {
		p[k] = FromAny(x)
	}
	return p
}

// Any converts the bag back to a plain map.
func (p Params) Any() map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Any()
	}
	return out
}

// Get returns the value for key, or the missing Value.
func (p Params) Get(key string) Value {
	if p == nil {
		return Value{}
	}
	return p[key]
}

// Keys returns the keys in lexicographic order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
