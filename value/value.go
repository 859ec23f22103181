package value

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/c360/eventflow/errors"
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Kinds are declared in ordering rank: Compare sorts values of different
// kinds by this order.
const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindBytes
	KindTimestamp
	KindArray
	KindMap
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a recursive tagged value. The zero Value is Null.
//
// Scalars are copied with the struct. Arrays and maps are held by
// reference, so a plain assignment aliases the container; use Clone when
// the copy must be independent.
type Value struct {
	kind  Kind
	num   uint64 // boolean, integer, float bits
	bytes []byte
	ts    time.Time
	arr   []Value
	obj   *Map
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBoolean}
	if b {
		v.num = 1
	}
	return v
}

// Integer returns a 64-bit signed integer value.
func Integer(i int64) Value {
	return Value{kind: KindInteger, num: uint64(i)}
}

// Float returns a float value. NaN and ±Inf are rejected with
// ErrNonFiniteFloat; this is the only policy for non-finite floats and the
// codecs apply it as well.
func Float(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, errors.WrapInvalid(errors.ErrNonFiniteFloat, "Value", "Float",
			fmt.Sprintf("construct float from %v", f))
	}
	return Value{kind: KindFloat, num: math.Float64bits(f)}, nil
}

// MustFloat is Float for constants known to be finite. It panics otherwise.
func MustFloat(f float64) Value {
	v, err := Float(f)
	if err != nil {
		panic(err)
	}
	return v
}

// Bytes returns a bytes value. The slice is not copied.
func Bytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{kind: KindBytes, bytes: b}
}

// String returns a bytes value holding s.
func String(s string) Value {
	return Value{kind: KindBytes, bytes: []byte(s)}
}

// Timestamp returns a timestamp value normalized to UTC.
func Timestamp(t time.Time) Value {
	return Value{kind: KindTimestamp, ts: t.UTC()}
}

// Array returns an array value holding items. The slice is not copied.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// FromMap wraps m as a map value. A nil map becomes an empty one.
func FromMap(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, obj: m}
}

// EmptyMap returns a new, empty map value.
func EmptyMap() Value {
	return FromMap(NewMap())
}

// Object builds a map value from a Go map. Keys are inserted in sorted
// order so the result is deterministic.
func Object(fields map[string]Value) Value {
	m := NewMap()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Set(k, fields[k])
	}
	return FromMap(m)
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.num == 1, true
}

// AsInteger returns the integer payload.
func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return int64(v.num), true
}

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return math.Float64frombits(v.num), true
}

// AsNumber returns integer or float payloads widened to float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(int64(v.num)), true
	case KindFloat:
		return math.Float64frombits(v.num), true
	default:
		return 0, false
	}
}

// AsBytes returns the bytes payload without copying.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

// AsString returns the bytes payload as a string. Invalid UTF-8 is kept
// as-is.
func (v Value) AsString() (string, bool) {
	if v.kind != KindBytes {
		return "", false
	}
	return string(v.bytes), true
}

// AsTimestamp returns the timestamp payload.
func (v Value) AsTimestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.ts, true
}

// AsArray returns the array items. The slice is shared with v.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsMap returns the map payload. The map is shared with v.
func (v Value) AsMap() (*Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.obj, true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		b := make([]byte, len(v.bytes))
		copy(b, v.bytes)
		return Value{kind: KindBytes, bytes: b}
	case KindArray:
		items := make([]Value, len(v.arr))
		for i := range v.arr {
			items[i] = v.arr[i].Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindMap:
		return Value{kind: KindMap, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Equal reports structural, variant-exact equality: Integer(1) is not
// equal to Float(1.0), and map equality ignores insertion order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBoolean, KindInteger:
		return v.num == o.num
	case KindFloat:
		return math.Float64frombits(v.num) == math.Float64frombits(o.num)
	case KindBytes:
		return bytes.Equal(v.bytes, o.bytes)
	case KindTimestamp:
		return v.ts.Equal(o.ts)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.obj.Equal(o.obj)
	default:
		return false
	}
}

// Compare returns -1, 0 or +1 ordering a before, equal to, or after b.
// Values of different kinds order by kind rank; maps compare key by key in
// sorted key order. Compare(a, b) == 0 exactly when a.Equal(b).
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmpOrdered(a.kind, b.kind)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBoolean:
		return cmpOrdered(a.num, b.num)
	case KindInteger:
		return cmpOrdered(int64(a.num), int64(b.num))
	case KindFloat:
		return cmpOrdered(math.Float64frombits(a.num), math.Float64frombits(b.num))
	case KindBytes:
		return bytes.Compare(a.bytes, b.bytes)
	case KindTimestamp:
		return a.ts.Compare(b.ts)
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpOrdered(len(a.arr), len(b.arr))
	case KindMap:
		return compareMaps(a.obj, b.obj)
	default:
		return 0
	}
}

func compareMaps(a, b *Map) int {
	ak, bk := a.SortedKeys(), b.SortedKeys()
	for i := 0; i < len(ak) && i < len(bk); i++ {
		if ak[i] != bk[i] {
			if ak[i] < bk[i] {
				return -1
			}
			return 1
		}
		av, _ := a.Get(ak[i])
		bv, _ := b.Get(bk[i])
		if c := Compare(*av, *bv); c != 0 {
			return c
		}
	}
	return cmpOrdered(len(ak), len(bk))
}

type ordered interface {
	~uint8 | ~int | ~int64 | ~uint64 | ~float64
}

func cmpOrdered[T ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders v for logs and test failures. It is not a codec.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBoolean:
		if v.num == 1 {
			return "true"
		}
		return "false"
	case KindInteger:
		return fmt.Sprintf("%d", int64(v.num))
	case KindFloat:
		return fmt.Sprintf("%g", math.Float64frombits(v.num))
	case KindBytes:
		return fmt.Sprintf("%q", v.bytes)
	case KindTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return "<" + v.kind.String() + ">"
		}
		return string(data)
	}
}
