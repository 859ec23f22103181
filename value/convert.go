package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/c360/eventflow/errors"
)

// FromAny converts plain Go data, as produced by encoding/json or yaml.v3,
// into a Value. Maps without an inherent order are inserted in sorted key
// order.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case *Map:
		return FromMap(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Integer(int64(x)), nil
	case uint16:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case json.Number:
		return fromNumber(string(x))
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return Timestamp(x), nil
	case []Value:
		return Array(x...), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return Array(items...), nil
	case map[string]Value:
		return Object(x), nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			v, err := FromAny(x[k])
			if err != nil {
				return Value{}, err
			}
			m.Set(k, v)
		}
		return FromMap(m), nil
	case map[string]string:
		fields := make(map[string]Value, len(x))
		for k, s := range x {
			fields[k] = String(s)
		}
		return Object(fields), nil
	default:
		return Value{}, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported Go type %T", errors.ErrMalformedPayload, in),
			"Value", "FromAny", "convert")
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, errors.WrapInvalid(
			fmt.Errorf("%w: integer %d overflows int64", errors.ErrMalformedPayload, u),
			"Value", "FromAny", "convert")
	}
	return Integer(int64(u)), nil
}

func fromNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, errors.WrapInvalid(
			fmt.Errorf("%w: number %q: %v", errors.ErrMalformedPayload, s, err),
			"Value", "FromAny", "parse number")
	}
	return Float(f)
}

// ToAny converts v to plain Go data. Bytes become strings, maps become
// map[string]any and timestamps stay time.Time.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBoolean:
		return v.num == 1
	case KindInteger:
		return int64(v.num)
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindBytes:
		return string(v.bytes)
	case KindTimestamp:
		return v.ts
	case KindArray:
		out := make([]any, len(v.arr))
		for i := range v.arr {
			out[i] = v.arr[i].ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(k string, item *Value) bool {
			out[k] = item.ToAny()
			return true
		})
		return out
	default:
		return nil
	}
}
