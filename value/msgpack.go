package value

import (
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/c360/eventflow/errors"
)

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack writes v using native msgpack types: bytes as bin,
// timestamps as the timestamp extension, and maps in insertion order.
// Unlike JSON, the binary form round-trips every variant exactly.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBoolean:
		return enc.EncodeBool(v.num == 1)
	case KindInteger:
		return enc.EncodeInt(int64(v.num))
	case KindFloat:
		return enc.EncodeFloat64(math.Float64frombits(v.num))
	case KindBytes:
		b := v.bytes
		if b == nil {
			b = []byte{}
		}
		return enc.EncodeBytes(b)
	case KindTimestamp:
		return enc.EncodeTime(v.ts)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for i := range v.arr {
			if err := v.arr[i].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(v.obj.Len()); err != nil {
			return err
		}
		var err error
		v.obj.Range(func(k string, item *Value) bool {
			if err = enc.EncodeString(k); err != nil {
				return false
			}
			err = item.EncodeMsgpack(enc)
			return err == nil
		})
		return err
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
}

// DecodeMsgpack reads a value written by EncodeMsgpack. Strings are
// accepted as bytes, and non-finite floats are rejected.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	out, err := decodeMsgpackValue(dec)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func decodeMsgpackValue(dec *msgpack.Decoder) (Value, error) {
	c, err := dec.PeekCode()
	if err != nil {
		return Value{}, malformedMsgpack(err)
	}

	switch {
	case c == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Null(), nil
	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Bool(b), nil
	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Float(f)
	case c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return fromUint(u)
	case msgpcode.IsFixedNum(c) || (c >= msgpcode.Uint8 && c <= msgpcode.Int64):
		i, err := dec.DecodeInt64()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Integer(i), nil
	case msgpcode.IsString(c) || msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Bytes(b), nil
	case msgpcode.IsExt(c):
		t, err := dec.DecodeTime()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		return Timestamp(t), nil
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		items := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			item, err := decodeMsgpackValue(dec)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return Value{}, malformedMsgpack(err)
		}
		m := NewMap()
		for i := 0; i < n; i++ {
			k, err := dec.DecodeString()
			if err != nil {
				return Value{}, malformedMsgpack(err)
			}
			item, err := decodeMsgpackValue(dec)
			if err != nil {
				return Value{}, err
			}
			m.Set(k, item)
		}
		return FromMap(m), nil
	default:
		return Value{}, malformedMsgpack(fmt.Errorf("unexpected code 0x%x", c))
	}
}

func malformedMsgpack(err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err),
		"Value", "DecodeMsgpack", "decode")
}

// MarshalBinary encodes v with msgpack.
func (v Value) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal(v)
}

// UnmarshalBinary decodes msgpack produced by MarshalBinary.
func (v *Value) UnmarshalBinary(data []byte) error {
	return msgpack.Unmarshal(data, v)
}
