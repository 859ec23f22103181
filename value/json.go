package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/c360/eventflow/errors"
)

// MarshalJSON renders v as JSON. Maps keep insertion order, bytes are
// written as strings and timestamps as RFC 3339 strings. Floats always
// carry a fraction or exponent so they decode back as floats.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBoolean:
		buf.WriteString(strconv.FormatBool(v.num == 1))
	case KindInteger:
		buf.WriteString(strconv.FormatInt(int64(v.num), 10))
	case KindFloat:
		buf.WriteString(formatFloat(math.Float64frombits(v.num)))
	case KindBytes:
		return writeJSONString(buf, string(v.bytes))
	case KindTimestamp:
		return writeJSONString(buf, v.ts.Format(time.RFC3339Nano))
	case KindArray:
		buf.WriteByte('[')
		for i := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := v.arr[i].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		first := true
		var err error
		v.obj.Range(func(k string, item *Value) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err = writeJSONString(buf, k); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = item.writeJSON(buf)
			return err == nil
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	}
	return nil
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// UnmarshalJSON decodes JSON into v, keeping object key order. Integral
// numbers become Integer, all other numbers Float, and strings Bytes.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return malformedJSON(fmt.Errorf("trailing data after value"))
	}
	*v = out
	return nil
}

// ParseJSON decodes a single JSON document.
func ParseJSON(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, malformedJSON(err)
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return fromNumber(t.String())
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, malformedJSON(err)
			}
			return Array(items...), nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, malformedJSON(err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, malformedJSON(fmt.Errorf("object key %v is not a string", keyTok))
				}
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				m.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, malformedJSON(err)
			}
			return FromMap(m), nil
		}
	}
	return Value{}, malformedJSON(fmt.Errorf("unexpected token %v", tok))
}

func malformedJSON(err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrMalformedPayload, err),
		"Value", "UnmarshalJSON", "decode")
}
