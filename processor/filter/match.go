package filter

import (
	"bytes"

	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/value"
)

// matches reports whether target satisfies the rule. A missing field
// matches only nothing, so "ne" on an absent field is false too.
func (r compiledRule) matches(target value.Value) bool {
	found := target.Get(r.path)
	if r.operator == OpExists {
		return found != nil
	}
	if found == nil {
		return false
	}

	switch r.operator {
	case OpEq:
		return equal(*found, r.operand)
	case OpNe:
		return !equal(*found, r.operand)
	case OpGt:
		c, ok := order(*found, r.operand)
		return ok && c > 0
	case OpGte:
		c, ok := order(*found, r.operand)
		return ok && c >= 0
	case OpLt:
		c, ok := order(*found, r.operand)
		return ok && c < 0
	case OpLte:
		c, ok := order(*found, r.operand)
		return ok && c <= 0
	case OpContains:
		return contains(*found, r.operand)
	default:
		return false
	}
}

// equal treats integers and floats as one numeric domain.
func equal(a, b value.Value) bool {
	if x, ok := a.AsNumber(); ok {
		if y, ok := b.AsNumber(); ok {
			return x == y
		}
	}
	return a.Equal(b)
}

// order compares numbers with numbers, strings with strings and
// timestamps with timestamps. Anything else is unordered.
func order(a, b value.Value) (int, bool) {
	if x, ok := a.AsNumber(); ok {
		y, ok := b.AsNumber()
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	if a.Kind() == b.Kind() && (a.Kind() == value.KindBytes || a.Kind() == value.KindTimestamp) {
		return value.Compare(a, b), true
	}
	return 0, false
}

// contains is substring for strings and membership for arrays.
func contains(haystack, needle value.Value) bool {
	if items, ok := haystack.AsArray(); ok {
		for _, item := range items {
			if equal(item, needle) {
				return true
			}
		}
		return false
	}
	h, ok := haystack.AsBytes()
	if !ok {
		return false
	}
	n, ok := needle.AsBytes()
	if !ok {
		return false
	}
	return bytes.Contains(h, n)
}

// target returns the value rules are evaluated against. Metrics expose
// name, namespace, kind, type and tags.
func target(e event.Event) value.Value {
	switch ev := e.(type) {
	case *event.LogEvent:
		return ev.Fields()
	case *event.TraceEvent:
		return ev.Fields()
	case *event.Metric:
		return metricView(ev)
	default:
		return value.Null()
	}
}

func metricView(m *event.Metric) value.Value {
	fields := map[string]value.Value{
		"name": value.String(m.Name()),
		"kind": value.String(m.MetricKind().String()),
		"type": value.String(m.Value().Variant()),
	}
	if ns, ok := m.Namespace(); ok {
		fields["namespace"] = value.String(ns)
	}
	tags := make(map[string]value.Value, len(m.Tags()))
	for _, key := range m.Tags().Keys() {
		if v, ok := m.Tags().Get(key); ok {
			tags[key] = value.String(v)
		}
	}
	fields["tags"] = value.Object(tags)
	return value.Object(fields)
}
