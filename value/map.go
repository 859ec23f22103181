package value

import "sort"

// Map is a string-keyed map that keeps insertion order for serialization
// and wildcard traversal. Entries are stored by pointer so path
// operations can descend into nested values in place.
//
// A nil *Map reads as empty. The zero Map is ready to use.
type Map struct {
	keys  []string
	index map[string]*Value
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{index: make(map[string]*Value)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Get returns a pointer to the stored value for key.
func (m *Map) Get(key string) (*Value, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.index[key]
	return v, ok
}

// Set stores v under key and returns the previous value, if any. New keys
// are appended to the iteration order; existing keys keep their position.
func (m *Map) Set(key string, v Value) (Value, bool) {
	if slot, ok := m.index[key]; ok {
		prev := *slot
		*slot = v
		return prev, true
	}
	if m.index == nil {
		m.index = make(map[string]*Value)
	}
	stored := v
	m.index[key] = &stored
	m.keys = append(m.keys, key)
	return Value{}, false
}

// Delete removes key and returns its value.
func (m *Map) Delete(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	slot, ok := m.index[key]
	if !ok {
		return Value{}, false
	}
	delete(m.index, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return *slot, true
}

// Keys returns a copy of the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// SortedKeys returns the keys in lexical order.
func (m *Map) SortedKeys() []string {
	out := m.Keys()
	sort.Strings(out)
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
// fn must not add or delete keys.
func (m *Map) Range(fn func(key string, v *Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.index[k]) {
			return
		}
	}
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := &Map{
		keys:  make([]string, 0, m.Len()),
		index: make(map[string]*Value, m.Len()),
	}
	m.Range(func(k string, v *Value) bool {
		c := v.Clone()
		out.keys = append(out.keys, k)
		out.index[k] = &c
		return true
	})
	return out
}

// Equal compares entries regardless of insertion order.
func (m *Map) Equal(o *Map) bool {
	if m.Len() != o.Len() {
		return false
	}
	equal := true
	m.Range(func(k string, v *Value) bool {
		ov, ok := o.Get(k)
		if !ok || !v.Equal(*ov) {
			equal = false
		}
		return equal
	})
	return equal
}

// detach empties m and returns its previous contents.
func (m *Map) detach() ([]string, map[string]*Value) {
	keys, index := m.keys, m.index
	m.keys = nil
	m.index = make(map[string]*Value)
	return keys, index
}
