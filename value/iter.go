package value

// Matches walks the values addressed by a path that may contain
// wildcards. It is lazy: each call to Next advances the traversal by one
// match, and the work done is proportional to the part of the tree
// visited so far.
//
//	m := root.Select(value.MustParsePath("items[*].name"))
//	for m.Next() {
//		fmt.Println(m.Path(), m.Value())
//	}
//
// A Matches from Select must not be used after the underlying value is
// mutated. A Matches from RemoveAll performs the mutation itself and
// yields each removed value exactly once.
type Matches struct {
	segments []Segment
	remove   bool
	stack    []matchFrame

	current     *Value
	currentPath Path
}

type matchFrame struct {
	node  *Value
	depth int
	trail []Segment
	pos   int

	// Terminal wildcard removal detaches the container once and then
	// drains the detached contents.
	detached    bool
	detachedArr []Value
	detachedKey []string
	detachedMap map[string]*Value
}

// Select returns a lazy sequence of the values matching path. Concrete
// paths yield at most one match.
func (v *Value) Select(path Path) *Matches {
	return newMatches(v, path, false)
}

// RemoveAll returns a lazy sequence that removes each value matching
// path as it is yielded. A terminal wildcard empties the matched
// container. The root is never removed.
func (v *Value) RemoveAll(path Path) *Matches {
	m := newMatches(v, path, true)
	if path.IsRoot() {
		m.stack = nil
	}
	return m
}

func newMatches(v *Value, path Path, remove bool) *Matches {
	return &Matches{
		segments: path.segments,
		remove:   remove,
		stack:    []matchFrame{{node: v}},
	}
}

// Value returns the current match. For RemoveAll it points at a copy of
// the removed value.
func (m *Matches) Value() *Value { return m.current }

// Path returns the concrete path of the current match.
func (m *Matches) Path() Path { return m.currentPath }

// Next advances to the next match and reports whether there is one.
func (m *Matches) Next() bool {
	for len(m.stack) > 0 {
		top := len(m.stack) - 1
		f := &m.stack[top]

		if f.depth == len(m.segments) {
			m.yield(f.node, f.trail)
			m.stack = m.stack[:top]
			return true
		}

		seg := m.segments[f.depth]
		if m.remove && f.depth == len(m.segments)-1 {
			if m.nextRemoval(f, seg) {
				return true
			}
			m.stack = m.stack[:top]
			continue
		}

		if seg.kind != SegmentWildcard {
			c := child(f.node, seg)
			depth, trail, s := f.depth, f.trail, concreteSegment(seg, f.node)
			m.stack = m.stack[:top]
			if c != nil {
				m.push(c, depth+1, trail, s)
			}
			continue
		}

		c, s, ok := nextChild(f)
		if !ok {
			m.stack = m.stack[:top]
			continue
		}
		// push may reallocate the stack; f is not used afterwards.
		m.push(c, f.depth+1, f.trail, s)
	}
	m.current = nil
	m.currentPath = Path{}
	return false
}

func (m *Matches) push(node *Value, depth int, trail []Segment, seg Segment) {
	t := make([]Segment, len(trail), len(trail)+1)
	copy(t, trail)
	m.stack = append(m.stack, matchFrame{node: node, depth: depth, trail: append(t, seg)})
}

func (m *Matches) yield(node *Value, trail []Segment) {
	m.current = node
	m.currentPath = Path{segments: trail}
}

// concreteSegment rewrites a negative index into the position it resolved
// to so reported paths are always absolute.
func concreteSegment(seg Segment, parent *Value) Segment {
	if seg.kind == SegmentIndex && seg.index < 0 {
		i, _ := resolveIndex(seg.index, len(parent.arr))
		return Index(i)
	}
	return seg
}

func nextChild(f *matchFrame) (*Value, Segment, bool) {
	switch f.node.kind {
	case KindArray:
		if f.pos >= len(f.node.arr) {
			return nil, Segment{}, false
		}
		i := f.pos
		f.pos++
		return &f.node.arr[i], Index(i), true
	case KindMap:
		keys := f.node.obj.keys
		if f.pos >= len(keys) {
			return nil, Segment{}, false
		}
		k := keys[f.pos]
		f.pos++
		c, _ := f.node.obj.Get(k)
		return c, Field(k), true
	default:
		return nil, Segment{}, false
	}
}

func (m *Matches) nextRemoval(f *matchFrame, seg Segment) bool {
	if seg.kind != SegmentWildcard {
		if f.detached {
			return false
		}
		f.detached = true
		s := concreteSegment(seg, f.node)
		removed, ok := removeChild(f.node, seg)
		if !ok {
			return false
		}
		m.yieldRemoved(removed, f.trail, s)
		return true
	}

	if !f.detached {
		f.detached = true
		switch f.node.kind {
		case KindArray:
			f.detachedArr = f.node.arr
			f.node.arr = []Value{}
		case KindMap:
			f.detachedKey, f.detachedMap = f.node.obj.detach()
		}
	}
	switch {
	case f.pos < len(f.detachedArr):
		i := f.pos
		f.pos++
		m.yieldRemoved(f.detachedArr[i], f.trail, Index(i))
		return true
	case f.pos < len(f.detachedKey):
		k := f.detachedKey[f.pos]
		f.pos++
		m.yieldRemoved(*f.detachedMap[k], f.trail, Field(k))
		return true
	default:
		return false
	}
}

func (m *Matches) yieldRemoved(removed Value, trail []Segment, seg Segment) {
	t := make([]Segment, len(trail), len(trail)+1)
	copy(t, trail)
	m.current = &removed
	m.currentPath = Path{segments: append(t, seg)}
}

// Collect drains m and returns the matched values in traversal order.
func (m *Matches) Collect() []Value {
	var out []Value
	for m.Next() {
		out = append(out, *m.current)
	}
	return out
}
