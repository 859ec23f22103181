package value

import (
	"fmt"

	"github.com/c360/eventflow/errors"
)

// Get returns a pointer to the value at path, or nil when any segment is
// missing, addresses the wrong container kind, or is a wildcard. Use Select
// for wildcard paths.
func (v *Value) Get(path Path) *Value {
	cur := v
	for _, seg := range path.segments {
		cur = child(cur, seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Contains reports whether path resolves to a value.
func (v *Value) Contains(path Path) bool {
	return v.Get(path) != nil
}

func child(node *Value, seg Segment) *Value {
	switch seg.kind {
	case SegmentField:
		if node.kind != KindMap {
			return nil
		}
		c, _ := node.obj.Get(seg.field)
		return c
	case SegmentIndex:
		if node.kind != KindArray {
			return nil
		}
		i, ok := resolveIndex(seg.index, len(node.arr))
		if !ok || i >= len(node.arr) {
			return nil
		}
		return &node.arr[i]
	default:
		return nil
	}
}

func resolveIndex(idx, n int) (int, bool) {
	if idx < 0 {
		idx += n
		if idx < 0 {
			return 0, false
		}
	}
	return idx, true
}

// Insert stores nv at path, creating intermediate maps and arrays as
// needed. A Null along the way counts as missing and is replaced by the
// container the next segment requires; arrays are padded with Null up to
// the target index. It returns the previous value and whether one existed.
//
// A segment that meets an existing value of the wrong kind fails with
// ErrPathConflict and leaves v unchanged. Wildcard paths fail with
// ErrInvalidPath.
func (v *Value) Insert(path Path, nv Value) (Value, bool, error) {
	if path.HasWildcard() {
		return Value{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: wildcard in %s", errors.ErrInvalidPath, path),
			"Value", "Insert", "resolve path")
	}
	if path.IsRoot() {
		prev := *v
		*v = nv
		return prev, !prev.IsNull(), nil
	}
	if err := v.checkInsert(path); err != nil {
		return Value{}, false, err
	}

	cur := v
	last := len(path.segments) - 1
	for i, seg := range path.segments {
		switch seg.kind {
		case SegmentField:
			if cur.kind == KindNull {
				*cur = EmptyMap()
			}
			if i == last {
				prev, existed := cur.obj.Set(seg.field, nv)
				return prev, existed, nil
			}
			next, ok := cur.obj.Get(seg.field)
			if !ok {
				cur.obj.Set(seg.field, Null())
				next, _ = cur.obj.Get(seg.field)
			}
			cur = next
		case SegmentIndex:
			if cur.kind == KindNull {
				*cur = Array()
			}
			idx, _ := resolveIndex(seg.index, len(cur.arr))
			existed := idx < len(cur.arr)
			for len(cur.arr) <= idx {
				cur.arr = append(cur.arr, Value{})
			}
			if i == last {
				prev := cur.arr[idx]
				cur.arr[idx] = nv
				return prev, existed, nil
			}
			cur = &cur.arr[idx]
		}
	}
	return Value{}, false, nil
}

// checkInsert walks path without mutating v so a failing Insert leaves no
// partially created containers behind.
func (v *Value) checkInsert(path Path) error {
	cur := v
	for i, seg := range path.segments {
		if cur == nil || cur.kind == KindNull {
			// Everything from here on is created fresh and empty.
			if seg.kind == SegmentIndex && seg.index < 0 {
				return negativeIndex(path, seg, 0)
			}
			cur = nil
			continue
		}
		switch seg.kind {
		case SegmentField:
			if cur.kind != KindMap {
				return conflict(path, i, cur.kind)
			}
			cur, _ = cur.obj.Get(seg.field)
		case SegmentIndex:
			if cur.kind != KindArray {
				return conflict(path, i, cur.kind)
			}
			idx, ok := resolveIndex(seg.index, len(cur.arr))
			if !ok {
				return negativeIndex(path, seg, len(cur.arr))
			}
			if idx < len(cur.arr) {
				cur = &cur.arr[idx]
			} else {
				cur = nil
			}
		}
	}
	return nil
}

func negativeIndex(path Path, seg Segment, n int) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: index %d before start of array of length %d at %s",
			errors.ErrPathConflict, seg.index, n, path),
		"Value", "Insert", "resolve index")
}

func conflict(path Path, depth int, found Kind) error {
	want := "map"
	if path.segments[depth].kind == SegmentIndex {
		want = "array"
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s expects %s at segment %d, found %s",
			errors.ErrPathConflict, path, want, depth, found),
		"Value", "Insert", "descend")
}

// Remove deletes the value at a concrete path and returns it. Removing
// from an array shifts the following elements down. The root cannot be
// removed; wildcard paths use RemoveAll.
func (v *Value) Remove(path Path) (Value, bool) {
	if path.IsRoot() || path.HasWildcard() {
		return Value{}, false
	}
	parent := v.Get(path.Parent())
	if parent == nil {
		return Value{}, false
	}
	return removeChild(parent, path.segments[len(path.segments)-1])
}

func removeChild(parent *Value, seg Segment) (Value, bool) {
	switch seg.kind {
	case SegmentField:
		if parent.kind != KindMap {
			return Value{}, false
		}
		return parent.obj.Delete(seg.field)
	case SegmentIndex:
		if parent.kind != KindArray {
			return Value{}, false
		}
		i, ok := resolveIndex(seg.index, len(parent.arr))
		if !ok || i >= len(parent.arr) {
			return Value{}, false
		}
		prev := parent.arr[i]
		parent.arr = append(parent.arr[:i], parent.arr[i+1:]...)
		return prev, true
	default:
		return Value{}, false
	}
}
