package value

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360/eventflow/errors"
)

// SegmentKind tells field, index and wildcard segments apart.
type SegmentKind uint8

const (
	SegmentField SegmentKind = iota
	SegmentIndex
	SegmentWildcard
)

// Segment is one step of a Path.
type Segment struct {
	kind  SegmentKind
	field string
	index int
}

// Field returns a segment selecting a map key.
func Field(name string) Segment { return Segment{kind: SegmentField, field: name} }

// Index returns a segment selecting an array position. Negative positions
// count from the end of the array.
func Index(i int) Segment { return Segment{kind: SegmentIndex, index: i} }

// Wildcard returns a segment matching every element of an array or every
// value of a map.
func Wildcard() Segment { return Segment{kind: SegmentWildcard} }

// Kind returns the segment kind.
func (s Segment) Kind() SegmentKind { return s.kind }

// Name returns the field name of a field segment.
func (s Segment) Name() string { return s.field }

// Position returns the index of an index segment.
func (s Segment) Position() int { return s.index }

// Path is an immutable, parsed address into a Value. The zero Path is the
// root. Paths are safe to share and reuse across events.
type Path struct {
	segments []Segment
}

// Root returns the empty path addressing the whole value.
func Root() Path { return Path{} }

// NewPath builds a path from segments.
func NewPath(segments ...Segment) Path {
	if len(segments) == 0 {
		return Path{}
	}
	return Path{segments: append([]Segment(nil), segments...)}
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segments) }

// IsRoot reports whether p addresses the whole value.
func (p Path) IsRoot() bool { return len(p.segments) == 0 }

// Segment returns the i-th segment.
func (p Path) Segment(i int) Segment { return p.segments[i] }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment { return append([]Segment(nil), p.segments...) }

// HasWildcard reports whether any segment is a wildcard.
func (p Path) HasWildcard() bool {
	for _, s := range p.segments {
		if s.kind == SegmentWildcard {
			return true
		}
	}
	return false
}

// Append returns a new path with segs appended. p is not modified.
func (p Path) Append(segs ...Segment) Path {
	out := make([]Segment, 0, len(p.segments)+len(segs))
	out = append(out, p.segments...)
	out = append(out, segs...)
	return Path{segments: out}
}

// Parent returns p without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p.segments) == 0 {
		return p
	}
	return Path{segments: p.segments[:len(p.segments)-1]}
}

// Equal reports whether two paths have the same segments.
func (p Path) Equal(o Path) bool {
	if len(p.segments) != len(o.segments) {
		return false
	}
	for i := range p.segments {
		if p.segments[i] != o.segments[i] {
			return false
		}
	}
	return true
}

// String renders p in the syntax accepted by ParsePath. The root renders
// as ".".
func (p Path) String() string {
	if len(p.segments) == 0 {
		return "."
	}
	var b strings.Builder
	for i, s := range p.segments {
		switch s.kind {
		case SegmentField:
			if i > 0 {
				b.WriteByte('.')
			}
			if isPlainField(s.field) {
				b.WriteString(s.field)
			} else {
				b.WriteString(strconv.Quote(s.field))
			}
		case SegmentIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
		case SegmentWildcard:
			b.WriteString("[*]")
		}
	}
	return b.String()
}

func isPlainField(s string) bool {
	if s == "" || s == "*" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isFieldByte(s[i]) {
			return false
		}
	}
	return true
}

func isFieldByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '@' || c == '$':
		return true
	default:
		return c >= 0x80
	}
}

// MustParsePath is ParsePath for paths known at compile time.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath parses the textual path syntax:
//
//	a.b[2]        field, field, index
//	"dotted.key".x quoted field
//	items[*].name wildcard over array elements
//	labels.*      wildcard over map values
//	a[-1]         last element
//	. or ""       root
func ParsePath(s string) (Path, error) {
	if s == "" || s == "." {
		return Path{}, nil
	}
	p := pathParser{src: s}
	if s[0] == '.' {
		p.pos = 1
	}
	segs, err := p.parse()
	if err != nil {
		return Path{}, errors.WrapInvalid(fmt.Errorf("%w: %q: %v", errors.ErrInvalidPath, s, err),
			"Path", "ParsePath", "parse")
	}
	return Path{segments: segs}, nil
}

type pathParser struct {
	src string
	pos int
}

func (p *pathParser) parse() ([]Segment, error) {
	var segs []Segment
	wantField := p.peek() != '['
	for {
		if p.done() {
			if wantField {
				return nil, fmt.Errorf("expected field at offset %d", p.pos)
			}
			return segs, nil
		}
		c := p.peek()
		switch {
		case c == '[':
			seg, err := p.bracket()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			wantField = false
		case wantField:
			seg, err := p.field()
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			wantField = false
		case c == '.':
			p.pos++
			if p.done() || p.peek() == '[' || p.peek() == '.' {
				return nil, fmt.Errorf("expected field at offset %d", p.pos)
			}
			wantField = true
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", c, p.pos)
		}
	}
}

func (p *pathParser) done() bool { return p.pos >= len(p.src) }

func (p *pathParser) peek() byte { return p.src[p.pos] }

func (p *pathParser) bracket() (Segment, error) {
	start := p.pos
	p.pos++ // '['
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return Segment{}, fmt.Errorf("unterminated '[' at offset %d", start)
	}
	body := p.src[p.pos : p.pos+end]
	p.pos += end + 1
	if body == "*" {
		return Wildcard(), nil
	}
	idx, err := strconv.Atoi(body)
	if err != nil || body == "" || body[0] == '+' {
		return Segment{}, fmt.Errorf("invalid index %q at offset %d", body, start)
	}
	return Index(idx), nil
}

func (p *pathParser) field() (Segment, error) {
	if p.peek() == '"' {
		return p.quoted()
	}
	start := p.pos
	if p.peek() == '*' {
		p.pos++
		if !p.done() && p.peek() != '.' && p.peek() != '[' {
			return Segment{}, fmt.Errorf("unexpected %q after '*' at offset %d", p.peek(), p.pos)
		}
		return Wildcard(), nil
	}
	for !p.done() && isFieldByte(p.peek()) {
		p.pos++
	}
	if p.pos == start {
		return Segment{}, fmt.Errorf("unexpected %q at offset %d", p.peek(), p.pos)
	}
	return Field(p.src[start:p.pos]), nil
}

func (p *pathParser) quoted() (Segment, error) {
	start := p.pos
	p.pos++ // opening quote
	for !p.done() {
		switch p.peek() {
		case '\\':
			p.pos += 2
		case '"':
			p.pos++
			name, err := strconv.Unquote(p.src[start:p.pos])
			if err != nil {
				return Segment{}, fmt.Errorf("invalid quoted field at offset %d: %v", start, err)
			}
			return Field(name), nil
		default:
			p.pos++
		}
	}
	return Segment{}, fmt.Errorf("unterminated quoted field at offset %d", start)
}
