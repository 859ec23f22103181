package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventflow/errors"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Segment
	}{
		{"root empty", "", nil},
		{"root dot", ".", nil},
		{"single field", "message", []Segment{Field("message")}},
		{"leading dot", ".message", []Segment{Field("message")}},
		{"nested", "a.b.c", []Segment{Field("a"), Field("b"), Field("c")}},
		{"index", "a.b[2]", []Segment{Field("a"), Field("b"), Index(2)}},
		{"negative index", "a[-1]", []Segment{Field("a"), Index(-1)}},
		{"leading index", "[0].x", []Segment{Index(0), Field("x")}},
		{"array wildcard", "items[*].name", []Segment{Field("items"), Wildcard(), Field("name")}},
		{"map wildcard", "labels.*", []Segment{Field("labels"), Wildcard()}},
		{"quoted", `"dotted.key".x`, []Segment{Field("dotted.key"), Field("x")}},
		{"quoted escape", `a."say \"hi\""`, []Segment{Field("a"), Field(`say "hi"`)}},
		{"quoted star", `a."*"`, []Segment{Field("a"), Field("*")}},
		{"chained indexes", "m[1][0]", []Segment{Field("m"), Index(1), Index(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.True(t, NewPath(tt.expected...).Equal(p), "got %s", p)
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, input := range []string{
		"a.",
		"a..b",
		"a[",
		"a[x]",
		"a[+1]",
		"a[]",
		`"open`,
		"a b",
		"*x",
		"a.[0]",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidPath))
		})
	}
}

func TestPath_StringRoundTrip(t *testing.T) {
	for _, input := range []string{
		"a.b[2]",
		`"dotted.key".x`,
		"items[*].name",
		"a[-1]",
		`a."*"`,
		`"with space"`,
	} {
		t.Run(input, func(t *testing.T) {
			p := MustParsePath(input)
			again, err := ParsePath(p.String())
			require.NoError(t, err)
			assert.True(t, p.Equal(again), "%s re-parsed as %s", p, again)
		})
	}
	assert.Equal(t, ".", Root().String())
	assert.Equal(t, "labels[*]", MustParsePath("labels.*").String())
}

func TestPath_AppendDoesNotAlias(t *testing.T) {
	base := MustParsePath("a")
	x := base.Append(Field("x"))
	y := base.Append(Field("y"))

	assert.Equal(t, "a.x", x.String())
	assert.Equal(t, "a.y", y.String())
	assert.Equal(t, 1, base.Len())
	assert.True(t, x.Parent().Equal(base))
}

func TestMustParsePath_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParsePath("a[") })
}
