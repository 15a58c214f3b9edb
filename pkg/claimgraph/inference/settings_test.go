package inference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Accessors(t *testing.T) {
	s := NewSettings(map[string]any{
		"name":     "rules",
		"count":    3,
		"count_s":  "7",
		"frac":     2.5,
		"flag":     true,
		"flag_s":   "false",
		"timeout":  "1500ms",
		"seconds":  2,
		"list":     []any{"a", "b"},
		"list_s":   "a, b ,,c",
		"mixed":    []any{"a", 1},
		"nested":   map[string]any{"model": "haiku"},
		"as_int64": int64(9),
	})

	assert.Equal(t, "rules", s.String("name", ""))
	assert.Equal(t, "3", s.String("count", ""))
	assert.Equal(t, "dflt", s.String("missing", "dflt"))

	assert.Equal(t, 3, s.Int("count", 0))
	assert.Equal(t, 7, s.Int("count_s", 0))
	assert.Equal(t, 9, s.Int("as_int64", 0))
	assert.Equal(t, 1, s.Int("frac", 1), "fractional floats are not ints")

	assert.InDelta(t, 2.5, s.Float("frac", 0), 1e-9)
	assert.InDelta(t, 7.0, s.Float("count_s", 0), 1e-9)

	assert.True(t, s.Bool("flag", false))
	assert.False(t, s.Bool("flag_s", true))
	assert.True(t, s.Bool("name", true), "unparseable falls back")

	assert.Equal(t, 1500*time.Millisecond, s.Duration("timeout", 0))
	assert.Equal(t, 2*time.Second, s.Duration("seconds", 0))

	assert.Equal(t, []string{"a", "b"}, s.StringSlice("list", nil))
	assert.Equal(t, []string{"a", "b", "c"}, s.StringSlice("list_s", nil))
	assert.Equal(t, []string{"x"}, s.StringSlice("mixed", []string{"x"}))

	assert.Equal(t, "haiku", s.Sub("nested").String("model", ""))
	assert.False(t, s.Sub("name").Has("model"))
	assert.True(t, s.Has("flag"))
}

func TestSettings_NilMap(t *testing.T) {
	s := NewSettings(nil)
	assert.Equal(t, 4, s.Int("x", 4))
	assert.False(t, s.Has("x"))
}
