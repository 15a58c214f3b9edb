package inference

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Settings is the free-form option map handed to a backend factory.
// Accessors fall back to the default when a key is missing or has the
// wrong shape. Values from environment variables arrive as strings, so
// numeric and boolean accessors also parse strings.
type Settings struct {
	data map[string]any
}

// NewSettings wraps data. A nil map yields empty settings.
func NewSettings(data map[string]any) Settings {
	if data == nil {
		data = map[string]any{}
	}
	return Settings{data: data}
}

// String returns the string at key.
func (s Settings) String(key, def string) string {
	switch v := s.data[key].(type) {
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	}
	return def
}

// Int returns the integer at key. Floats with a fractional part are rejected.
func (s Settings) Int(key string, def int) int {
	switch v := s.data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Float returns the number at key.
func (s Settings) Float(key string, def float64) float64 {
	switch v := s.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the boolean at key.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s.data[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// Duration returns the duration at key. Strings use time.ParseDuration;
// bare numbers are seconds.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s.data[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// StringSlice returns the list at key. A comma separated string is split.
func (s Settings) StringSlice(key string, def []string) []string {
	switch v := s.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, str)
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return def
}

// Sub returns the nested settings at key, or empty settings.
func (s Settings) Sub(key string) Settings {
	if m, ok := s.data[key].(map[string]any); ok {
		return NewSettings(m)
	}
	return NewSettings(nil)
}

// Has reports whether key is set.
func (s Settings) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}
