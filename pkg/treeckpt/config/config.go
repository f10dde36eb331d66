package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config wraps a map[string]any for typed value extraction.
// Accessors return the default when the key is missing or the value
// cannot be converted. Strings are parsed, so values coming from the
// environment convert like their YAML counterparts.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map. A nil map yields an empty Config.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// String returns the string value for key, or defaultVal.
func (c Config) String(key, defaultVal string) string {
	if s, ok := toString(c.data[key]); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
// Strings accepted by strconv.ParseBool are converted.
func (c Config) Bool(key string, defaultVal bool) bool {
	if b, ok := toBool(c.data[key]); ok {
		return b
	}
	return defaultVal
}

// Int64 returns the integer value for key, or defaultVal.
//
// Accepts:
//   - int, int64: used directly
//   - float64: only if it has no fractional part
//   - string: parsed as a base 10 integer
func (c Config) Int64(key string, defaultVal int64) int64 {
	if n, ok := toInt64(c.data[key]); ok {
		return n
	}
	return defaultVal
}

// Int is Int64 narrowed to int.
func (c Config) Int(key string, defaultVal int) int {
	return int(c.Int64(key, int64(defaultVal)))
}

// Float returns the float64 value for key, or defaultVal.
func (c Config) Float(key string, defaultVal float64) float64 {
	if f, ok := toFloat(c.data[key]); ok {
		return f
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal.
// Strings go through time.ParseDuration; numbers are seconds.
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	if d, ok := toDuration(c.data[key]); ok {
		return d
	}
	return defaultVal
}

// Kind is the type a key is expected to convert to.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDuration
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindDuration:
		return "duration"
	default:
		return "string"
	}
}

// ErrInvalidValue marks a key that is set but cannot be converted.
var ErrInvalidValue = errors.New("invalid config value")

// Check reports every key in want that is set but does not convert to its
// Kind. Missing keys and explicit nulls are fine; the accessors fall back
// to their defaults for those.
func (c Config) Check(want map[string]Kind) error {
	var errs []error
	for _, key := range slices.Sorted(maps.Keys(want)) {
		v, ok := c.data[key]
		if !ok || v == nil {
			continue
		}
		kind := want[key]
		var valid bool
		switch kind {
		case KindBool:
			_, valid = toBool(v)
		case KindInt:
			_, valid = toInt64(v)
		case KindFloat:
			_, valid = toFloat(v)
		case KindDuration:
			_, valid = toDuration(v)
		default:
			_, valid = toString(v)
		}
		if !valid {
			errs = append(errs, fmt.Errorf("%s: %w: want %s, got %v", key, ErrInvalidValue, kind, v))
		}
	}
	return errors.Join(errs...)
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b, true
		}
	}
	return false, false
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int64:
		return val, true
	case float64:
		if val == float64(int64(val)) {
			return int64(val), true
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toDuration(v any) (time.Duration, bool) {
	switch val := v.(type) {
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			return d, true
		}
	case float64:
		return time.Duration(val * float64(time.Second)), true
	case int:
		return time.Duration(val) * time.Second, true
	case int64:
		return time.Duration(val) * time.Second, true
	case time.Duration:
		return val, true
	}
	return 0, false
}

// Has returns true if the key exists.
func (c Config) Has(key string) bool {
	_, ok := c.data[key]
	return ok
}

// Merge returns a Config with the keys of other layered over c.
// Neither input is modified.
func (c Config) Merge(other Config) Config {
	out := maps.Clone(c.data)
	if out == nil {
		out = make(map[string]any, len(other.data))
	}
	maps.Copy(out, other.data)
	return Config{data: out}
}

// Raw returns the underlying map. It must not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}
