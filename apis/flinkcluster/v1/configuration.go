package v1

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Configuration is the ordered key/value map handed to the Flink launcher.
// Appending an existing key overwrites its value in place, so later appends
// win while the original position is kept.
type Configuration struct {
	keys   []string
	values map[string]string
}

func NewConfiguration() *Configuration {
	return &Configuration{values: make(map[string]string)}
}

func (c *Configuration) Append(key string, value any) {
	encoded := EncodeConfValue(value)
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = encoded
}

func (c *Configuration) AppendAll(entries []ConfEntry) {
	for _, e := range entries {
		c.Append(e.Key, e.Value)
	}
}

func (c *Configuration) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Configuration) Contains(key string) bool {
	_, ok := c.values[key]
	return ok
}

func (c *Configuration) Size() int { return len(c.keys) }

// Keys returns the keys in append order.
func (c *Configuration) Keys() []string {
	return append([]string(nil), c.keys...)
}

func (c *Configuration) AsMap() map[string]string {
	m := make(map[string]string, len(c.values))
	for k, v := range c.values {
		m[k] = v
	}
	return m
}

// EncodeConfValue renders a configuration value the way the Flink launcher
// expects: collections join with ";", pair sequences join as "k=v;k=v",
// everything else uses its canonical string form.
func EncodeConfValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case int:
		return strconv.Itoa(tv)
	case int32:
		return strconv.FormatInt(int64(tv), 10)
	case int64:
		return strconv.FormatInt(tv, 10)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case []string:
		return strings.Join(tv, ";")
	case []ConfEntry:
		parts := make([]string, 0, len(tv))
		for _, e := range tv {
			parts = append(parts, e.Key+"="+EncodeConfValue(e.Value))
		}
		return strings.Join(parts, ";")
	case map[string]string:
		// plain maps carry no insertion order, sort for determinism
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+tv[k])
		}
		return strings.Join(parts, ";")
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, EncodeConfValue(rv.Index(i).Interface()))
		}
		return strings.Join(parts, ";")
	}
	return fmt.Sprintf("%v", v)
}
