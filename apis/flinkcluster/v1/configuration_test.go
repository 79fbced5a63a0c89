package v1

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestConfigurationAppendOrderAndOverwrite(t *testing.T) {
	cfg := NewConfiguration()
	cfg.Append("a", 1)
	cfg.Append("b", "x")
	cfg.Append("a", 2)

	assert.DeepEqual(t, cfg.Keys(), []string{"a", "b"})
	v, ok := cfg.Get("a")
	assert.Equal(t, ok, true)
	assert.Equal(t, v, "2")
	assert.Equal(t, cfg.Size(), 2)
}

func TestEncodeConfValue(t *testing.T) {
	assert.Equal(t, EncodeConfValue("plain"), "plain")
	assert.Equal(t, EncodeConfValue(true), "true")
	assert.Equal(t, EncodeConfValue(6124), "6124")
	assert.Equal(t, EncodeConfValue(1.5), "1.5")
	assert.Equal(t, EncodeConfValue(2.0), "2")
	assert.Equal(t, EncodeConfValue([]string{"a", "b", "c"}), "a;b;c")
	assert.Equal(t, EncodeConfValue([]ConfEntry{{"k1", "v1"}, {"k2", 2}}), "k1=v1;k2=2")
	assert.Equal(t, EncodeConfValue(map[string]string{"b": "2", "a": "1"}), "a=1;b=2")
}
