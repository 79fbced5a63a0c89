package store

// StringCodec is the identity codec for string-keyed maps.
type StringCodec struct{}

func (StringCodec) Marshal(k string) string            { return k }
func (StringCodec) Unmarshal(s string) (string, error) { return s, nil }
