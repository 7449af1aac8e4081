// Package codec turns cache values into bytes and back.
//
// The in-memory cache stores values as given; codecs are applied by the
// caller (or by the tiered package) outside the cache's critical section.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Measure derives a size function from a codec: the size of a value is the
// length of its encoding. Values that fail to encode are charged 1 byte.
// The result plugs into adaptcache.Options.Measure.
func Measure[V any](c Codec[V]) func(V) int64 {
	return func(v V) int64 {
		b, err := c.Encode(v)
		if err != nil {
			return 1
		}
		return int64(len(b))
	}
}
