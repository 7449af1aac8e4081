package adaptcache

import "github.com/vmihailenco/msgpack/v5"

// DefaultMeasure charges raw byte length for []byte and string values and the
// msgpack-encoded length for everything else. A value msgpack cannot encode
// is charged 1 byte.
func DefaultMeasure[V any](v V) int64 {
	switch x := any(v).(type) {
	case []byte:
		return int64(len(x))
	case string:
		return int64(len(x))
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return 1
	}
	return int64(len(b))
}
