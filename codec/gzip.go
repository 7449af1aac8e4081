package codec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
)

// Gzip compresses the output of Inner. Payloads shorter than MinSize are
// stored uncompressed; a one-byte prefix records which form was used.
type Gzip[V any] struct {
	Inner   Codec[V]
	Level   int // 0 => gzip.DefaultCompression
	MinSize int // 0 => always compress
}

const (
	gzipPlain byte = 0
	gzipDefl  byte = 1
)

var gzipReaders sync.Pool

func (c Gzip[V]) Encode(v V) ([]byte, error) {
	raw, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if len(raw) < c.MinSize {
		return append([]byte{gzipPlain}, raw...), nil
	}

	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	buf.WriteByte(gzipDefl)
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("codec: gzip: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("codec: gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func (c Gzip[V]) Decode(b []byte) (V, error) {
	var zero V
	if len(b) == 0 {
		return zero, fmt.Errorf("codec: gzip: empty payload")
	}
	switch b[0] {
	case gzipPlain:
		return c.Inner.Decode(b[1:])
	case gzipDefl:
	default:
		return zero, fmt.Errorf("codec: gzip: unknown marker %#x", b[0])
	}

	zr, _ := gzipReaders.Get().(*gzip.Reader)
	var err error
	if zr == nil {
		zr, err = gzip.NewReader(bytes.NewReader(b[1:]))
	} else {
		err = zr.Reset(bytes.NewReader(b[1:]))
	}
	if err != nil {
		return zero, fmt.Errorf("codec: gzip: %w", err)
	}
	defer gzipReaders.Put(zr)

	raw, err := io.ReadAll(zr)
	if err != nil {
		return zero, fmt.Errorf("codec: gzip: %w", err)
	}
	return c.Inner.Decode(raw)
}
