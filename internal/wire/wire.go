// Package wire frames entries spilled out of the in-memory cache into a byte store.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1

	hdrLen = 4 + 1 + 1 + 8 + 8 + 2 // magic ver kind createdAt ttl ntags
)

var (
	ErrCorrupt = errors.New("adaptcache: corrupt spilled entry")
	magic4     = [...]byte{'A', 'D', 'P', 'C'}
)

// Tag is a tag name with the generation it had when the entry was spilled.
type Tag struct {
	Name string
	Gen  uint64
}

type Entry struct {
	CreatedAt time.Time
	TTL       time.Duration
	Tags      []Tag
	Payload   []byte
}

// Layout:
//
//	magic(4) | ver(1) | kind(1) | createdAt(i64 unix nanos, be) | ttl(i64 nanos, be) | ntags(u16 be)
//	[ tagLen(u16 be) | tag(tagLen) | gen(u64 be) ] * ntags
//	vlen(u32 be) | payload(vlen)
func EncodeEntry(e Entry) ([]byte, error) {
	if len(e.Tags) > 0xFFFF {
		return nil, errors.New("adaptcache: too many tags to spill")
	}
	total := hdrLen + 4 + len(e.Payload)
	for _, t := range e.Tags {
		if l := len(t.Name); l == 0 || l > 0xFFFF {
			return nil, errors.New("adaptcache: invalid tag length")
		}
		total += 2 + len(t.Name) + 8
	}

	var buf bytes.Buffer
	buf.Grow(total)
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte
	var u2 [2]byte

	binary.BigEndian.PutUint64(u8[:], uint64(e.CreatedAt.UnixNano()))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(e.TTL))
	buf.Write(u8[:])

	binary.BigEndian.PutUint16(u2[:], uint16(len(e.Tags)))
	buf.Write(u2[:])
	for _, t := range e.Tags {
		binary.BigEndian.PutUint16(u2[:], uint16(len(t.Name)))
		buf.Write(u2[:])
		buf.WriteString(t.Name)
		binary.BigEndian.PutUint64(u8[:], t.Gen)
		buf.Write(u8[:])
	}

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)
	return buf.Bytes(), nil
}

// DecodeEntry parses a frame produced by EncodeEntry. The returned payload
// aliases b. Trailing bytes are treated as corruption.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}
	off := 6

	created := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	ttl := time.Duration(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if ttl < 0 {
		return Entry{}, ErrCorrupt
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2

	var tags []Tag
	if n > 0 {
		tags = make([]Tag, 0, n)
	}
	for i := 0; i < n; i++ {
		if off+2 > len(b) {
			return Entry{}, ErrCorrupt
		}
		tlen := int(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		if tlen == 0 || tlen > len(b)-off {
			return Entry{}, ErrCorrupt
		}
		name := string(b[off : off+tlen])
		off += tlen
		if off+8 > len(b) {
			return Entry{}, ErrCorrupt
		}
		gen := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		tags = append(tags, Tag{Name: name, Gen: gen})
	}

	if off+4 > len(b) {
		return Entry{}, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		CreatedAt: time.Unix(0, created),
		TTL:       ttl,
		Tags:      tags,
		Payload:   b[off : off+vlen],
	}, nil
}
