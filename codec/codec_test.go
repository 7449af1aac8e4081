package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type profile struct {
	ID      string    `json:"id" msgpack:"id" cbor:"id"`
	Name    string    `json:"name" msgpack:"name" cbor:"name"`
	Visits  int       `json:"visits" msgpack:"visits" cbor:"visits"`
	Updated time.Time `json:"updated" msgpack:"updated" cbor:"updated"`
}

func sample() profile {
	return profile{ID: "42", Name: "Ada", Visits: 7, Updated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func TestStructCodecsRoundTrip(t *testing.T) {
	codecs := map[string]Codec[profile]{
		"json":     JSON[profile]{},
		"msgpack":  Msgpack[profile]{},
		"cbor":     MustCBOR[profile](false),
		"cbor-det": MustCBOR[profile](true),
		"gzip":     Gzip[profile]{Inner: JSON[profile]{}},
		"limit":    Limit[profile]{Inner: Msgpack[profile]{}, MaxDecode: 1 << 10},
	}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			b, err := c.Encode(sample())
			require.NoError(err)
			got, err := c.Decode(b)
			require.NoError(err)
			require.Equal(sample().ID, got.ID)
			require.Equal(sample().Name, got.Name)
			require.Equal(sample().Visits, got.Visits)
			require.True(sample().Updated.Equal(got.Updated))
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := MustCBOR[map[string]int](true)
	in := map[string]int{"z": 1, "a": 2, "m": 3}
	first, err := c.Encode(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := c.Encode(in)
		require.NoError(t, err)
		require.True(t, bytes.Equal(first, again))
	}
}

func TestProtobufRoundTrip(t *testing.T) {
	c := NewProtobuf(func() *wrapperspb.StringValue { return &wrapperspb.StringValue{} })
	b, err := c.Encode(wrapperspb.String("hello"))
	require.NoError(t, err)
	got, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, "hello", got.GetValue())
}

func TestRawCodecs(t *testing.T) {
	b, err := Bytes{}.Encode([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), b)

	s, err := String{}.Decode([]byte("xyz"))
	require.NoError(t, err)
	require.Equal(t, "xyz", s)
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	_, err := c.Decode([]byte("12345"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")

	v, err := c.Decode([]byte("1234"))
	require.NoError(t, err)
	require.Equal(t, "1234", v)

	unlimited := Limit[string]{Inner: String{}}
	_, err = unlimited.Decode([]byte(strings.Repeat("x", 1<<16)))
	require.NoError(t, err)
}

func TestGzipCompressesAndHonorsMinSize(t *testing.T) {
	big := strings.Repeat("abcdefgh", 512)
	c := Gzip[string]{Inner: String{}, MinSize: 64}

	enc, err := c.Encode(big)
	require.NoError(t, err)
	require.Equal(t, gzipDefl, enc[0])
	require.Less(t, len(enc), len(big))

	dec, err := c.Decode(enc)
	require.NoError(t, err)
	require.Equal(t, big, dec)

	small, err := c.Encode("tiny")
	require.NoError(t, err)
	require.Equal(t, append([]byte{gzipPlain}, "tiny"...), small)
	got, err := c.Decode(small)
	require.NoError(t, err)
	require.Equal(t, "tiny", got)

	// reuse of pooled readers
	for i := 0; i < 3; i++ {
		dec, err := c.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, big, dec)
	}
}

func TestGzipRejectsGarbage(t *testing.T) {
	c := Gzip[string]{Inner: String{}}
	_, err := c.Decode(nil)
	require.Error(t, err)
	_, err = c.Decode([]byte{7, 1, 2})
	require.Error(t, err)
	_, err = c.Decode([]byte{gzipDefl, 1, 2, 3})
	require.Error(t, err)
}

func TestMeasureUsesEncodedLength(t *testing.T) {
	m := Measure[string](String{})
	require.Equal(t, int64(5), m("hello"))

	failing := Measure[chan int](Msgpack[chan int]{})
	require.Equal(t, int64(1), failing(make(chan int)))
}
