package codec

import (
	"unicode/utf8"

	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// stringCodec writes a length prefix over [0, max_length] and then the raw
// UTF-8 bytes.
type stringCodec struct{}

func (stringCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	s, ok := v.(string)
	if !ok {
		return typeError(f, v, "string")
	}
	if !utf8.ValidString(s) {
		return typeError(f, v, "valid UTF-8 string")
	}
	return writeLengthPrefixed(w, f, v, []byte(s))
}

func (stringCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	b, err := readLengthPrefixed(r, f)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(b) {
		return nil, malformed(f, "invalid UTF-8")
	}
	return string(b), nil
}

// bytesCodec is stringCodec without the UTF-8 requirement.
type bytesCodec struct{}

func (bytesCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	var b []byte
	switch t := v.(type) {
	case []byte:
		b = t
	case string:
		b = []byte(t)
	default:
		return typeError(f, v, "[]byte")
	}
	return writeLengthPrefixed(w, f, v, b)
}

func (bytesCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	return readLengthPrefixed(r, f)
}

func writeLengthPrefixed(w *bitstream.Writer, f *schema.Field, v any, b []byte) error {
	if len(b) > f.MaxLength {
		return rangeError(f, v, "length %d exceeds max_length %d", len(b), f.MaxLength)
	}
	writeBounded(w, int64(len(b)), 0, int64(f.MaxLength))
	w.WriteBytes(b)
	return nil
}

func readLengthPrefixed(r *bitstream.Reader, f *schema.Field) ([]byte, error) {
	n, ok, err := readBounded(r, 0, int64(f.MaxLength))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed(f, "length exceeds max_length %d", f.MaxLength)
	}
	return r.ReadBytes(int(n))
}
