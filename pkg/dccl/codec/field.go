package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/message"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// FieldCodec encodes and decodes a single value of one field type. Optional,
// repeated and nested fields are composed from these by the encoder and
// decoder.
//
// Errors carry the bare field name; the caller rewrites it to the full path.
type FieldCodec interface {
	Encode(w *bitstream.Writer, f *schema.Field, v any) error
	Decode(r *bitstream.Reader, f *schema.Field) (any, error)
}

var fieldCodecs = map[schema.FieldType]FieldCodec{
	schema.TypeInt:    intCodec{},
	schema.TypeEnum:   enumCodec{},
	schema.TypeFloat:  floatCodec{},
	schema.TypeBool:   boolCodec{},
	schema.TypeString: stringCodec{},
	schema.TypeBytes:  bytesCodec{},
	schema.TypeStatic: staticCodec{},
}

// CodecFor returns the field codec of a scalar field type.
func CodecFor(t schema.FieldType) (FieldCodec, bool) {
	c, ok := fieldCodecs[t]
	return c, ok
}

// writeBounded writes v as an offset from min in the width of [min, max].
func writeBounded(w *bitstream.Writer, v, min, max int64) {
	w.WriteBits(uint64(v-min), bitstream.Width(uint64(max-min)))
}

// readBounded is the inverse of writeBounded. An offset past max returns
// ok == false.
func readBounded(r *bitstream.Reader, min, max int64) (v int64, ok bool, err error) {
	span := uint64(max - min)
	off, err := r.ReadBits(bitstream.Width(span))
	if err != nil {
		return 0, false, err
	}
	if off > span {
		return 0, false, nil
	}
	return min + int64(off), true, nil
}

func rangeError(f *schema.Field, v any, format string, args ...any) error {
	return &dcclerr.RangeError{Field: f.Name, Value: v, Reason: fmt.Sprintf(format, args...)}
}

func malformed(f *schema.Field, format string, args ...any) error {
	return &dcclerr.MalformedMessageError{Field: f.Name, Reason: fmt.Sprintf(format, args...)}
}

func typeError(f *schema.Field, v any, want string) error {
	return &dcclerr.FieldError{Field: f.Name, Reason: fmt.Sprintf("got %T, want %s", v, want)}
}

// withPath replaces the field name of a codec error with its full path.
func withPath(err error, path string) error {
	var (
		rerr *dcclerr.RangeError
		merr *dcclerr.MalformedMessageError
		ferr *dcclerr.FieldError
	)
	switch {
	case errors.As(err, &rerr):
		rerr.Field = path
	case errors.As(err, &merr):
		merr.Field = path
	case errors.As(err, &ferr):
		ferr.Field = path
	}
	return err
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// toInt64 accepts any Go integer, an integral float64 or a json.Number.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return integral(float64(n))
	case float64:
		return integral(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return integral(f)
		}
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.Abs(f) > 1<<63-1024 {
		return 0, false
	}
	return int64(f), true
}

// overflowsInt64 reports whether v is a whole number that toInt64 rejected
// only because it does not fit in an int64.
func overflowsInt64(v any) bool {
	switch n := v.(type) {
	case uint:
		return uint64(n) > math.MaxInt64
	case uint64:
		return n > math.MaxInt64
	case float32:
		return wholeOutsideInt64(float64(n))
	case float64:
		return wholeOutsideInt64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return errors.Is(err, strconv.ErrRange)
		}
		return wholeOutsideInt64(f)
	}
	return false
}

func wholeOutsideInt64(f float64) bool {
	return !math.IsNaN(f) && f == math.Trunc(f) && math.Abs(f) > 1<<63-1024
}

// toFloat64 accepts any Go number or a json.Number.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// toFields accepts message.Fields or a plain map.
func toFields(v any) (message.Fields, bool) {
	switch t := v.(type) {
	case message.Fields:
		return t, true
	case map[string]any:
		return message.Fields(t), true
	}
	return nil, false
}

// toList accepts []any or any other slice or array except a byte slice.
func toList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
