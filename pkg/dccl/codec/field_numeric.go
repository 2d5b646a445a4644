package codec

import (
	"math"

	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

// intCodec encodes value - min in the width of [min, max].
type intCodec struct{}

func (intCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	min, max := f.IntRange()
	n, ok := toInt64(v)
	if !ok {
		if overflowsInt64(v) {
			return rangeError(f, v, "bounds [%d, %d]", min, max)
		}
		return typeError(f, v, "integer")
	}
	if n < min || n > max {
		return rangeError(f, v, "bounds [%d, %d]", min, max)
	}
	writeBounded(w, n, min, max)
	return nil
}

func (intCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	min, max := f.IntRange()
	n, ok, err := readBounded(r, min, max)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed(f, "integer offset past bounds [%d, %d]", min, max)
	}
	return n, nil
}

// floatCodec quantizes to 10^-precision and encodes the scaled integer.
type floatCodec struct{}

func (floatCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	x, ok := toFloat64(v)
	if !ok {
		return typeError(f, v, "number")
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return rangeError(f, v, "not a finite number")
	}
	if x < f.Min || x > f.Max {
		return rangeError(f, v, "bounds [%g, %g]", f.Min, f.Max)
	}
	scaled := math.Round(x * f.Scale())
	min, max := f.ScaledRange()
	if scaled < float64(min) || scaled > float64(max) {
		return rangeError(f, v, "bounds [%g, %g]", f.Min, f.Max)
	}
	writeBounded(w, int64(scaled), min, max)
	return nil
}

func (floatCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	min, max := f.ScaledRange()
	n, ok, err := readBounded(r, min, max)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed(f, "scaled offset past bounds [%g, %g]", f.Min, f.Max)
	}
	return unscale(n, f.Precision), nil
}

// unscale divides by a power of ten when it can, which keeps values such as
// 12.34 exactly as written.
func unscale(n int64, precision int) float64 {
	if precision >= 0 {
		return float64(n) / math.Pow10(precision)
	}
	return float64(n) * math.Pow10(-precision)
}

// enumCodec encodes the ordinal of a value name.
type enumCodec struct{}

func (enumCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	name, ok := v.(string)
	if !ok {
		return typeError(f, v, "enum value name")
	}
	for i, value := range f.Values {
		if value == name {
			writeBounded(w, int64(i), 0, int64(len(f.Values)-1))
			return nil
		}
	}
	return rangeError(f, v, "not one of %v", f.Values)
}

func (enumCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	i, ok, err := readBounded(r, 0, int64(len(f.Values)-1))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, malformed(f, "enum ordinal past %d values", len(f.Values))
	}
	return f.Values[i], nil
}

// boolCodec is a single bit.
type boolCodec struct{}

func (boolCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	b, ok := v.(bool)
	if !ok {
		return typeError(f, v, "bool")
	}
	w.WriteBool(b)
	return nil
}

func (boolCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	b, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	return b, nil
}

// staticCodec takes no bits. Encode only checks the value matches.
type staticCodec struct{}

func (staticCodec) Encode(w *bitstream.Writer, f *schema.Field, v any) error {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return typeError(f, v, "string")
	}
	if s != f.StaticValue {
		return rangeError(f, v, "static value is %q", f.StaticValue)
	}
	return nil
}

func (staticCodec) Decode(r *bitstream.Reader, f *schema.Field) (any, error) {
	return f.StaticValue, nil
}
