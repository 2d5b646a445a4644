package codec

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccl/go-dccl/internal/bitstream"
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/dccl/go-dccl/pkg/dccl/schema"
)

func TestFieldCodecs(t *testing.T) {
	tests := []struct {
		name  string
		field schema.Field
		in    any
		bits  int
		want  any
	}{
		{"int offset", schema.Int("v", -10, 10), int32(-10), 5, int64(-10)},
		{"int zero width", schema.Int("v", 3, 3), 3, 0, int64(3)},
		{"int json number", schema.Int("v", 0, 1000), json.Number("999"), 10, int64(999)},
		{"int integral float", schema.Int("v", 0, 7), 5.0, 3, int64(5)},
		{"int uint64", schema.Int("v", 0, 7), uint64(6), 3, int64(6)},
		{"enum", schema.Enum("v", "a", "b", "c", "d", "e"), "e", 3, "e"},
		{"enum single value", schema.Enum("v", "only"), "only", 0, "only"},
		{"float", schema.Float("v", -1, 1, 3), -0.5, 11, -0.5},
		{"float negative precision", schema.Float("v", 0, 10000, -2), 1234.0, 7, 1200.0},
		{"float json number", schema.Float("v", 0, 10, 1), json.Number("2.5"), 7, 2.5},
		{"bool", schema.Bool("v"), true, 1, true},
		{"string", schema.String("v", 10), "hi", 4 + 16, "hi"},
		{"empty string", schema.String("v", 10), "", 4, ""},
		{"bytes", schema.Bytes("v", 3), []byte{1, 2, 3}, 2 + 24, []byte{1, 2, 3}},
		{"bytes from string", schema.Bytes("v", 3), "ab", 2 + 16, []byte("ab")},
		{"static", schema.Static("v", "k"), "k", 0, "k"},
		{"static absent", schema.Static("v", "k"), nil, 0, "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := CodecFor(tt.field.Type)
			require.True(t, ok)

			w := bitstream.NewWriter(8)
			w.WriteBool(true) // misalign on purpose
			require.NoError(t, c.Encode(w, &tt.field, tt.in))
			assert.Equal(t, 1+tt.bits, w.Size())
			assert.Equal(t, tt.bits, tt.field.ValueBits()+dataBits(tt.field, tt.want))

			r := bitstream.NewReader(w.Bytes())
			_, err := r.ReadBool()
			require.NoError(t, err)
			got, err := c.Decode(r, &tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func dataBits(f schema.Field, v any) int {
	switch t := v.(type) {
	case string:
		if f.Type == schema.TypeString {
			return 8 * len(t)
		}
	case []byte:
		return 8 * len(t)
	}
	return 0
}

func TestFieldCodecs_MessageFieldHasNoCodec(t *testing.T) {
	_, ok := CodecFor(schema.TypeMessage)
	assert.False(t, ok)
}

func TestWithPath(t *testing.T) {
	f := schema.Int("lat", 0, 1)
	err := withPath(rangeError(&f, 5, "bounds"), "pos.lat")

	var rerr *dcclerr.RangeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "pos.lat", rerr.Field)
	assert.Equal(t, "samples[2]", indexPath("samples", 2))
	assert.Equal(t, "a.b", joinPath("a", "b"))
	assert.Equal(t, "b", joinPath("", "b"))
}

func TestToList(t *testing.T) {
	list, ok := toList([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []any{1, 2}, list)

	_, ok = toList([]byte{1})
	assert.False(t, ok)
	_, ok = toList("abc")
	assert.False(t, ok)
}

func TestOverflowsInt64(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{uint64(math.MaxUint64), true},
		{uint(1) << 63, true},
		{1e19, true},
		{-1e19, true},
		{math.Inf(1), true},
		{json.Number("1e400"), true},
		{json.Number("9223372036854775808"), true},
		{uint64(5), false},
		{1.5, false},
		{math.NaN(), false},
		{"nine", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, overflowsInt64(tt.v), "%T %v", tt.v, tt.v)
	}
}
