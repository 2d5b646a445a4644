package bitstream

import (
	"errors"
	"math"
	"testing"

	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_PacksMSBFirst(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(9, 4)
	w.WriteBits(2, 2)

	require.NoError(t, w.Error())
	assert.Equal(t, []byte{0x98}, w.Bytes())
	assert.Equal(t, 6, w.Size())
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 2, w.Padding())
}

func TestWriter_Layouts(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  []byte
		size  int
	}{
		{
			name:  "spans byte boundary",
			write: func(w *Writer) { w.WriteBits(0xABC, 12) },
			want:  []byte{0xAB, 0xC0},
			size:  12,
		},
		{
			name: "bit then full byte",
			write: func(w *Writer) {
				w.WriteBool(true)
				w.WriteBits(0xFF, 8)
			},
			want: []byte{0xFF, 0x80},
			size: 9,
		},
		{
			name:  "masks high bits",
			write: func(w *Writer) { w.WriteBits(0xFF, 4) },
			want:  []byte{0xF0},
			size:  4,
		},
		{
			name:  "zero width is a no-op",
			write: func(w *Writer) { w.WriteBits(0xFFFF, 0) },
			want:  []byte{},
			size:  0,
		},
		{
			name: "unaligned bytes",
			write: func(w *Writer) {
				w.WriteBits(1, 1)
				w.WriteBytes([]byte{0xAA})
			},
			want: []byte{0xD5, 0x00},
			size: 9,
		},
		{
			name:  "aligned bytes",
			write: func(w *Writer) { w.WriteBytes([]byte{0x01, 0x02}) },
			want:  []byte{0x01, 0x02},
			size:  16,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(4)
			tt.write(w)
			require.NoError(t, w.Error())
			assert.Equal(t, tt.want, w.Bytes())
			assert.Equal(t, tt.size, w.Size())
		})
	}
}

func TestWriter_InvalidWidthStopsWriting(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(1, 65)
	w.WriteBits(1, 1)

	assert.ErrorIs(t, w.Error(), ErrInvalidWidth)
	assert.Nil(t, w.Bytes())
	assert.Equal(t, 0, w.Size())
}

func TestWriter_Reset(t *testing.T) {
	w := NewWriter(0)
	w.WriteBits(1, 65)
	w.Reset()
	w.WriteBits(3, 2)

	require.NoError(t, w.Error())
	assert.Equal(t, []byte{0xC0}, w.Bytes())
}

func TestRoundTrip_MixedWidths(t *testing.T) {
	values := []struct {
		v uint64
		n int
	}{
		{1, 1}, {5, 3}, {0x0123456789ABCDEF, 64}, {0, 7}, {math.MaxUint32, 32}, {0x2A, 6}, {math.MaxUint64, 64},
	}

	w := NewWriter(0)
	for _, v := range values {
		w.WriteBits(v.v, v.n)
	}
	require.NoError(t, w.Error())

	r := NewReader(w.Bytes())
	for _, v := range values {
		got, err := r.ReadBits(v.n)
		require.NoError(t, err)
		assert.Equal(t, v.v, got)
	}
	assert.Equal(t, w.Padding(), r.Remaining())
}

func TestReader_Underflow(t *testing.T) {
	r := NewReader([]byte{0x98})

	v, err := r.ReadBits(6)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x26), v)

	_, err = r.ReadBits(3)
	var uerr *dcclerr.UnderflowError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 3, uerr.Requested)
	assert.Equal(t, 2, uerr.Remaining)
	assert.Equal(t, 6, r.Pos())

	// The first error sticks.
	_, err = r.ReadBits(1)
	assert.ErrorIs(t, err, dcclerr.ErrUnderflow)
	assert.ErrorIs(t, r.Error(), dcclerr.ErrUnderflow)
}

func TestReader_ReadBytes(t *testing.T) {
	r := NewReader([]byte{0xD5, 0x00})
	bit, err := r.ReadBool()
	require.NoError(t, err)
	assert.True(t, bit)

	got, err := r.ReadBytes(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, got)

	_, err = r.ReadBytes(1)
	assert.ErrorIs(t, err, dcclerr.ErrUnderflow)
}

func TestReader_ReadBytesAligned(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	got, err := r.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, got)

	got[0] = 0xFF
	assert.Equal(t, byte(0x01), data[0], "ReadBytes must copy")
	assert.Equal(t, 8, r.Remaining())
	assert.Equal(t, 24, r.Size())
}

func TestReader_Reset(t *testing.T) {
	r := NewReader([]byte{0x80})
	_, err := r.ReadBits(9)
	require.Error(t, err)

	r.Reset()
	v, err := r.ReadBits(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestWidth(t *testing.T) {
	tests := []struct {
		span uint64
		want int
	}{
		{0, 0}, {1, 1}, {2, 2}, {3, 2}, {15, 4}, {16, 5}, {255, 8}, {math.MaxUint64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Width(tt.span), "span %d", tt.span)
	}
}

func BenchmarkWriter_WriteBits(b *testing.B) {
	w := NewWriter(1024)
	for i := 0; i < b.N; i++ {
		w.Reset()
		for j := 0; j < 100; j++ {
			w.WriteBits(uint64(j), 7)
		}
	}
}
