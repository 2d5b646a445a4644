package bitstream

import (
	"github.com/dccl/go-dccl/pkg/dccl/dcclerr"
)

// Reader consumes bit-packed values from a fixed byte slice. It is the exact
// inverse of Writer.
type Reader struct {
	data  []byte
	pos   int   // bit cursor
	limit int   // total readable bits
	err   error // first error encountered
}

// NewReader returns a Reader positioned at the first bit of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, limit: 8 * len(data)}
}

// Error returns the first error that occurred during reading, if any.
func (r *Reader) Error() error {
	return r.err
}

func (r *Reader) recordError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// ReadBits reads n bits and returns them right-aligned. When fewer than n bits
// remain it fails with an UnderflowError and leaves the cursor untouched.
func (r *Reader) ReadBits(n int) (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if n < 0 || n > MaxWidth {
		r.recordError(ErrInvalidWidth)
		return 0, r.err
	}
	if rem := r.limit - r.pos; n > rem {
		r.recordError(&dcclerr.UnderflowError{Requested: n, Remaining: rem})
		return 0, r.err
	}
	var v uint64
	for n > 0 {
		off := r.pos & 7
		avail := 8 - off
		take := avail
		if n < take {
			take = n
		}
		mask := uint64(1)<<uint(take) - 1
		chunk := (uint64(r.data[r.pos>>3]) >> uint(avail-take)) & mask
		v = v<<uint(take) | chunk
		n -= take
		r.pos += take
	}
	return v, nil
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadBytes reads n consecutive 8-bit values into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	if rem := r.limit - r.pos; n < 0 || 8*n > rem {
		r.recordError(&dcclerr.UnderflowError{Requested: 8 * n, Remaining: rem})
		return nil, r.err
	}
	out := make([]byte, n)
	if r.pos&7 == 0 {
		start := r.pos >> 3
		copy(out, r.data[start:start+n])
		r.pos += 8 * n
		return out, nil
	}
	for i := range out {
		b, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

// Pos returns the number of bits consumed so far.
func (r *Reader) Pos() int {
	return r.pos
}

// Size returns the total number of readable bits.
func (r *Reader) Size() int {
	return r.limit
}

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int {
	return r.limit - r.pos
}

// Reset rewinds the cursor to the first bit and clears any recorded error.
func (r *Reader) Reset() {
	r.pos = 0
	r.err = nil
}
